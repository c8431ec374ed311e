// Command journeymap edits, analyzes, and serves customer journey maps.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/hylla/journeymap/internal/adapters/search/meili"
	serveradapter "github.com/hylla/journeymap/internal/adapters/server"
	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/hylla/journeymap/internal/adapters/storage/sqlite"
	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/config"
	"github.com/hylla/journeymap/internal/platform"
	"github.com/spf13/cobra"
)

// version is stamped at build time.
var version = "dev"

// defaultCLIActor attributes versions saved from the command line when no identity is configured.
const defaultCLIActor = "journeymap-cli"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// clipboardWriter copies rendered output. Tests replace it.
var clipboardWriter = writeClipboard

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes it with args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	c := &cli{stdout: stdout, stderr: stderr}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// cli holds global flag state shared by every command.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	dbPath     string
	logLevel   string
	appName    string
	devMode    bool
}

// rootCommand assembles the full command tree.
func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "journeymap",
		Short:         "Build and analyze customer journey maps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	appName := "journeymap"
	if envApp := strings.TrimSpace(os.Getenv("JOURNEYMAP_APP_NAME")); envApp != "" {
		appName = envApp
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config TOML")
	flags.StringVar(&c.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&c.appName, "app", appName, "application name for config/data path resolution")
	flags.BoolVar(&c.devMode, "dev", false, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		c.pathsCommand(),
		c.typesCommand(),
		c.mapCommand(),
		c.stageCommand(),
		c.sectionCommand(),
		c.cellCommand(),
		c.analyticsCommand(),
		c.versionsCommand(),
		c.commentCommand(),
		c.searchCommand(),
		c.exportCommand(),
		c.importCommand(),
		c.serveCommand(),
	)
	return root
}

// paths resolves platform paths for the current flags.
func (c *cli) paths() (platform.Paths, error) {
	return platform.Current(platform.Install{Name: c.appName, Dev: c.devMode})
}

// env is one opened runtime: config, logger, store, and services.
type env struct {
	paths   platform.Paths
	cfg     config.Config
	logger  *runtimeLogger
	repo    *sqlite.Repository
	indexer *meili.Indexer
	service *app.Service
	api     *common.AppServiceAdapter
}

// open loads config and opens the store. fallbackActor attributes saves when no identity is configured.
func (c *cli) open(fallbackActor string) (*env, error) {
	paths, err := c.paths()
	if err != nil {
		return nil, err
	}
	configPath := strings.TrimSpace(c.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("JOURNEYMAP_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if db := strings.TrimSpace(c.dbPath); db != "" {
		cfg.Database.Path = db
	}
	if level := strings.TrimSpace(c.logLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger, err := newRuntimeLogger(c.stderr, c.appName, cfg.Logging, time.Now)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	debounce, err := cfg.Autosave.DebounceDuration()
	if err != nil {
		_ = repo.Close()
		_ = logger.Close()
		return nil, err
	}
	idle, err := cfg.Autosave.SessionIdleDuration()
	if err != nil {
		_ = repo.Close()
		_ = logger.Close()
		return nil, err
	}
	actor := strings.TrimSpace(cfg.Identity.Actor)
	if actor == "" {
		actor = fallbackActor
	}
	svcCfg := app.ServiceConfig{
		DefaultTitle:      cfg.Journey.DefaultTitle,
		DefaultStages:     cfg.Journey.DefaultStages,
		DisableVersioning: !cfg.Versioning.Enabled,
		DefaultActor:      actor,
		AutosaveDebounce:  debounce,
		DisableAutosave:   !cfg.Autosave.Enabled,
		Logger:            logger,

		SessionIdleTimeout: idle,
	}
	e := &env{paths: paths, cfg: cfg, logger: logger, repo: repo}
	if url := strings.TrimSpace(cfg.Search.MeiliURL); url != "" {
		e.indexer = meili.New(meili.Config{
			URL:      url,
			APIKey:   cfg.Search.MeiliAPIKey,
			IndexUID: cfg.Search.Index,
		}, logger)
		svcCfg.Indexer = e.indexer
	}
	e.service = app.NewService(repo, uuid.NewString, time.Now, svcCfg)
	e.api = common.NewAppServiceAdapter(e.service, actor)
	logger.Debug("runtime opened", "db", cfg.Database.Path, "config", configPath)
	return e, nil
}

// Close flushes open sessions and releases the store.
func (e *env) Close() error {
	if e == nil {
		return nil
	}
	e.service.CloseAllSessions(context.Background())
	if e.indexer != nil {
		e.indexer.Close()
	}
	err := e.repo.Close()
	if closeErr := e.logger.Close(); err == nil {
		err = closeErr
	}
	return err
}

// withEnv opens a runtime around fn with the CLI actor.
func (c *cli) withEnv(fn func(*env) error) error {
	e, err := c.open(defaultCLIActor)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	return fn(e)
}
