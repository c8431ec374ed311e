package main

import (
	"context"
	"strings"

	"github.com/hylla/journeymap/internal/adapters/backup"
	"github.com/hylla/journeymap/internal/adapters/inbox"
	serveradapter "github.com/hylla/journeymap/internal/adapters/server"
	"github.com/hylla/journeymap/internal/app"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// inboxActor attributes maps imported from the drop folder.
const inboxActor = "inbox"

func (c *cli) serveCommand() *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
		noInbox     bool
		noBackup    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP tools, with optional inbox import and scheduled backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := c.open("")
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			serverCfg := serveradapter.Config{
				HTTPBind:      e.cfg.Server.HTTPBind,
				APIEndpoint:   e.cfg.Server.APIEndpoint,
				MCPEndpoint:   e.cfg.Server.MCPEndpoint,
				ServerName:    c.appName,
				ServerVersion: version,
				RateLimit:     e.cfg.Server.RateLimit,
				RateBurst:     e.cfg.Server.RateBurst,
			}
			if cmd.Flags().Changed("http") {
				serverCfg.HTTPBind = httpBind
			}
			if cmd.Flags().Changed("api-endpoint") {
				serverCfg.APIEndpoint = apiEndpoint
			}
			if cmd.Flags().Changed("mcp-endpoint") {
				serverCfg.MCPEndpoint = mcpEndpoint
			}

			group, ctx := errgroup.WithContext(cmd.Context())
			if e.cfg.Inbox.Enabled && !noInbox {
				dir := strings.TrimSpace(e.cfg.Inbox.Dir)
				if dir == "" {
					dir = e.paths.InboxDir
				}
				watcher := inbox.New(dir, inboxActor, e.service, e.logger)
				e.logger.Info("watching inbox", "dir", watcher.Dir)
				group.Go(func() error { return watcher.Run(ctx) })
			}
			if strings.TrimSpace(e.cfg.Backup.Schedule) != "" && !noBackup {
				scheduler, err := newBackupScheduler(e)
				if err != nil {
					return err
				}
				e.logger.Info("scheduling backups", "schedule", e.cfg.Backup.Schedule, "dir", scheduler.Dir())
				group.Go(func() error { return scheduler.Run(ctx) })
			}
			if idle, _ := e.cfg.Autosave.SessionIdleDuration(); idle > 0 {
				group.Go(func() error { return runSessionExpiry(ctx, e.service, e.logger) })
			}
			e.logger.Info("serving", "addr", serverCfg.HTTPBind, "api", serverCfg.APIEndpoint, "mcp", serverCfg.MCPEndpoint)
			group.Go(func() error {
				return serveCommandRunner(ctx, serverCfg, serveradapter.Dependencies{Service: e.api})
			})
			return group.Wait()
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "/api/v1", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "/mcp", "MCP streamable HTTP endpoint")
	cmd.Flags().BoolVar(&noInbox, "no-inbox", false, "skip the inbox watcher even when configured")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip scheduled backups even when configured")
	return cmd
}

// newBackupScheduler builds the scheduler from config. A blank backup dir uses the platform default.
func newBackupScheduler(e *env) (*backup.Scheduler, error) {
	format, err := app.ParseFormat(e.cfg.Backup.Format)
	if err != nil {
		return nil, err
	}
	dir := strings.TrimSpace(e.cfg.Backup.Dir)
	if dir == "" {
		dir = e.paths.BackupDir
	}
	return backup.New(backup.Config{
		Schedule: e.cfg.Backup.Schedule,
		Dir:      dir,
		Format:   format,
		Keep:     e.cfg.Backup.Keep,
	}, e.service, e.logger)
}

// sessionSweep is how often idle sessions are checked.
const sessionSweep = "@every 1m"

// runSessionExpiry closes idle sessions on a fixed cadence until ctx ends.
func runSessionExpiry(ctx context.Context, svc *app.Service, logger app.Logger) error {
	c := cron.New(cron.WithLogger(backup.CronLogger(logger)))
	if _, err := c.AddFunc(sessionSweep, func() {
		if n := svc.ExpireIdleSessions(ctx); n > 0 {
			logger.Debug("idle sessions expired", "count", n)
		}
	}); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
