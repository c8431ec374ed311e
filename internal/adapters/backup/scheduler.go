// Package backup writes snapshot exports on a cron schedule.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hylla/journeymap/internal/app"
	"github.com/robfig/cron/v3"
)

const filePrefix = "journeymap-"

// cronParser accepts standard 5-field expressions plus descriptors such as @daily.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Exporter produces a full snapshot of stored state.
type Exporter interface {
	ExportSnapshot(ctx context.Context, opts app.ExportOptions) (app.Snapshot, error)
}

// Config controls where and how often backups are written.
type Config struct {
	Schedule string
	Dir      string
	Format   app.Format
	// Keep bounds how many backup files stay on disk; zero keeps all of them.
	Keep int
}

// Scheduler runs backups until its context ends.
type Scheduler struct {
	cfg      Config
	schedule cron.Schedule
	exporter Exporter
	logger   app.Logger
	now      func() time.Time
}

// Dir reports where backups are written.
func (s *Scheduler) Dir() string {
	return s.cfg.Dir
}

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("backup schedule is required")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse backup schedule %q: %w", expr, err)
	}
	return sched, nil
}

// New validates cfg and constructs a scheduler.
func New(cfg Config, exporter Exporter, logger app.Logger) (*Scheduler, error) {
	if exporter == nil {
		return nil, errors.New("backup exporter is required")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("backup dir is required")
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "" {
		cfg.Format = app.FormatJSON
	}
	if cfg.Keep < 0 {
		cfg.Keep = 0
	}
	if logger == nil {
		logger = app.DiscardLogger{}
	}
	return &Scheduler{cfg: cfg, schedule: sched, exporter: exporter, logger: logger, now: time.Now}, nil
}

// Next returns the first fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks, writing one backup per scheduled tick. Failed backups are logged and the schedule
// continues. A backup still running when ctx ends is waited for.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(cronParser), cron.WithLogger(CronLogger(s.logger)))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("schedule backups: %w", err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	path, err := s.WriteBackup(ctx)
	if err != nil {
		s.logger.Error("scheduled backup failed", "dir", s.cfg.Dir, "err", err)
		return
	}
	s.logger.Info("scheduled backup written", "path", path)
}

// CronLogger routes cron's own messages to logger.
func CronLogger(logger app.Logger) cron.Logger {
	if logger == nil {
		logger = app.DiscardLogger{}
	}
	return cronLogger{logger: logger}
}

type cronLogger struct {
	logger app.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}

// WriteBackup exports everything, including version history and resolved comments, to a new
// timestamped file and prunes old files past Keep.
func (s *Scheduler) WriteBackup(ctx context.Context) (string, error) {
	snap, err := s.exporter.ExportSnapshot(ctx, app.ExportOptions{IncludeVersions: true, IncludeResolved: true})
	if err != nil {
		return "", fmt.Errorf("export snapshot: %w", err)
	}
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := filePrefix + s.now().UTC().Format("20060102T150405.000Z") + "." + string(s.cfg.Format)
	path := filepath.Join(s.cfg.Dir, name)
	tmp, err := os.CreateTemp(s.cfg.Dir, ".backup-*")
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	if err := app.EncodeSnapshot(tmp, snap, s.cfg.Format); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("encode backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close backup file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("finalize backup file: %w", err)
	}

	if err := s.prune(); err != nil {
		s.logger.Warn("prune backups", "dir", s.cfg.Dir, "err", err)
	}
	return path, nil
}

func (s *Scheduler) prune() error {
	if s.cfg.Keep == 0 {
		return nil
	}
	files, err := List(s.cfg.Dir)
	if err != nil {
		return err
	}
	if len(files) <= s.cfg.Keep {
		return nil
	}
	for _, path := range files[:len(files)-s.cfg.Keep] {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// List returns backup files in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	// Timestamped names sort chronologically.
	sort.Strings(out)
	return out, nil
}
