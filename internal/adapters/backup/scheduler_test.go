package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
)

type fakeExporter struct {
	opts []app.ExportOptions
	fail error
}

func (f *fakeExporter) ExportSnapshot(_ context.Context, opts app.ExportOptions) (app.Snapshot, error) {
	f.opts = append(f.opts, opts)
	if f.fail != nil {
		return app.Snapshot{}, f.fail
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return app.Snapshot{
		Version:    app.SnapshotVersion,
		ExportedAt: now,
		Maps:       []domain.JourneyMap{{ID: "m1", Title: "Backup", Document: domain.NewDocument("Backup", "s1"), CreatedAt: now, UpdatedAt: now}},
	}, nil
}

func steppedNow(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		out := current
		current = current.Add(time.Minute)
		return out
	}
}

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"0 3 * * *", "*/15 * * * *", "@daily"} {
		if _, err := ParseSchedule(expr); err != nil {
			t.Fatalf("ParseSchedule(%q) error = %v", expr, err)
		}
	}
	for _, expr := range []string{"", "   ", "61 * * * *", "0 3 * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Fatalf("ParseSchedule(%q) expected error", expr)
		}
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{Schedule: "@daily", Dir: t.TempDir()}, nil, nil); err == nil {
		t.Fatal("expected error for missing exporter")
	}
	if _, err := New(Config{Schedule: "@daily"}, &fakeExporter{}, nil); err == nil {
		t.Fatal("expected error for missing dir")
	}
	if _, err := New(Config{Schedule: "bogus", Dir: t.TempDir()}, &fakeExporter{}, nil); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}

func TestNextFollowsSchedule(t *testing.T) {
	s, err := New(Config{Schedule: "0 3 * * *", Dir: t.TempDir()}, &fakeExporter{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	from := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	if got := s.Next(from); !got.Equal(want) {
		t.Fatalf("Next() = %v, want %v", got, want)
	}
}

func TestWriteBackupExportsEverythingAndPrunes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	exp := &fakeExporter{}
	s, err := New(Config{Schedule: "@hourly", Dir: dir, Format: app.FormatYAML, Keep: 2}, exp, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.now = steppedNow(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	var paths []string
	for i := 0; i < 3; i++ {
		path, err := s.WriteBackup(context.Background())
		if err != nil {
			t.Fatalf("WriteBackup() error = %v", err)
		}
		paths = append(paths, path)
	}
	if filepath.Base(paths[0]) != "journeymap-20260301T120000.000Z.yaml" {
		t.Fatalf("unexpected backup name %q", filepath.Base(paths[0]))
	}
	for _, opts := range exp.opts {
		if !opts.IncludeVersions || !opts.IncludeResolved || len(opts.MapIDs) != 0 {
			t.Fatalf("backup must export everything, got %#v", opts)
		}
	}

	files, err := List(dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 2 || files[0] != paths[1] || files[1] != paths[2] {
		t.Fatalf("expected the two newest backups, got %v", files)
	}

	f, err := os.Open(files[1])
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer f.Close()
	snap, err := app.DecodeSnapshot(f, app.FormatYAML)
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("backup should validate, got %v", err)
	}
	if len(snap.Maps) != 1 || snap.Maps[0].Title != "Backup" {
		t.Fatalf("unexpected backup contents %#v", snap.Maps)
	}
}

func TestWriteBackupExportFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{Schedule: "@hourly", Dir: dir}, &fakeExporter{fail: errors.New("db closed")}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.WriteBackup(context.Background()); err == nil {
		t.Fatal("expected export failure")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries", len(entries))
	}
}

func TestListMissingDir(t *testing.T) {
	files, err := List(filepath.Join(t.TempDir(), "absent"))
	if err != nil || len(files) != 0 {
		t.Fatalf("List() = %v, %v", files, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(Config{Schedule: "@yearly", Dir: t.TempDir()}, &fakeExporter{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestRunWritesOnSchedule(t *testing.T) {
	dir := t.TempDir()
	exp := &fakeExporter{}
	s, err := New(Config{Schedule: "@every 1s", Dir: dir}, exp, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		files, _ := List(dir)
		if len(files) > 0 {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("no backup written within 5s")
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

type recordingLogger struct {
	app.DiscardLogger
	errors []string
}

func (r *recordingLogger) Error(msg any, keyvals ...any) {
	r.errors = append(r.errors, fmt.Sprint(msg, keyvals))
}

func TestCronLoggerForwardsErrors(t *testing.T) {
	rec := &recordingLogger{}
	CronLogger(rec).Error(errors.New("job panicked"), "panic", "job", "backup")
	if len(rec.errors) != 1 || !strings.Contains(rec.errors[0], "job panicked") {
		t.Fatalf("unexpected logged errors %v", rec.errors)
	}
	CronLogger(nil).Info("wake", "now", time.Now())
}
