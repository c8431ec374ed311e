// Package inbox imports journey documents dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
)

const (
	importedDir = "imported"
	rejectedDir = "rejected"
)

// DefaultSettle is the quiet period a file needs before it is imported.
const DefaultSettle = 500 * time.Millisecond

// Importer stores one repaired document as a new map.
type Importer interface {
	ImportDocument(ctx context.Context, doc domain.Document, personaID, actor string) (domain.JourneyMap, domain.RepairReport, error)
}

// Watcher imports JSON and YAML documents written into Dir.
// Imported files move to Dir/imported, unreadable ones to Dir/rejected.
type Watcher struct {
	Dir   string
	Actor string
	// Settle is how long a file must see no create or write events before it is imported.
	Settle   time.Duration
	importer Importer
	logger   app.Logger
}

// New constructs a watcher for dir.
func New(dir, actor string, importer Importer, logger app.Logger) *Watcher {
	if strings.TrimSpace(actor) == "" {
		actor = "inbox"
	}
	if logger == nil {
		logger = app.DiscardLogger{}
	}
	return &Watcher{Dir: dir, Actor: actor, Settle: DefaultSettle, importer: importer, logger: logger}
}

// Run imports files already present in the inbox and then watches for new ones until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	if w.importer == nil {
		return errors.New("inbox importer is required")
	}
	if err := w.ensureDirs(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.Dir); err != nil {
		return fmt.Errorf("watch inbox %q: %w", w.Dir, err)
	}

	if _, err := w.Sweep(ctx); err != nil {
		return err
	}

	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	type settled struct {
		path string
		gen  uint64
	}
	ready := make(chan settled)
	pending := map[string]settled{}
	timers := map[string]*time.Timer{}
	var gen uint64
	defer func() {
		for _, timer := range timers {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isImportEvent(event) {
				continue
			}
			if timer, ok := timers[event.Name]; ok {
				timer.Stop()
			}
			gen++
			entry := settled{path: event.Name, gen: gen}
			pending[entry.path] = entry
			timers[entry.path] = time.AfterFunc(settle, func() {
				select {
				case ready <- entry:
				case <-ctx.Done():
				}
			})
		case entry := <-ready:
			// A later event for the same file restarted its window.
			if pending[entry.path] != entry {
				continue
			}
			delete(pending, entry.path)
			delete(timers, entry.path)
			w.importSettled(ctx, entry.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", "dir", w.Dir, "err", err)
		}
	}
}

// Sweep imports every candidate file currently in the inbox and returns the created maps.
func (w *Watcher) Sweep(ctx context.Context) ([]domain.JourneyMap, error) {
	if err := w.ensureDirs(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox %q: %w", w.Dir, err)
	}
	out := make([]domain.JourneyMap, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.Dir, entry.Name())
		if !isCandidate(path) {
			continue
		}
		m, err := w.importFile(ctx, path)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (w *Watcher) ensureDirs() error {
	for _, sub := range []string{"", importedDir, rejectedDir} {
		if err := os.MkdirAll(filepath.Join(w.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
	}
	return nil
}

// isImportEvent reports whether event should (re)start the settle window for a candidate file.
// A rename into the inbox arrives as a create; every write to a file being filled in place
// pushes its import back.
func isImportEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return isCandidate(event.Name)
}

// importSettled imports path once its settle window has passed.
func (w *Watcher) importSettled(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	_, err = w.importFile(ctx, path)
	return err == nil
}

func (w *Watcher) importFile(ctx context.Context, path string) (domain.JourneyMap, error) {
	format, err := app.FormatFromPath(path)
	if err != nil {
		return domain.JourneyMap{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		// The file moved away during its settle window.
		return domain.JourneyMap{}, err
	}
	doc, err := app.DecodeDocument(f, format)
	f.Close()
	if err != nil {
		w.logger.Warn("rejected inbox document", "file", path, "err", err)
		w.move(path, rejectedDir)
		return domain.JourneyMap{}, err
	}

	m, report, err := w.importer.ImportDocument(ctx, doc, "", w.Actor)
	if err != nil {
		w.logger.Warn("rejected inbox document", "file", path, "err", err)
		w.move(path, rejectedDir)
		return domain.JourneyMap{}, err
	}
	w.logger.Info("imported inbox document", "file", path, "map_id", m.ID, "repaired", report.Changed())
	w.move(path, importedDir)
	return m, nil
}

func (w *Watcher) move(path, sub string) {
	dst := filepath.Join(w.Dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		w.logger.Warn("move inbox document", "file", path, "dst", dst, "err", err)
	}
}

// isCandidate reports whether path names a visible document file.
func isCandidate(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	_, err := app.FormatFromPath(base)
	return err == nil
}
