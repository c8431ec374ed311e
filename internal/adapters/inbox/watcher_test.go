package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hylla/journeymap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingImporter struct {
	mu     sync.Mutex
	docs   []domain.Document
	actors []string
	fail   error
}

func (r *recordingImporter) ImportDocument(_ context.Context, doc domain.Document, _ string, actor string) (domain.JourneyMap, domain.RepairReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return domain.JourneyMap{}, domain.RepairReport{}, r.fail
	}
	r.docs = append(r.docs, doc)
	r.actors = append(r.actors, actor)
	return domain.JourneyMap{ID: "m" + string(rune('0'+len(r.docs))), Title: doc.Title, Document: doc}, domain.RepairReport{}, nil
}

func (r *recordingImporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

const jsonDoc = `{"title":"Checkout","stages":[{"id":"s1","name":"Browse"}],"sections":[]}`

const yamlDoc = `title: Returns
stages:
  - id: s1
    name: Request
sections: []
`

func TestIsCandidate(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/in/map.json", true},
		{"/in/map.YAML", true},
		{"/in/map.yml", true},
		{"/in/.map.json", false},
		{"/in/map.txt", false},
		{"/in/README", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isCandidate(tt.path))
		})
	}
}

func TestSweepImportsAndSortsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(jsonDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(yamlDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	imp := &recordingImporter{}
	w := New(dir, "", imp, nil)
	maps, err := w.Sweep(context.Background())
	require.NoError(t, err)

	require.Len(t, maps, 2)
	assert.Equal(t, "Checkout", maps[0].Title)
	assert.Equal(t, "Returns", maps[1].Title)
	assert.Equal(t, []string{"inbox", "inbox"}, imp.actors)

	assert.FileExists(t, filepath.Join(dir, importedDir, "a.json"))
	assert.FileExists(t, filepath.Join(dir, importedDir, "b.yaml"))
	assert.FileExists(t, filepath.Join(dir, rejectedDir, "broken.json"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "a.json"))
}

func TestImporterFailureRejectsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(jsonDoc), 0o644))

	w := New(dir, "bot", &recordingImporter{fail: errors.New("bad section type")}, nil)
	maps, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, maps)
	assert.FileExists(t, filepath.Join(dir, rejectedDir, "a.json"))
}

func TestIsImportEvent(t *testing.T) {
	tests := []struct {
		name string
		file string
		op   fsnotify.Op
		want bool
	}{
		{name: "create json", file: "a.json", op: fsnotify.Create, want: true},
		{name: "write yaml", file: "a.yaml", op: fsnotify.Write, want: true},
		{name: "chmod ignored", file: "a.json", op: fsnotify.Chmod, want: false},
		{name: "remove ignored", file: "a.json", op: fsnotify.Remove, want: false},
		{name: "rename away ignored", file: "a.json", op: fsnotify.Rename, want: false},
		{name: "hidden ignored", file: ".a.json", op: fsnotify.Create, want: false},
		{name: "other extension ignored", file: "a.txt", op: fsnotify.Create, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := fsnotify.Event{Name: filepath.Join(t.TempDir(), tt.file), Op: tt.op}
			assert.Equal(t, tt.want, isImportEvent(event))
		})
	}
}

func TestImportSettled(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	w := New(dir, "", imp, nil)
	require.NoError(t, w.ensureDirs())

	path := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	assert.True(t, w.importSettled(context.Background(), path))
	assert.Equal(t, 1, imp.count())

	assert.False(t, w.importSettled(context.Background(), filepath.Join(dir, "gone.json")))
	assert.False(t, w.importSettled(context.Background(), filepath.Join(dir, importedDir)))
	assert.Equal(t, 1, imp.count())
}

func TestRunPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	w := New(dir, "", imp, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Wait for the watcher to create its layout before dropping a file.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, rejectedDir))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	tmp := filepath.Join(dir, ".drop.json")
	require.NoError(t, os.WriteFile(tmp, []byte(jsonDoc), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "drop.json")))

	require.Eventually(t, func() bool { return imp.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunWaitsForDirectWritesToSettle(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	w := New(dir, "", imp, nil)
	w.Settle = 300 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, rejectedDir))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	path := filepath.Join(dir, "direct.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	half := len(jsonDoc) / 2
	_, err = f.WriteString(jsonDoc[:half])
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	time.Sleep(100 * time.Millisecond)
	_, err = f.WriteString(jsonDoc[half:])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return imp.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.FileExists(t, filepath.Join(dir, importedDir, "direct.json"))
	assert.NoFileExists(t, filepath.Join(dir, rejectedDir, "direct.json"))
	cancel()
	require.NoError(t, <-done)
}
