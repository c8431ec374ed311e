package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hylla/journeymap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	d       time.Duration
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped
	t.stopped = true
	return active
}

type fakeClockTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeClockTimers) NewTimer(d time.Duration, fire func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{d: d, fire: fire}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeClockTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *fakeClockTimers) last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[len(f.timers)-1]
}

// recordingStore captures saved titles in completion order. Titles listed in block wait for
// their release channel before completing.
type recordingStore struct {
	mu      sync.Mutex
	saved   []string
	started chan string
	block   map[string]chan struct{}
	fail    error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{started: make(chan string, 16), block: map[string]chan struct{}{}}
}

func (r *recordingStore) save(_ context.Context, doc domain.Document) error {
	r.started <- doc.Title
	r.mu.Lock()
	release := r.block[doc.Title]
	fail := r.fail
	r.mu.Unlock()
	if release != nil {
		<-release
	}
	if fail != nil {
		return fail
	}
	r.mu.Lock()
	r.saved = append(r.saved, doc.Title)
	r.mu.Unlock()
	return nil
}

func (r *recordingStore) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved...)
}

func titled(title string) domain.Document {
	return domain.NewDocument(title, "s1")
}

func newTestAutosaver(store *recordingStore, timers *fakeClockTimers) *Autosaver {
	return NewAutosaver(store.save, AutosaveConfig{Debounce: 30 * time.Second, NewTimer: timers.NewTimer})
}

func TestAutosaveDebounceRestartsOnEachChange(t *testing.T) {
	store := newRecordingStore()
	timers := &fakeClockTimers{}
	a := newTestAutosaver(store, timers)

	a.Notify(titled("one"))
	first := timers.last()
	a.Notify(titled("two"))
	second := timers.last()

	require.Equal(t, 2, timers.count())
	assert.True(t, first.stopped, "earlier window must be cancelled")
	assert.Equal(t, 30*time.Second, second.d)
	assert.Equal(t, SaveStatePending, a.Status().State)

	first.fire()
	assert.Empty(t, store.titles(), "stale callback must not save")

	second.fire()
	<-store.started
	assert.Equal(t, []string{"two"}, store.titles())
	status := a.Status()
	assert.Equal(t, SaveStateIdle, status.State)
	assert.False(t, status.Dirty)
	assert.Equal(t, 1, status.Saves)
	assert.NotNil(t, status.LastSavedAt)
}

func TestAutosaveQueuesChangesDuringSave(t *testing.T) {
	store := newRecordingStore()
	release := make(chan struct{})
	store.block["one"] = release
	timers := &fakeClockTimers{}
	a := newTestAutosaver(store, timers)

	a.Notify(titled("one"))
	done := make(chan struct{})
	go func() {
		timers.last().fire()
		close(done)
	}()
	require.Equal(t, "one", <-store.started)
	assert.Equal(t, SaveStateSaving, a.Status().State)

	a.Notify(titled("two"))
	status := a.Status()
	assert.True(t, status.Queued)
	assert.Equal(t, SaveStateSaving, status.State)
	assert.Equal(t, 1, timers.count(), "no window while a save is in flight")

	close(release)
	<-done
	require.Equal(t, 2, timers.count(), "queued change starts a fresh window")
	assert.Equal(t, SaveStatePending, a.Status().State)

	timers.last().fire()
	<-store.started
	assert.Equal(t, []string{"one", "two"}, store.titles())
	assert.Equal(t, SaveStateIdle, a.Status().State)
}

func TestAutosaveFailureIsNotRetried(t *testing.T) {
	store := newRecordingStore()
	store.fail = errors.New("disk full")
	timers := &fakeClockTimers{}
	a := newTestAutosaver(store, timers)

	a.Notify(titled("one"))
	timers.last().fire()
	<-store.started

	status := a.Status()
	assert.Equal(t, SaveStateFailed, status.State)
	assert.True(t, status.Dirty)
	assert.Equal(t, 1, status.Failures)
	assert.Equal(t, "disk full", status.LastError)
	assert.Equal(t, 1, timers.count(), "failure must not schedule a retry")

	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()
	a.Notify(titled("two"))
	assert.Equal(t, SaveStatePending, a.Status().State)
	timers.last().fire()
	<-store.started
	status = a.Status()
	assert.Equal(t, SaveStateIdle, status.State)
	assert.Empty(t, status.LastError)
	assert.Equal(t, []string{"two"}, store.titles())
}

func TestAutosaveExplicitSaveCancelsPendingWindow(t *testing.T) {
	store := newRecordingStore()
	timers := &fakeClockTimers{}
	a := newTestAutosaver(store, timers)

	a.Notify(titled("draft"))
	pending := timers.last()
	require.NoError(t, a.SaveNow(context.Background(), titled("final")))
	<-store.started

	assert.True(t, pending.stopped)
	pending.fire()
	assert.Equal(t, []string{"final"}, store.titles())
	assert.Equal(t, SaveStateIdle, a.Status().State)
}

func TestAutosaveExplicitSaveCanBeClobberedByInFlightSave(t *testing.T) {
	store := newRecordingStore()
	release := make(chan struct{})
	store.block["older"] = release
	timers := &fakeClockTimers{}
	a := newTestAutosaver(store, timers)

	a.Notify(titled("older"))
	done := make(chan struct{})
	go func() {
		timers.last().fire()
		close(done)
	}()
	require.Equal(t, "older", <-store.started)

	require.NoError(t, a.SaveNow(context.Background(), titled("newer")))
	require.Equal(t, "newer", <-store.started)
	assert.Equal(t, 1, a.Status().InFlight)

	close(release)
	<-done
	titles := store.titles()
	require.Len(t, titles, 2)
	assert.Equal(t, "older", titles[len(titles)-1], "the save that completes last wins")
	assert.Equal(t, SaveStateIdle, a.Status().State)
}

func TestAutosaveDisabledOnlySavesOnFlush(t *testing.T) {
	store := newRecordingStore()
	timers := &fakeClockTimers{}
	a := NewAutosaver(store.save, AutosaveConfig{Disabled: true, NewTimer: timers.NewTimer})

	a.Notify(titled("one"))
	assert.Zero(t, timers.count())
	assert.True(t, a.Status().Dirty)

	require.NoError(t, a.Flush(context.Background()))
	<-store.started
	assert.Equal(t, []string{"one"}, store.titles())

	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, []string{"one"}, store.titles(), "clean flush is a no-op")
}

func TestAutosaveStopIgnoresLaterChanges(t *testing.T) {
	store := newRecordingStore()
	timers := &fakeClockTimers{}
	a := newTestAutosaver(store, timers)

	a.Notify(titled("one"))
	pending := timers.last()
	a.Stop()
	assert.True(t, pending.stopped)

	a.Notify(titled("two"))
	assert.Equal(t, 1, timers.count())
	assert.ErrorIs(t, a.SaveNow(context.Background(), titled("three")), ErrSessionClosed)
	assert.Empty(t, store.titles())
}

func TestAutosaveTrackedBaselineIsNotDirty(t *testing.T) {
	store := newRecordingStore()
	timers := &fakeClockTimers{}
	a := newTestAutosaver(store, timers)

	a.Track(titled("loaded"))
	assert.False(t, a.Status().Dirty)
	assert.Zero(t, timers.count())
	require.NoError(t, a.Flush(context.Background()))
	assert.Empty(t, store.titles())

	require.NoError(t, a.SaveLatest(context.Background()))
	<-store.started
	assert.Equal(t, []string{"loaded"}, store.titles())
}

func TestAutosaveSaveLatestUsesNewestNotifiedDocument(t *testing.T) {
	store := newRecordingStore()
	timers := &fakeClockTimers{}
	a := newTestAutosaver(store, timers)

	a.Notify(titled("first"))
	a.Notify(titled("second"))
	pending := timers.last()
	require.NoError(t, a.SaveLatest(context.Background()))
	<-store.started

	assert.True(t, pending.stopped)
	assert.Equal(t, []string{"second"}, store.titles())
	assert.False(t, a.Status().Dirty)

	a.Stop()
	assert.ErrorIs(t, a.SaveLatest(context.Background()), ErrSessionClosed)
}
