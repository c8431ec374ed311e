package app

import (
	"context"
	"sync"
	"time"

	"github.com/hylla/journeymap/internal/domain"
)

// SaveState is the autosave controller state.
type SaveState string

// Autosave states.
const (
	SaveStateIdle    SaveState = "idle"
	SaveStatePending SaveState = "pending_save"
	SaveStateSaving  SaveState = "saving"
	SaveStateFailed  SaveState = "save_failed"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules fire to run once after d.
type TimerFunc func(d time.Duration, fire func()) Timer

func realTimer(d time.Duration, fire func()) Timer {
	return time.AfterFunc(d, fire)
}

// SaveFunc persists one full document snapshot.
type SaveFunc func(ctx context.Context, doc domain.Document) error

// AutosaveStatus is a point-in-time view of the controller.
type AutosaveStatus struct {
	State       SaveState  `json:"state"`
	Dirty       bool       `json:"dirty"`
	Queued      bool       `json:"queued"`
	InFlight    int        `json:"in_flight"`
	Saves       int        `json:"saves"`
	Failures    int        `json:"failures"`
	LastSavedAt *time.Time `json:"last_saved_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// AutosaveConfig holds configuration for one autosave controller.
type AutosaveConfig struct {
	Debounce    time.Duration
	SaveTimeout time.Duration
	Disabled    bool
	NewTimer    TimerFunc
	Clock       Clock
	Logger      Logger
}

// Autosaver owns the debounced save cycle for one open document:
//
//	Idle -> PendingSave -> Saving -> Idle | SaveFailed
//
// Every change while Idle, PendingSave or SaveFailed restarts the debounce window. A change
// that arrives while a save is in flight is queued and starts a fresh window once the last
// in-flight save resolves. Failures are recorded and never retried by the controller; the next
// change or an explicit save tries again. An explicit save cancels any pending window.
type Autosaver struct {
	save SaveFunc
	cfg  AutosaveConfig

	mu          sync.Mutex
	state       SaveState
	timer       Timer
	generation  uint64
	latest      domain.Document
	dirty       bool
	queued      bool
	inFlight    int
	saves       int
	failures    int
	lastErr     error
	lastSavedAt time.Time
	stopped     bool
}

// NewAutosaver constructs a controller that persists through save.
func NewAutosaver(save SaveFunc, cfg AutosaveConfig) *Autosaver {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultAutosaveDebounce
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 30 * time.Second
	}
	if cfg.NewTimer == nil {
		cfg.NewTimer = realTimer
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = DiscardLogger{}
	}
	return &Autosaver{save: save, cfg: cfg, state: SaveStateIdle}
}

// Notify records doc as the newest unsaved document and schedules a debounced save.
func (a *Autosaver) Notify(doc domain.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.latest = doc.Clone()
	a.dirty = true
	if a.cfg.Disabled {
		return
	}
	if a.inFlight > 0 {
		a.queued = true
		return
	}
	a.scheduleLocked()
}

// Track records doc as the saved baseline without marking it dirty.
func (a *Autosaver) Track(doc domain.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.latest = doc.Clone()
}

// SaveNow saves doc immediately, cancelling any pending debounce window. It may overlap a
// debounced save that is already in flight; whichever finishes last wins in storage.
func (a *Autosaver) SaveNow(ctx context.Context, doc domain.Document) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrSessionClosed
	}
	a.latest = doc.Clone()
	return a.saveLatestLocked(ctx)
}

// SaveLatest saves the newest recorded document immediately, cancelling any pending window.
func (a *Autosaver) SaveLatest(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrSessionClosed
	}
	return a.saveLatestLocked(ctx)
}

// Flush saves the newest document when it has unsaved changes.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped || !a.dirty {
		a.mu.Unlock()
		return nil
	}
	return a.saveLatestLocked(ctx)
}

// saveLatestLocked is entered with a.mu held and releases it before saving.
func (a *Autosaver) saveLatestLocked(ctx context.Context) error {
	a.cancelTimerLocked()
	snapshot := a.beginSaveLocked()
	a.mu.Unlock()

	err := a.save(ctx, snapshot)
	a.finish(err)
	return err
}

// Stop cancels any pending window and ignores later changes. In-flight saves still finish.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelTimerLocked()
	a.stopped = true
	if a.inFlight == 0 {
		a.state = SaveStateIdle
	}
}

// Status returns the controller's current state.
func (a *Autosaver) Status() AutosaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := AutosaveStatus{
		State:    a.state,
		Dirty:    a.dirty,
		Queued:   a.queued,
		InFlight: a.inFlight,
		Saves:    a.saves,
		Failures: a.failures,
	}
	if !a.lastSavedAt.IsZero() {
		ts := a.lastSavedAt
		out.LastSavedAt = &ts
	}
	if a.lastErr != nil {
		out.LastError = a.lastErr.Error()
	}
	return out
}

func (a *Autosaver) scheduleLocked() {
	a.cancelTimerLocked()
	a.generation++
	gen := a.generation
	a.state = SaveStatePending
	a.timer = a.cfg.NewTimer(a.cfg.Debounce, func() { a.fire(gen) })
}

func (a *Autosaver) cancelTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	// Bumping the generation makes a callback that already started a no-op.
	a.generation++
}

func (a *Autosaver) beginSaveLocked() domain.Document {
	a.dirty = false
	a.queued = false
	a.inFlight++
	a.state = SaveStateSaving
	return a.latest.Clone()
}

func (a *Autosaver) fire(gen uint64) {
	a.mu.Lock()
	if a.stopped || gen != a.generation || a.state != SaveStatePending {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	snapshot := a.beginSaveLocked()
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SaveTimeout)
	defer cancel()
	err := a.save(ctx, snapshot)
	if err != nil {
		a.cfg.Logger.Warn("autosave failed", "err", err)
	}
	a.finish(err)
}

func (a *Autosaver) finish(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight--
	if err != nil {
		a.failures++
		a.lastErr = err
		a.dirty = true
	} else {
		a.saves++
		a.lastErr = nil
		a.lastSavedAt = a.cfg.Clock().UTC()
	}
	if a.inFlight > 0 {
		return
	}
	switch {
	case a.queued && !a.stopped:
		a.queued = false
		a.scheduleLocked()
	case a.lastErr != nil:
		a.state = SaveStateFailed
	default:
		a.state = SaveStateIdle
	}
}
