package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hylla/journeymap/internal/analytics"
	"github.com/hylla/journeymap/internal/curve"
	"github.com/hylla/journeymap/internal/domain"
)

// Session is one open editing session over a map. Edits apply to the in-memory document
// synchronously; persistence happens through the session's autosave controller.
type Session struct {
	ID       string
	MapID    string
	Actor    string
	OpenedAt time.Time

	svc      *Service
	autosave *Autosaver

	mu        sync.Mutex
	doc       domain.Document
	personaID *string
	lastSave  *SaveResult
	lastUsed  time.Time
	closed    bool
}

// SessionStatus is the transport view of a session.
type SessionStatus struct {
	ID          string          `json:"id"`
	MapID       string          `json:"map_id"`
	Actor       string          `json:"actor"`
	OpenedAt    time.Time       `json:"opened_at"`
	Autosave    AutosaveStatus  `json:"autosave"`
	Stages      int             `json:"stages"`
	Sections    int             `json:"sections"`
	LastVersion int             `json:"last_version,omitempty"`
	Document    domain.Document `json:"document"`
}

// OpenSessionInput holds input values for opening a session.
type OpenSessionInput struct {
	MapID string
	Actor string
}

// OpenSession loads a map into a new editing session.
func (s *Service) OpenSession(ctx context.Context, in OpenSessionInput) (*Session, error) {
	m, err := s.LoadMap(ctx, in.MapID)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:       s.idGen(),
		MapID:    m.ID,
		Actor:    s.actor(in.Actor),
		OpenedAt: s.clock().UTC(),
		svc:      s,
		doc:      m.Document,
	}
	sess.lastUsed = sess.OpenedAt
	if strings.TrimSpace(sess.ID) == "" {
		return nil, domain.ErrInvalidID
	}
	sess.autosave = NewAutosaver(sess.persist, AutosaveConfig{
		Debounce:    s.cfg.AutosaveDebounce,
		SaveTimeout: s.cfg.SaveTimeout,
		Disabled:    s.cfg.DisableAutosave,
		NewTimer:    s.cfg.NewTimer,
		Clock:       s.clock,
		Logger:      s.logger,
	})
	sess.autosave.Track(m.Document)

	s.sessionsMu.Lock()
	s.sessions[sess.ID] = sess
	s.sessionsMu.Unlock()
	s.logger.Debug("session opened", "session_id", sess.ID, "map_id", sess.MapID)
	return sess, nil
}

// Session returns an open session by id.
func (s *Service) Session(id string) (*Session, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sess, ok := s.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return sess, nil
}

// CloseSession flushes unsaved changes and forgets the session.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	s.sessionsMu.Lock()
	delete(s.sessions, sess.ID)
	s.sessionsMu.Unlock()
	return sess.Close(ctx)
}

// CloseAllSessions flushes and closes every open session. Errors are logged.
func (s *Service) CloseAllSessions(ctx context.Context) {
	s.sessionsMu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		open = append(open, sess)
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()
	for _, sess := range open {
		if err := sess.Close(ctx); err != nil {
			s.logger.Error("session flush failed", "session_id", sess.ID, "map_id", sess.MapID, "err", err)
		}
	}
}

// ExpireIdleSessions flushes and closes sessions idle past SessionIdleTimeout and reports how
// many it closed.
func (s *Service) ExpireIdleSessions(ctx context.Context) int {
	if s.cfg.SessionIdleTimeout <= 0 {
		return 0
	}
	cutoff := s.clock().UTC().Add(-s.cfg.SessionIdleTimeout)
	s.sessionsMu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		if sess.idleSince(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.sessionsMu.Unlock()

	for _, sess := range idle {
		if err := sess.Close(ctx); err != nil {
			s.logger.Error("idle session flush failed", "session_id", sess.ID, "map_id", sess.MapID, "err", err)
			continue
		}
		s.logger.Info("idle session closed", "session_id", sess.ID, "map_id", sess.MapID)
	}
	return len(idle)
}

// Document returns a copy of the current in-memory document.
func (s *Session) Document() domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastUsed.After(cutoff)
}

// Apply runs ops against the in-memory document and schedules an autosave.
// A rejected op leaves the document untouched.
func (s *Session) Apply(ops ...Op) (domain.Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Document{}, ErrSessionClosed
	}
	next, err := ApplyOps(s.doc, ops, s.svc.idGen)
	if err != nil {
		s.mu.Unlock()
		return domain.Document{}, err
	}
	s.doc = next
	s.lastUsed = s.svc.clock().UTC()
	// Notify under s.mu so the autosaver sees edits in the order they were applied.
	s.autosave.Notify(next)
	s.mu.Unlock()
	return next.Clone(), nil
}

// SetPersona changes the classification id sent with the following saves.
func (s *Session) SetPersona(personaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personaID = &personaID
	s.lastUsed = s.svc.clock().UTC()
}

// Save persists the current document immediately.
func (s *Session) Save(ctx context.Context) (SaveResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SaveResult{}, ErrSessionClosed
	}
	s.lastUsed = s.svc.clock().UTC()
	s.mu.Unlock()
	if err := s.autosave.SaveLatest(ctx); err != nil {
		return SaveResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSave == nil {
		return SaveResult{}, nil
	}
	return *s.lastSave, nil
}

// Restore replaces the in-memory document with a version snapshot and schedules an autosave,
// which records the restored state as the newest version.
func (s *Session) Restore(ctx context.Context, number int) (domain.Document, error) {
	doc, err := s.svc.RestoreVersion(ctx, s.MapID, number)
	if err != nil {
		return domain.Document{}, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Document{}, ErrSessionClosed
	}
	s.doc = doc
	s.lastUsed = s.svc.clock().UTC()
	s.autosave.Notify(doc)
	s.mu.Unlock()
	return doc.Clone(), nil
}

// Analytics reduces the in-memory document.
func (s *Session) Analytics(layout curve.Layout) analytics.Report {
	return analytics.Reduce(s.Document(), analytics.Options{TrendLayout: layout})
}

// Status reports the session and its autosave controller.
func (s *Session) Status() SessionStatus {
	doc := s.Document()
	out := SessionStatus{
		ID:       s.ID,
		MapID:    s.MapID,
		Actor:    s.Actor,
		OpenedAt: s.OpenedAt,
		Autosave: s.autosave.Status(),
		Stages:   len(doc.Stages),
		Sections: len(doc.Sections),
		Document: doc,
	}
	s.mu.Lock()
	if s.lastSave != nil && s.lastSave.Version != nil {
		out.LastVersion = s.lastSave.Version.Number
	}
	s.mu.Unlock()
	return out
}

// Close flushes unsaved changes and stops the autosave controller.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.autosave.Flush(ctx)
	s.discard()
	return err
}

// discard stops the session without saving.
func (s *Session) discard() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.autosave.Stop()
}

// persist is the autosave SaveFunc. It runs outside the session lock so edits continue
// while a save is in flight.
func (s *Session) persist(ctx context.Context, doc domain.Document) error {
	s.mu.Lock()
	persona := s.personaID
	s.mu.Unlock()

	res, err := s.svc.SaveMap(ctx, SaveMapInput{
		MapID:     s.MapID,
		Document:  doc,
		PersonaID: persona,
		Actor:     s.Actor,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastSave = &res
	s.mu.Unlock()
	return nil
}
