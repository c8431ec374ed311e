package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hylla/journeymap/internal/analytics"
	"github.com/hylla/journeymap/internal/curve"
	"github.com/hylla/journeymap/internal/domain"
)

// DefaultAutosaveDebounce is the quiet period after the last edit before an automatic save.
const DefaultAutosaveDebounce = 30 * time.Second

// DefaultActor attributes saves and versions when no actor is supplied.
const DefaultActor = "journeymap-user"

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultTitle      string
	DefaultStages     []string
	DisableVersioning bool
	DefaultActor      string
	AutosaveDebounce  time.Duration
	DisableAutosave   bool
	SaveTimeout       time.Duration
	// SessionIdleTimeout closes sessions with no edits or saves for this long. Zero keeps them open.
	SessionIdleTimeout time.Duration
	// NewTimer schedules debounce callbacks. Nil uses time.AfterFunc.
	NewTimer TimerFunc
	Indexer  Indexer
	Logger   Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service coordinates maps, versions, comments, and open editing sessions.
type Service struct {
	repo   Repository
	idGen  IDGenerator
	clock  Clock
	cfg    ServiceConfig
	index  Indexer
	logger Logger

	sessionsMu sync.Mutex
	sessions   map[string]*Session
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if strings.TrimSpace(cfg.DefaultTitle) == "" {
		cfg.DefaultTitle = domain.DefaultDocumentTitle
	}
	if strings.TrimSpace(cfg.DefaultActor) == "" {
		cfg.DefaultActor = DefaultActor
	}
	if cfg.AutosaveDebounce <= 0 {
		cfg.AutosaveDebounce = DefaultAutosaveDebounce
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 30 * time.Second
	}
	if cfg.NewTimer == nil {
		cfg.NewTimer = realTimer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = DiscardLogger{}
	}
	return &Service{
		repo:     repo,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		index:    cfg.Indexer,
		logger:   logger,
		sessions: map[string]*Session{},
	}
}

// CreateMapInput holds input values for create map operations.
type CreateMapInput struct {
	Title     string
	Template  string
	PersonaID string
	Actor     string
}

// CreateMap creates a map from a built-in template and records its first version.
func (s *Service) CreateMap(ctx context.Context, in CreateMapInput) (domain.JourneyMap, error) {
	tmpl, ok := domain.LookupTemplate(in.Template)
	if !ok {
		return domain.JourneyMap{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, in.Template)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = s.cfg.DefaultTitle
	}
	doc, err := tmpl.Build(title, s.cfg.DefaultStages, s.idGen)
	if err != nil {
		return domain.JourneyMap{}, err
	}
	return s.createFromDocument(ctx, doc, in.PersonaID, in.Actor)
}

// ImportDocument stores an externally produced document as a new map after repairing it.
func (s *Service) ImportDocument(ctx context.Context, doc domain.Document, personaID, actor string) (domain.JourneyMap, domain.RepairReport, error) {
	repaired, report, err := domain.Repair(doc, s.idGen)
	if err != nil {
		return domain.JourneyMap{}, report, err
	}
	if report.Changed() {
		s.logger.Info("repaired imported document", "title", repaired.Title, "backfilled_ids", report.BackfilledStageIDs+report.BackfilledSectionIDs, "deduped_ids", report.DedupedStageIDs+report.DedupedSectionIDs)
	}
	m, err := s.createFromDocument(ctx, repaired, personaID, actor)
	return m, report, err
}

func (s *Service) createFromDocument(ctx context.Context, doc domain.Document, personaID, actor string) (domain.JourneyMap, error) {
	now := s.clock()
	m, err := domain.NewJourneyMap(s.idGen(), doc, now)
	if err != nil {
		return domain.JourneyMap{}, err
	}
	m.PersonaID = strings.TrimSpace(personaID)
	m.UpdatedBy = s.actor(actor)
	if err := s.repo.CreateJourneyMap(ctx, m); err != nil {
		return domain.JourneyMap{}, persistenceError("create map", err)
	}
	if !s.cfg.DisableVersioning {
		if _, err := s.repo.AppendVersion(ctx, m.ID, m.Document, m.UpdatedBy, now); err != nil {
			return domain.JourneyMap{}, persistenceError("append version", err)
		}
	}
	s.reindex(ctx, m)
	return m, nil
}

// LoadMap fetches a map and normalizes its document. A stored document without stages comes
// back with one seed stage; one without sections comes back with an empty list.
func (s *Service) LoadMap(ctx context.Context, mapID string) (domain.JourneyMap, error) {
	mapID = strings.TrimSpace(mapID)
	if mapID == "" {
		return domain.JourneyMap{}, domain.ErrInvalidID
	}
	m, err := s.repo.GetJourneyMap(ctx, mapID)
	if err != nil {
		return domain.JourneyMap{}, persistenceError("load map", err)
	}
	doc, report, err := domain.Repair(m.Document, s.idGen)
	if err != nil {
		return domain.JourneyMap{}, err
	}
	if report.Changed() {
		s.logger.Debug("normalized stored document", "map_id", mapID, "seeded_stage", report.SeededStage)
	}
	m.Document = doc
	return m, nil
}

// ListMaps lists stored maps ordered by most recent update.
func (s *Service) ListMaps(ctx context.Context) ([]domain.JourneyMap, error) {
	maps, err := s.repo.ListJourneyMaps(ctx)
	if err != nil {
		return nil, persistenceError("list maps", err)
	}
	slices.SortStableFunc(maps, func(a, b domain.JourneyMap) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return maps, nil
}

// DeleteMap removes a map with its versions and comments, and closes its open sessions.
func (s *Service) DeleteMap(ctx context.Context, mapID string) error {
	mapID = strings.TrimSpace(mapID)
	if mapID == "" {
		return domain.ErrInvalidID
	}
	s.sessionsMu.Lock()
	for id, sess := range s.sessions {
		if sess.MapID == mapID {
			sess.discard()
			delete(s.sessions, id)
		}
	}
	s.sessionsMu.Unlock()

	if err := s.repo.DeleteJourneyMap(ctx, mapID); err != nil {
		return persistenceError("delete map", err)
	}
	if s.index != nil {
		if err := s.index.RemoveMap(ctx, mapID); err != nil {
			s.logger.Warn("search index removal failed", "map_id", mapID, "err", err)
		}
	}
	return nil
}

// SaveMapInput holds input values for save operations.
type SaveMapInput struct {
	MapID    string
	Document domain.Document
	// PersonaID links a classification to the map. Nil leaves the current link; an empty
	// string clears it.
	PersonaID   *string
	Actor       string
	SkipVersion bool
}

// SaveResult reports what a save stored.
type SaveResult struct {
	Map     domain.JourneyMap   `json:"map"`
	Version *domain.Version     `json:"version,omitempty"`
	Repair  domain.RepairReport `json:"repair"`
}

// SaveMap persists the full document for a map and appends a version snapshot.
// Saves carry whole documents, so the last one to complete wins.
func (s *Service) SaveMap(ctx context.Context, in SaveMapInput) (SaveResult, error) {
	mapID := strings.TrimSpace(in.MapID)
	if mapID == "" {
		return SaveResult{}, domain.ErrInvalidID
	}
	doc, report, err := domain.Repair(in.Document, s.idGen)
	if err != nil {
		return SaveResult{}, err
	}
	m, err := s.repo.GetJourneyMap(ctx, mapID)
	if err != nil {
		return SaveResult{}, persistenceError("save map", err)
	}

	now := s.clock()
	actor := s.actor(in.Actor)
	m.ReplaceDocument(doc, actor, now)
	if in.PersonaID != nil {
		m.PersonaID = strings.TrimSpace(*in.PersonaID)
	}
	if err := s.repo.UpdateJourneyMap(ctx, m); err != nil {
		return SaveResult{}, persistenceError("save map", err)
	}

	out := SaveResult{Map: m, Repair: report}
	if !s.cfg.DisableVersioning && !in.SkipVersion {
		v, err := s.repo.AppendVersion(ctx, m.ID, doc, actor, now)
		if err != nil {
			return out, persistenceError("append version", err)
		}
		out.Version = &v
	}
	s.reindex(ctx, m)
	return out, nil
}

// RenameMap retitles a map's document and saves it.
func (s *Service) RenameMap(ctx context.Context, mapID, title, actor string) (SaveResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return SaveResult{}, domain.ErrInvalidTitle
	}
	m, err := s.LoadMap(ctx, mapID)
	if err != nil {
		return SaveResult{}, err
	}
	return s.SaveMap(ctx, SaveMapInput{MapID: m.ID, Document: domain.SetTitle(m.Document, title), Actor: actor})
}

// ListVersions lists a map's versions newest first.
func (s *Service) ListVersions(ctx context.Context, mapID string) ([]domain.VersionSummary, error) {
	if _, err := s.repo.GetJourneyMap(ctx, mapID); err != nil {
		return nil, persistenceError("list versions", err)
	}
	versions, err := s.repo.ListVersions(ctx, mapID)
	if err != nil {
		return nil, persistenceError("list versions", err)
	}
	slices.SortStableFunc(versions, func(a, b domain.VersionSummary) int {
		return b.Number - a.Number
	})
	return versions, nil
}

// GetVersion returns one version with its full snapshot.
func (s *Service) GetVersion(ctx context.Context, mapID string, number int) (domain.Version, error) {
	if number <= 0 {
		return domain.Version{}, domain.ErrInvalidVersion
	}
	v, err := s.repo.GetVersion(ctx, mapID, number)
	if err != nil {
		return domain.Version{}, persistenceError("get version", err)
	}
	return v, nil
}

// RestoreVersion returns a copy of a version's snapshot to use as the new in-memory document.
// Nothing is persisted; the caller saves when it wants the restored state kept, which then
// becomes the newest version.
func (s *Service) RestoreVersion(ctx context.Context, mapID string, number int) (domain.Document, error) {
	v, err := s.GetVersion(ctx, mapID, number)
	if err != nil {
		return domain.Document{}, err
	}
	doc, _, err := domain.Repair(v.Document, s.idGen)
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Analytics reduces a stored map. The trend is projected with layout.
func (s *Service) Analytics(ctx context.Context, mapID string, layout curve.Layout) (analytics.Report, error) {
	m, err := s.LoadMap(ctx, mapID)
	if err != nil {
		return analytics.Report{}, err
	}
	return analytics.Reduce(m.Document, analytics.Options{TrendLayout: layout}), nil
}

// SentimentCurve interpolates a stored map's per-stage sentiment onto layout.
func (s *Service) SentimentCurve(ctx context.Context, mapID string, layout curve.Layout) (curve.Path, error) {
	report, err := s.Analytics(ctx, mapID, layout)
	if err != nil {
		return curve.Path{}, err
	}
	return report.Trend.Path, nil
}

// CreateCommentInput holds input values for comment creation.
type CreateCommentInput struct {
	MapID      string
	SectionID  string
	StageID    string
	Content    string
	AuthorName string
}

// CreateComment anchors a new comment at (section, stage) on a map.
func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (domain.Comment, error) {
	if _, err := s.repo.GetJourneyMap(ctx, strings.TrimSpace(in.MapID)); err != nil {
		return domain.Comment{}, persistenceError("create comment", err)
	}
	author := in.AuthorName
	if strings.TrimSpace(author) == "" {
		author = s.cfg.DefaultActor
	}
	comment, err := domain.NewComment(domain.CommentInput{
		ID:         s.idGen(),
		Anchor:     domain.CommentAnchor{MapID: in.MapID, SectionID: in.SectionID, StageID: in.StageID},
		Content:    in.Content,
		AuthorName: author,
	}, s.clock())
	if err != nil {
		return domain.Comment{}, err
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return domain.Comment{}, persistenceError("create comment", err)
	}
	return comment, nil
}

// ListComments lists comments on a map, optionally narrowed to one coordinate.
func (s *Service) ListComments(ctx context.Context, filter CommentFilter) ([]domain.Comment, error) {
	filter.MapID = strings.TrimSpace(filter.MapID)
	if filter.MapID == "" {
		return nil, domain.ErrInvalidID
	}
	comments, err := s.repo.ListComments(ctx, filter)
	if err != nil {
		return nil, persistenceError("list comments", err)
	}
	slices.SortStableFunc(comments, func(a, b domain.Comment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return comments, nil
}

// ResolveComment resolves or reopens a comment.
func (s *Service) ResolveComment(ctx context.Context, mapID, commentID string, resolved bool) (domain.Comment, error) {
	comment, err := s.lookupComment(ctx, mapID, commentID)
	if err != nil {
		return domain.Comment{}, err
	}
	comment.SetResolved(resolved, s.clock())
	if err := s.repo.UpdateComment(ctx, comment); err != nil {
		return domain.Comment{}, persistenceError("resolve comment", err)
	}
	return comment, nil
}

// DeleteComment removes a comment.
func (s *Service) DeleteComment(ctx context.Context, mapID, commentID string) error {
	if _, err := s.lookupComment(ctx, mapID, commentID); err != nil {
		return err
	}
	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return persistenceError("delete comment", err)
	}
	return nil
}

func (s *Service) lookupComment(ctx context.Context, mapID, commentID string) (domain.Comment, error) {
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return domain.Comment{}, domain.ErrInvalidID
	}
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return domain.Comment{}, persistenceError("get comment", err)
	}
	if mapID = strings.TrimSpace(mapID); mapID != "" && comment.MapID != mapID {
		return domain.Comment{}, fmt.Errorf("comment %q on map %q: %w", commentID, mapID, ErrNotFound)
	}
	return comment, nil
}

func (s *Service) actor(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return s.cfg.DefaultActor
}

// reindex pushes a map's cell text to the search index. Failures are logged, not returned.
func (s *Service) reindex(ctx context.Context, m domain.JourneyMap) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexMap(ctx, m.ID, ExtractCellRecords(m)); err != nil {
		s.logger.Warn("search indexing failed", "map_id", m.ID, "err", err)
	}
}

