package app

import (
	"context"
	"time"

	"github.com/hylla/journeymap/internal/domain"
)

// Repository is the storage collaborator for maps, their version history, and comments.
type Repository interface {
	CreateJourneyMap(context.Context, domain.JourneyMap) error
	UpdateJourneyMap(context.Context, domain.JourneyMap) error
	GetJourneyMap(context.Context, string) (domain.JourneyMap, error)
	ListJourneyMaps(context.Context) ([]domain.JourneyMap, error)
	DeleteJourneyMap(context.Context, string) error

	// AppendVersion stores a snapshot under the next version number for the map.
	// Numbers are never reused, even across deletions of individual versions.
	AppendVersion(ctx context.Context, mapID string, doc domain.Document, createdBy string, at time.Time) (domain.Version, error)
	// PutVersion stores a version under its own number, for snapshot import. Stored versions
	// are immutable: a taken number yields ErrVersionExists.
	PutVersion(context.Context, domain.Version) error
	// ListVersions returns summaries newest first.
	ListVersions(context.Context, string) ([]domain.VersionSummary, error)
	GetVersion(context.Context, string, int) (domain.Version, error)

	CreateComment(context.Context, domain.Comment) error
	UpdateComment(context.Context, domain.Comment) error
	GetComment(context.Context, string) (domain.Comment, error)
	ListComments(context.Context, CommentFilter) ([]domain.Comment, error)
	DeleteComment(context.Context, string) error
}

// CommentFilter narrows comment listings. Empty ids match everything.
type CommentFilter struct {
	MapID           string
	SectionID       string
	StageID         string
	IncludeResolved bool
}

// Indexer is an optional full-text index over extracted cell text.
type Indexer interface {
	IndexMap(ctx context.Context, mapID string, records []CellRecord) error
	RemoveMap(ctx context.Context, mapID string) error
	SearchCells(ctx context.Context, in SearchCellsInput) ([]CellMatch, error)
	Healthy() bool
}

// Logger is the structured logging surface used by the app layer.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// DiscardLogger drops every entry.
type DiscardLogger struct{}

func (DiscardLogger) Debug(any, ...any) {}
func (DiscardLogger) Info(any, ...any)  {}
func (DiscardLogger) Warn(any, ...any)  {}
func (DiscardLogger) Error(any, ...any) {}
