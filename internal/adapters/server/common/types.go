// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/journeymap/internal/analytics"
	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/curve"
	"github.com/hylla/journeymap/internal/domain"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a request against a resource in the wrong state, such as a closed session.
var ErrConflict = errors.New("conflict")

// ErrUnavailable reports a backing store failure.
var ErrUnavailable = errors.New("service unavailable")

// SectionTypeInfo describes one registered cell variant.
type SectionTypeInfo struct {
	Type        domain.SectionType `json:"type"`
	Label       string             `json:"label"`
	DefaultCell domain.Cell        `json:"default_cell"`
}

// TemplateInfo describes one built-in map template.
type TemplateInfo struct {
	Key      string               `json:"key"`
	Label    string               `json:"label"`
	Stages   []string             `json:"stages,omitempty"`
	Sections []domain.SectionType `json:"sections,omitempty"`
}

// MapSummary is the list form of a journey map.
type MapSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	PersonaID    string    `json:"persona_id,omitempty"`
	Stages       int       `json:"stages"`
	Sections     int       `json:"sections"`
	Completeness float64   `json:"completeness"`
	UpdatedAt    time.Time `json:"updated_at"`
	UpdatedBy    string    `json:"updated_by,omitempty"`
}

// CreateMapRequest captures input for a new map.
type CreateMapRequest struct {
	Title     string `json:"title"`
	Template  string `json:"template,omitempty"`
	PersonaID string `json:"persona_id,omitempty"`
	// Document, when set, is imported through repair instead of building from a template.
	Document *domain.Document `json:"document,omitempty"`
	Actor    string           `json:"actor,omitempty"`
}

// SaveMapRequest replaces a stored document.
type SaveMapRequest struct {
	MapID       string          `json:"-"`
	Document    domain.Document `json:"document"`
	PersonaID   *string         `json:"persona_id,omitempty"`
	SkipVersion bool            `json:"skip_version,omitempty"`
	Actor       string          `json:"actor,omitempty"`
}

// UpdateMapRequest patches map metadata.
type UpdateMapRequest struct {
	MapID     string  `json:"-"`
	Title     *string `json:"title,omitempty"`
	PersonaID *string `json:"persona_id,omitempty"`
	Actor     string  `json:"actor,omitempty"`
}

// CurveRequest projects a map's sentiment curve onto a chart box. Zero sizes keep raw
// stage index and score coordinates.
type CurveRequest struct {
	MapID  string
	Width  float64
	Height float64
}

// CurveView is the transport form of a sentiment curve.
type CurveView struct {
	MapID   string        `json:"map_id"`
	SVGPath string        `json:"svg_path"`
	Points  []curve.Point `json:"points"`
	Samples []curve.Point `json:"samples"`
}

// RestoreVersionRequest restores a version and stores it as the newest one.
type RestoreVersionRequest struct {
	MapID   string `json:"-"`
	Version int    `json:"-"`
	Actor   string `json:"actor,omitempty"`
}

// ListCommentsRequest filters comments on a map.
type ListCommentsRequest struct {
	MapID           string
	SectionID       string
	StageID         string
	IncludeResolved bool
}

// CreateCommentRequest anchors a new comment on a cell coordinate.
type CreateCommentRequest struct {
	MapID     string `json:"-"`
	SectionID string `json:"section_id"`
	StageID   string `json:"stage_id"`
	Content   string `json:"content"`
	Author    string `json:"author,omitempty"`
}

// ResolveCommentRequest resolves or reopens one comment.
type ResolveCommentRequest struct {
	MapID     string `json:"-"`
	CommentID string `json:"-"`
	// Resolved defaults to true when omitted.
	Resolved *bool `json:"resolved,omitempty"`
}

// OpenSessionRequest opens an editing session on a map.
type OpenSessionRequest struct {
	MapID string `json:"-"`
	Actor string `json:"actor,omitempty"`
}

// ApplyOpsRequest applies editing operations to a session.
type ApplyOpsRequest struct {
	SessionID string   `json:"-"`
	Ops       []app.Op `json:"ops"`
}

// SessionRestoreRequest restores a version into an open session.
type SessionRestoreRequest struct {
	SessionID string `json:"-"`
	Version   int    `json:"version"`
}

// MapOpsRequest applies operations to a stored map through a short-lived session and saves.
type MapOpsRequest struct {
	MapID string
	Ops   []app.Op
	Actor string
}

// SearchRequest runs a full-text cell search.
type SearchRequest struct {
	Query string
	MapID string
	Limit int
}

// Service is the app surface shared by the HTTP and MCP transports.
type Service interface {
	SectionTypes() []SectionTypeInfo
	Templates() []TemplateInfo

	ListMaps(context.Context) ([]MapSummary, error)
	CreateMap(context.Context, CreateMapRequest) (domain.JourneyMap, error)
	GetMap(context.Context, string) (domain.JourneyMap, error)
	SaveMap(context.Context, SaveMapRequest) (app.SaveResult, error)
	UpdateMap(context.Context, UpdateMapRequest) (domain.JourneyMap, error)
	DeleteMap(context.Context, string) error
	ApplyMapOps(context.Context, MapOpsRequest) (app.SaveResult, error)

	Analytics(context.Context, string) (analytics.Report, error)
	Curve(context.Context, CurveRequest) (CurveView, error)
	Markdown(context.Context, string) (string, error)

	ListVersions(context.Context, string) ([]domain.VersionSummary, error)
	GetVersion(context.Context, string, int) (domain.Version, error)
	RestoreVersion(context.Context, RestoreVersionRequest) (app.SaveResult, error)

	ListComments(context.Context, ListCommentsRequest) ([]domain.Comment, error)
	CreateComment(context.Context, CreateCommentRequest) (domain.Comment, error)
	ResolveComment(context.Context, ResolveCommentRequest) (domain.Comment, error)
	DeleteComment(context.Context, string, string) error

	OpenSession(context.Context, OpenSessionRequest) (app.SessionStatus, error)
	SessionStatus(context.Context, string) (app.SessionStatus, error)
	ApplyOps(context.Context, ApplyOpsRequest) (app.SessionStatus, error)
	SaveSession(context.Context, string) (app.SaveResult, error)
	RestoreSession(context.Context, SessionRestoreRequest) (app.SessionStatus, error)
	CloseSession(context.Context, string) error

	SearchCells(context.Context, SearchRequest) ([]app.CellMatch, error)
}
