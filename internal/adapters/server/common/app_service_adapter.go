package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/journeymap/internal/analytics"
	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/curve"
	"github.com/hylla/journeymap/internal/domain"
)

// curveSamplesPerSegment sets sampling density for curve responses.
const curveSamplesPerSegment = 8

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
	actor   string
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance. actor attributes
// writes whose requests carry no actor.
func NewAppServiceAdapter(service *app.Service, actor string) *AppServiceAdapter {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "journeymap-serve"
	}
	return &AppServiceAdapter{service: service, actor: actor}
}

// SectionTypes lists every registered cell variant in registration order.
func (a *AppServiceAdapter) SectionTypes() []SectionTypeInfo {
	types := domain.SectionTypes()
	out := make([]SectionTypeInfo, 0, len(types))
	for _, t := range types {
		v := domain.LookupVariant(t)
		out = append(out, SectionTypeInfo{Type: t, Label: v.Label, DefaultCell: v.Default()})
	}
	return out
}

// Templates lists the built-in map templates.
func (a *AppServiceAdapter) Templates() []TemplateInfo {
	templates := domain.Templates()
	out := make([]TemplateInfo, 0, len(templates))
	for _, t := range templates {
		out = append(out, TemplateInfo{Key: t.Key, Label: t.Label, Stages: t.Stages, Sections: t.Sections})
	}
	return out
}

// ListMaps lists stored maps with per-map completeness.
func (a *AppServiceAdapter) ListMaps(ctx context.Context) ([]MapSummary, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	maps, err := a.service.ListMaps(ctx)
	if err != nil {
		return nil, mapAppError("list maps", err)
	}
	out := make([]MapSummary, 0, len(maps))
	for _, m := range maps {
		report := analytics.Reduce(m.Document, analytics.Options{})
		out = append(out, MapSummary{
			ID:           m.ID,
			Title:        m.Title,
			PersonaID:    m.PersonaID,
			Stages:       len(m.Document.Stages),
			Sections:     len(m.Document.Sections),
			Completeness: report.Completeness,
			UpdatedAt:    m.UpdatedAt,
			UpdatedBy:    m.UpdatedBy,
		})
	}
	return out, nil
}

// CreateMap builds a map from a template, or imports a supplied document through repair.
func (a *AppServiceAdapter) CreateMap(ctx context.Context, in CreateMapRequest) (domain.JourneyMap, error) {
	if err := a.ready(); err != nil {
		return domain.JourneyMap{}, err
	}
	actor := a.actorOr(in.Actor)
	if in.Document != nil {
		doc := *in.Document
		if title := strings.TrimSpace(in.Title); title != "" {
			doc.Title = title
		}
		m, _, err := a.service.ImportDocument(ctx, doc, strings.TrimSpace(in.PersonaID), actor)
		if err != nil {
			return domain.JourneyMap{}, mapAppError("import map", err)
		}
		return m, nil
	}
	m, err := a.service.CreateMap(ctx, app.CreateMapInput{
		Title:     in.Title,
		Template:  in.Template,
		PersonaID: strings.TrimSpace(in.PersonaID),
		Actor:     actor,
	})
	if err != nil {
		return domain.JourneyMap{}, mapAppError("create map", err)
	}
	return m, nil
}

// GetMap loads one map.
func (a *AppServiceAdapter) GetMap(ctx context.Context, mapID string) (domain.JourneyMap, error) {
	if err := a.ready(); err != nil {
		return domain.JourneyMap{}, err
	}
	id, err := requireID("map_id", mapID)
	if err != nil {
		return domain.JourneyMap{}, err
	}
	m, err := a.service.LoadMap(ctx, id)
	if err != nil {
		return domain.JourneyMap{}, mapAppError("get map", err)
	}
	return m, nil
}

// SaveMap replaces a stored document.
func (a *AppServiceAdapter) SaveMap(ctx context.Context, in SaveMapRequest) (app.SaveResult, error) {
	if err := a.ready(); err != nil {
		return app.SaveResult{}, err
	}
	id, err := requireID("map_id", in.MapID)
	if err != nil {
		return app.SaveResult{}, err
	}
	res, err := a.service.SaveMap(ctx, app.SaveMapInput{
		MapID:       id,
		Document:    in.Document,
		PersonaID:   in.PersonaID,
		Actor:       a.actorOr(in.Actor),
		SkipVersion: in.SkipVersion,
	})
	if err != nil {
		return app.SaveResult{}, mapAppError("save map", err)
	}
	return res, nil
}

// UpdateMap patches the title and persona link of a map.
func (a *AppServiceAdapter) UpdateMap(ctx context.Context, in UpdateMapRequest) (domain.JourneyMap, error) {
	if err := a.ready(); err != nil {
		return domain.JourneyMap{}, err
	}
	id, err := requireID("map_id", in.MapID)
	if err != nil {
		return domain.JourneyMap{}, err
	}
	if in.Title == nil && in.PersonaID == nil {
		return domain.JourneyMap{}, fmt.Errorf("update map: title or persona_id is required: %w", ErrInvalidRequest)
	}
	m, err := a.service.LoadMap(ctx, id)
	if err != nil {
		return domain.JourneyMap{}, mapAppError("update map", err)
	}
	doc := m.Document
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.JourneyMap{}, mapAppError("update map", domain.ErrInvalidTitle)
		}
		doc = domain.SetTitle(doc, title)
	}
	res, err := a.service.SaveMap(ctx, app.SaveMapInput{
		MapID:     id,
		Document:  doc,
		PersonaID: in.PersonaID,
		Actor:     a.actorOr(in.Actor),
	})
	if err != nil {
		return domain.JourneyMap{}, mapAppError("update map", err)
	}
	return res.Map, nil
}

// DeleteMap removes a map with its versions and comments.
func (a *AppServiceAdapter) DeleteMap(ctx context.Context, mapID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	id, err := requireID("map_id", mapID)
	if err != nil {
		return err
	}
	return mapAppError("delete map", a.service.DeleteMap(ctx, id))
}

// ApplyMapOps opens a short-lived session, applies ops atomically, and saves explicitly.
func (a *AppServiceAdapter) ApplyMapOps(ctx context.Context, in MapOpsRequest) (app.SaveResult, error) {
	if err := a.ready(); err != nil {
		return app.SaveResult{}, err
	}
	id, err := requireID("map_id", in.MapID)
	if err != nil {
		return app.SaveResult{}, err
	}
	if len(in.Ops) == 0 {
		return app.SaveResult{}, fmt.Errorf("apply ops: ops are required: %w", ErrInvalidRequest)
	}
	sess, err := a.service.OpenSession(ctx, app.OpenSessionInput{MapID: id, Actor: a.actorOr(in.Actor)})
	if err != nil {
		return app.SaveResult{}, mapAppError("apply ops", err)
	}
	defer func() { _ = a.service.CloseSession(context.WithoutCancel(ctx), sess.ID) }()

	if _, err := sess.Apply(in.Ops...); err != nil {
		return app.SaveResult{}, mapAppError("apply ops", err)
	}
	res, err := sess.Save(ctx)
	if err != nil {
		return app.SaveResult{}, mapAppError("apply ops", err)
	}
	return res, nil
}

// Analytics reduces a stored map.
func (a *AppServiceAdapter) Analytics(ctx context.Context, mapID string) (analytics.Report, error) {
	if err := a.ready(); err != nil {
		return analytics.Report{}, err
	}
	id, err := requireID("map_id", mapID)
	if err != nil {
		return analytics.Report{}, err
	}
	report, err := a.service.Analytics(ctx, id, curve.Identity())
	if err != nil {
		return analytics.Report{}, mapAppError("analytics", err)
	}
	return report, nil
}

// Curve projects a map's sentiment curve.
func (a *AppServiceAdapter) Curve(ctx context.Context, in CurveRequest) (CurveView, error) {
	if err := a.ready(); err != nil {
		return CurveView{}, err
	}
	id, err := requireID("map_id", in.MapID)
	if err != nil {
		return CurveView{}, err
	}
	if in.Width < 0 || in.Height < 0 {
		return CurveView{}, fmt.Errorf("curve: width and height must not be negative: %w", ErrInvalidRequest)
	}
	layout := curve.Identity()
	if in.Width > 0 && in.Height > 0 {
		layout = curve.ChartLayout(in.Width, in.Height)
	}
	path, err := a.service.SentimentCurve(ctx, id, layout)
	if err != nil {
		return CurveView{}, mapAppError("curve", err)
	}
	view := CurveView{MapID: id, SVGPath: path.SVG(), Points: path.Points, Samples: path.Sample(curveSamplesPerSegment)}
	if view.Points == nil {
		view.Points = []curve.Point{}
	}
	if view.Samples == nil {
		view.Samples = []curve.Point{}
	}
	return view, nil
}

// Markdown renders a stored map with its analytics summary.
func (a *AppServiceAdapter) Markdown(ctx context.Context, mapID string) (string, error) {
	m, err := a.GetMap(ctx, mapID)
	if err != nil {
		return "", err
	}
	return app.RenderMarkdown(m.Document, analytics.Reduce(m.Document, analytics.Options{})), nil
}

// ListVersions lists versions newest first.
func (a *AppServiceAdapter) ListVersions(ctx context.Context, mapID string) ([]domain.VersionSummary, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	id, err := requireID("map_id", mapID)
	if err != nil {
		return nil, err
	}
	versions, err := a.service.ListVersions(ctx, id)
	if err != nil {
		return nil, mapAppError("list versions", err)
	}
	return versions, nil
}

// GetVersion loads one version snapshot.
func (a *AppServiceAdapter) GetVersion(ctx context.Context, mapID string, number int) (domain.Version, error) {
	if err := a.ready(); err != nil {
		return domain.Version{}, err
	}
	id, err := requireID("map_id", mapID)
	if err != nil {
		return domain.Version{}, err
	}
	v, err := a.service.GetVersion(ctx, id, number)
	if err != nil {
		return domain.Version{}, mapAppError("get version", err)
	}
	return v, nil
}

// RestoreVersion loads a version snapshot and saves it as the newest version.
func (a *AppServiceAdapter) RestoreVersion(ctx context.Context, in RestoreVersionRequest) (app.SaveResult, error) {
	if err := a.ready(); err != nil {
		return app.SaveResult{}, err
	}
	id, err := requireID("map_id", in.MapID)
	if err != nil {
		return app.SaveResult{}, err
	}
	doc, err := a.service.RestoreVersion(ctx, id, in.Version)
	if err != nil {
		return app.SaveResult{}, mapAppError("restore version", err)
	}
	res, err := a.service.SaveMap(ctx, app.SaveMapInput{MapID: id, Document: doc, Actor: a.actorOr(in.Actor)})
	if err != nil {
		return app.SaveResult{}, mapAppError("restore version", err)
	}
	return res, nil
}

// ListComments lists comments on a map.
func (a *AppServiceAdapter) ListComments(ctx context.Context, in ListCommentsRequest) ([]domain.Comment, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	id, err := requireID("map_id", in.MapID)
	if err != nil {
		return nil, err
	}
	comments, err := a.service.ListComments(ctx, app.CommentFilter{
		MapID:           id,
		SectionID:       strings.TrimSpace(in.SectionID),
		StageID:         strings.TrimSpace(in.StageID),
		IncludeResolved: in.IncludeResolved,
	})
	if err != nil {
		return nil, mapAppError("list comments", err)
	}
	return comments, nil
}

// CreateComment anchors a comment on a cell coordinate.
func (a *AppServiceAdapter) CreateComment(ctx context.Context, in CreateCommentRequest) (domain.Comment, error) {
	if err := a.ready(); err != nil {
		return domain.Comment{}, err
	}
	id, err := requireID("map_id", in.MapID)
	if err != nil {
		return domain.Comment{}, err
	}
	c, err := a.service.CreateComment(ctx, app.CreateCommentInput{
		MapID:      id,
		SectionID:  in.SectionID,
		StageID:    in.StageID,
		Content:    in.Content,
		AuthorName: a.actorOr(in.Author),
	})
	if err != nil {
		return domain.Comment{}, mapAppError("create comment", err)
	}
	return c, nil
}

// ResolveComment resolves or reopens one comment.
func (a *AppServiceAdapter) ResolveComment(ctx context.Context, in ResolveCommentRequest) (domain.Comment, error) {
	if err := a.ready(); err != nil {
		return domain.Comment{}, err
	}
	mapID, err := requireID("map_id", in.MapID)
	if err != nil {
		return domain.Comment{}, err
	}
	commentID, err := requireID("comment_id", in.CommentID)
	if err != nil {
		return domain.Comment{}, err
	}
	resolved := true
	if in.Resolved != nil {
		resolved = *in.Resolved
	}
	c, err := a.service.ResolveComment(ctx, mapID, commentID, resolved)
	if err != nil {
		return domain.Comment{}, mapAppError("resolve comment", err)
	}
	return c, nil
}

// DeleteComment removes one comment.
func (a *AppServiceAdapter) DeleteComment(ctx context.Context, mapID, commentID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	mid, err := requireID("map_id", mapID)
	if err != nil {
		return err
	}
	cid, err := requireID("comment_id", commentID)
	if err != nil {
		return err
	}
	return mapAppError("delete comment", a.service.DeleteComment(ctx, mid, cid))
}

// OpenSession opens an editing session on a map.
func (a *AppServiceAdapter) OpenSession(ctx context.Context, in OpenSessionRequest) (app.SessionStatus, error) {
	if err := a.ready(); err != nil {
		return app.SessionStatus{}, err
	}
	id, err := requireID("map_id", in.MapID)
	if err != nil {
		return app.SessionStatus{}, err
	}
	sess, err := a.service.OpenSession(ctx, app.OpenSessionInput{MapID: id, Actor: a.actorOr(in.Actor)})
	if err != nil {
		return app.SessionStatus{}, mapAppError("open session", err)
	}
	return sess.Status(), nil
}

// SessionStatus reports one open session.
func (a *AppServiceAdapter) SessionStatus(_ context.Context, sessionID string) (app.SessionStatus, error) {
	sess, err := a.session(sessionID)
	if err != nil {
		return app.SessionStatus{}, err
	}
	return sess.Status(), nil
}

// ApplyOps applies operations to an open session. Persistence follows the session's autosave.
func (a *AppServiceAdapter) ApplyOps(_ context.Context, in ApplyOpsRequest) (app.SessionStatus, error) {
	sess, err := a.session(in.SessionID)
	if err != nil {
		return app.SessionStatus{}, err
	}
	if len(in.Ops) == 0 {
		return app.SessionStatus{}, fmt.Errorf("apply ops: ops are required: %w", ErrInvalidRequest)
	}
	if _, err := sess.Apply(in.Ops...); err != nil {
		return app.SessionStatus{}, mapAppError("apply ops", err)
	}
	return sess.Status(), nil
}

// SaveSession saves an open session explicitly.
func (a *AppServiceAdapter) SaveSession(ctx context.Context, sessionID string) (app.SaveResult, error) {
	sess, err := a.session(sessionID)
	if err != nil {
		return app.SaveResult{}, err
	}
	res, err := sess.Save(ctx)
	if err != nil {
		return app.SaveResult{}, mapAppError("save session", err)
	}
	return res, nil
}

// RestoreSession loads a version into an open session.
func (a *AppServiceAdapter) RestoreSession(ctx context.Context, in SessionRestoreRequest) (app.SessionStatus, error) {
	sess, err := a.session(in.SessionID)
	if err != nil {
		return app.SessionStatus{}, err
	}
	if _, err := sess.Restore(ctx, in.Version); err != nil {
		return app.SessionStatus{}, mapAppError("restore session", err)
	}
	return sess.Status(), nil
}

// CloseSession flushes and closes an open session.
func (a *AppServiceAdapter) CloseSession(ctx context.Context, sessionID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	id, err := requireID("session_id", sessionID)
	if err != nil {
		return err
	}
	return mapAppError("close session", a.service.CloseSession(ctx, id))
}

// SearchCells runs a full-text cell search.
func (a *AppServiceAdapter) SearchCells(ctx context.Context, in SearchRequest) ([]app.CellMatch, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("search: query is required: %w", ErrInvalidRequest)
	}
	if in.Limit < 0 {
		return nil, fmt.Errorf("search: limit must not be negative: %w", ErrInvalidRequest)
	}
	matches, err := a.service.SearchCells(ctx, app.SearchCellsInput{Query: in.Query, MapID: in.MapID, Limit: in.Limit})
	if err != nil {
		return nil, mapAppError("search", err)
	}
	return matches, nil
}

func (a *AppServiceAdapter) session(sessionID string) (*app.Session, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	id, err := requireID("session_id", sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := a.service.Session(id)
	if err != nil {
		return nil, mapAppError("session", err)
	}
	return sess, nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	return nil
}

func (a *AppServiceAdapter) actorOr(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return a.actor
}

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is required: %w", field, ErrInvalidRequest)
	}
	return value, nil
}

// mapAppError maps app and domain errors onto transport error categories.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrSessionClosed):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidSectionType),
		errors.Is(err, domain.ErrInvalidDocument),
		errors.Is(err, domain.ErrInvalidContent),
		errors.Is(err, domain.ErrInvalidTargetID),
		errors.Is(err, domain.ErrInvalidVersion),
		errors.Is(err, app.ErrInvalidOperation),
		errors.Is(err, app.ErrInvalidSnapshot),
		errors.Is(err, app.ErrUnsupportedFormat),
		errors.Is(err, app.ErrUnknownTemplate):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	case errors.Is(err, app.ErrPersistence):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnavailable, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}

var _ Service = (*AppServiceAdapter)(nil)
