package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/hylla/journeymap/internal/adapters/storage/sqlite"
	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
)

// stubService embeds the transport interface so tests override only what they exercise.
type stubService struct {
	common.Service
	err      error
	lastOps  common.MapOpsRequest
	lastList common.ListCommentsRequest
}

// ListMaps returns the configured error.
func (s *stubService) ListMaps(context.Context) ([]common.MapSummary, error) {
	return nil, s.err
}

// ApplyMapOps records the request.
func (s *stubService) ApplyMapOps(_ context.Context, req common.MapOpsRequest) (app.SaveResult, error) {
	s.lastOps = req
	return app.SaveResult{}, s.err
}

// ListComments records the request.
func (s *stubService) ListComments(_ context.Context, req common.ListCommentsRequest) ([]domain.Comment, error) {
	s.lastList = req
	return []domain.Comment{}, s.err
}

// newIntegrationHandler wires the handler over the real adapter and an in-memory repository.
func newIntegrationHandler(t *testing.T) *Handler {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	var seq atomic.Int64
	idGen := func() string { return "id-" + strconv.FormatInt(seq.Add(1), 10) }
	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	svc := app.NewService(repo, idGen, clock, app.ServiceConfig{DisableAutosave: true})
	t.Cleanup(func() { svc.CloseAllSessions(context.Background()) })
	return NewHandler(common.NewAppServiceAdapter(svc, "tester"))
}

// do sends one request and returns the recorder.
func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes one JSON response body into the requested type.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

// TestHandlerMapLifecycle verifies create, read, save, patch, and delete over the API.
func TestHandlerMapLifecycle(t *testing.T) {
	h := newIntegrationHandler(t)

	rec := do(t, h, http.MethodPost, "/maps", `{"title":"Checkout","template":"standard"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.JourneyMap](t, rec)
	if len(created.Document.Stages) != 5 || created.UpdatedBy != "tester" {
		t.Fatalf("unexpected created map %#v", created)
	}

	rec = do(t, h, http.MethodGet, "/maps/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	doc := domain.SetTitle(created.Document, "Checkout v2")
	payload, _ := json.Marshal(map[string]any{"document": doc, "actor": "ana"})
	rec = do(t, h, http.MethodPut, "/maps/"+created.ID, string(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body.String())
	}
	saved := decodeBody[app.SaveResult](t, rec)
	if saved.Map.Title != "Checkout v2" || saved.Version == nil || saved.Version.Number != 2 {
		t.Fatalf("unexpected save %#v", saved)
	}

	rec = do(t, h, http.MethodPatch, "/maps/"+created.ID, `{"persona_id":"p-9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	if patched := decodeBody[domain.JourneyMap](t, rec); patched.PersonaID != "p-9" {
		t.Fatalf("unexpected persona %q", patched.PersonaID)
	}

	rec = do(t, h, http.MethodGet, "/maps", "")
	list := decodeBody[struct {
		Maps []common.MapSummary `json:"maps"`
	}](t, rec)
	if len(list.Maps) != 1 || list.Maps[0].Stages != 5 {
		t.Fatalf("unexpected list %#v", list)
	}

	rec = do(t, h, http.MethodDelete, "/maps/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/maps/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
	if got := decodeBody[ErrorEnvelope](t, rec); got.Error.Code != "not_found" {
		t.Fatalf("unexpected error code %q", got.Error.Code)
	}
}

// TestHandlerSessionsAndVersions verifies session edits, explicit save, and version restore.
func TestHandlerSessionsAndVersions(t *testing.T) {
	h := newIntegrationHandler(t)
	created := decodeBody[domain.JourneyMap](t, do(t, h, http.MethodPost, "/maps", `{"title":"Flow"}`))

	rec := do(t, h, http.MethodPost, "/maps/"+created.ID+"/sessions", `{"actor":"ana"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session status = %d, body %s", rec.Code, rec.Body.String())
	}
	status := decodeBody[app.SessionStatus](t, rec)

	rec = do(t, h, http.MethodPost, "/sessions/"+status.ID+"/ops", `{"ops":[{"op":"add_stage","name":"Pay"},{"op":"set_title","name":"Flow v2"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ops status = %d, body %s", rec.Code, rec.Body.String())
	}
	status = decodeBody[app.SessionStatus](t, rec)
	if status.Stages != 2 || status.Document.Title != "Flow v2" {
		t.Fatalf("unexpected session status %#v", status)
	}

	rec = do(t, h, http.MethodPost, "/sessions/"+status.ID+"/ops", `{"ops":[{"op":"add_stage","bogus":true}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown op field status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/sessions/"+status.ID+"/save", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/maps/"+created.ID+"/versions", "")
	versions := decodeBody[struct {
		Versions []domain.VersionSummary `json:"versions"`
	}](t, rec)
	if len(versions.Versions) != 2 || versions.Versions[0].Number != 2 || versions.Versions[0].CreatedBy != "ana" {
		t.Fatalf("unexpected versions %#v", versions)
	}

	rec = do(t, h, http.MethodGet, "/maps/"+created.ID+"/versions/1", "")
	if v := decodeBody[domain.Version](t, rec); v.Document.Title != "Flow" {
		t.Fatalf("unexpected version 1 %#v", v)
	}
	rec = do(t, h, http.MethodGet, "/maps/"+created.ID+"/versions/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad version number status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/sessions/"+status.ID+"/restore", `{"version":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("session restore status = %d, body %s", rec.Code, rec.Body.String())
	}
	if restored := decodeBody[app.SessionStatus](t, rec); restored.Document.Title != "Flow" {
		t.Fatalf("unexpected restored session %#v", restored)
	}

	rec = do(t, h, http.MethodDelete, "/sessions/"+status.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/sessions/"+status.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after close = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/maps/"+created.ID+"/versions/2/restore", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("map restore status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[app.SaveResult](t, rec)
	if res.Map.Title != "Flow v2" || res.Version == nil || res.Version.Number != 4 {
		t.Fatalf("unexpected restore result %#v", res)
	}
}

// TestHandlerAnalyticsCurveAndMarkdown verifies read-only projections.
func TestHandlerAnalyticsCurveAndMarkdown(t *testing.T) {
	h := newIntegrationHandler(t)
	created := decodeBody[domain.JourneyMap](t, do(t, h, http.MethodPost, "/maps", `{"title":"Charts","template":"standard"}`))
	sentiment := created.Document.Sections[3].ID
	stage := created.Document.Stages[2].ID

	body := fmt.Sprintf(`{"ops":[{"op":"set_cell","section_id":%q,"stage_id":%q,"cell":{"value":-3}}]}`, sentiment, stage)
	if rec := do(t, h, http.MethodPost, "/maps/"+created.ID+"/ops", body); rec.Code != http.StatusOK {
		t.Fatalf("map ops status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/maps/"+created.ID+"/analytics", "")
	var report struct {
		SentimentByStage []int `json:"sentiment_by_stage"`
		TotalCells       int   `json:"total_cells"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if report.SentimentByStage[2] != -3 || report.TotalCells != 30 {
		t.Fatalf("unexpected report %#v", report)
	}

	rec = do(t, h, http.MethodGet, "/maps/"+created.ID+"/curve?width=500&height=200", "")
	curveView := decodeBody[common.CurveView](t, rec)
	if len(curveView.Points) != 5 || !strings.HasPrefix(curveView.SVGPath, "M ") {
		t.Fatalf("unexpected curve %#v", curveView)
	}
	rec = do(t, h, http.MethodGet, "/maps/"+created.ID+"/curve?width=wide", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad width status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/maps/"+created.ID+"/markdown", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "# Charts") {
		t.Fatalf("unexpected markdown %q", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/section-types", "")
	types := decodeBody[struct {
		SectionTypes []common.SectionTypeInfo `json:"section_types"`
	}](t, rec)
	if len(types.SectionTypes) != len(domain.SectionTypes()) {
		t.Fatalf("unexpected section types %d", len(types.SectionTypes))
	}
}

// TestHandlerCommentsAndSearch verifies comment routes and search.
func TestHandlerCommentsAndSearch(t *testing.T) {
	h := newIntegrationHandler(t)
	created := decodeBody[domain.JourneyMap](t, do(t, h, http.MethodPost, "/maps", `{"title":"Talk","template":"standard"}`))
	goals := created.Document.Sections[0].ID
	stage := created.Document.Stages[0].ID

	rec := do(t, h, http.MethodPost, "/maps/"+created.ID+"/comments", fmt.Sprintf(`{"section_id":%q,"stage_id":%q,"content":"clarify"}`, goals, stage))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create comment status = %d, body %s", rec.Code, rec.Body.String())
	}
	comment := decodeBody[domain.Comment](t, rec)

	rec = do(t, h, http.MethodPost, "/maps/"+created.ID+"/comments", `{"section_id":"","stage_id":"x","content":"orphan"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid anchor status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/maps/"+created.ID+"/comments/"+comment.ID+"/resolve", "")
	if resolved := decodeBody[domain.Comment](t, rec); !resolved.Resolved {
		t.Fatalf("expected resolved comment %#v", resolved)
	}
	rec = do(t, h, http.MethodGet, "/maps/"+created.ID+"/comments?include_resolved=true", "")
	listed := decodeBody[struct {
		Comments []domain.Comment `json:"comments"`
	}](t, rec)
	if len(listed.Comments) != 1 {
		t.Fatalf("unexpected comments %#v", listed)
	}
	rec = do(t, h, http.MethodDelete, "/maps/"+created.ID+"/comments/"+comment.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete comment status = %d", rec.Code)
	}

	body := fmt.Sprintf(`{"ops":[{"op":"set_cell","section_id":%q,"stage_id":%q,"cell":{"items":["Compare prices"]}}]}`, goals, stage)
	do(t, h, http.MethodPost, "/maps/"+created.ID+"/ops", body)
	rec = do(t, h, http.MethodGet, "/search?q=prices&limit=5", "")
	matches := decodeBody[struct {
		Matches []app.CellMatch `json:"matches"`
	}](t, rec)
	if len(matches.Matches) != 1 || matches.Matches[0].SectionID != goals {
		t.Fatalf("unexpected matches %#v", matches)
	}
	if rec := do(t, h, http.MethodGet, "/search?q=", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank query status = %d", rec.Code)
	}
}

// TestHandlerErrorMapping verifies structured status mapping for adapter errors.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		want string
	}{
		{name: "not found", err: fmt.Errorf("x: %w", common.ErrNotFound), code: http.StatusNotFound, want: "not_found"},
		{name: "invalid", err: common.ErrInvalidRequest, code: http.StatusBadRequest, want: "invalid_request"},
		{name: "conflict", err: common.ErrConflict, code: http.StatusConflict, want: "conflict"},
		{name: "unavailable", err: common.ErrUnavailable, code: http.StatusServiceUnavailable, want: "service_unavailable"},
		{name: "internal", err: errors.New("boom"), code: http.StatusInternalServerError, want: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&stubService{err: tc.err})
			rec := do(t, h, http.MethodGet, "/maps", "")
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			if got := decodeBody[ErrorEnvelope](t, rec); got.Error.Code != tc.want {
				t.Fatalf("code = %q, want %q", got.Error.Code, tc.want)
			}
		})
	}
}

// TestHandlerRequestParsing verifies body and query validation before the service is called.
func TestHandlerRequestParsing(t *testing.T) {
	stub := &stubService{}
	h := NewHandler(stub)

	rec := do(t, h, http.MethodPost, "/maps/m1/ops", `{"ops":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty ops status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/maps/m1/ops", `{"ops":[{"op":"set_title","name":"x"}]} {}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("trailing content status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/maps/m1/ops", `{"ops":[{"op":"set_title","name":"x"}],"actor":"bot"}`)
	if rec.Code != http.StatusOK || stub.lastOps.MapID != "m1" || stub.lastOps.Actor != "bot" || stub.lastOps.Ops[0].Kind != app.OpSetTitle {
		t.Fatalf("unexpected ops call %d %#v", rec.Code, stub.lastOps)
	}

	rec = do(t, h, http.MethodGet, "/maps/m1/comments?include_resolved=maybe", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad bool status = %d", rec.Code)
	}
	do(t, h, http.MethodGet, "/maps/m1/comments?section_id=sec&stage_id=st", "")
	if stub.lastList.SectionID != "sec" || stub.lastList.StageID != "st" || stub.lastList.IncludeResolved {
		t.Fatalf("unexpected list call %#v", stub.lastList)
	}

	rec = do(t, h, http.MethodGet, "/nowhere", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d", rec.Code)
	}
	if rec := do(t, NewHandler(nil), http.MethodGet, "/maps", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil service status = %d", rec.Code)
	}
}
