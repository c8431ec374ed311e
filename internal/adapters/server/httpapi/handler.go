// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/journeymap/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.Service
	mux     *http.ServeMux
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the shared transport service.
func NewHandler(service common.Service) *Handler {
	h := &Handler{service: service, mux: http.NewServeMux()}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /section-types", h.handleSectionTypes)
	h.mux.HandleFunc("GET /templates", h.handleTemplates)

	h.mux.HandleFunc("GET /maps", h.handleListMaps)
	h.mux.HandleFunc("POST /maps", h.handleCreateMap)
	h.mux.HandleFunc("GET /maps/{id}", h.handleGetMap)
	h.mux.HandleFunc("PUT /maps/{id}", h.handleSaveMap)
	h.mux.HandleFunc("PATCH /maps/{id}", h.handleUpdateMap)
	h.mux.HandleFunc("DELETE /maps/{id}", h.handleDeleteMap)
	h.mux.HandleFunc("POST /maps/{id}/ops", h.handleMapOps)
	h.mux.HandleFunc("GET /maps/{id}/analytics", h.handleAnalytics)
	h.mux.HandleFunc("GET /maps/{id}/curve", h.handleCurve)
	h.mux.HandleFunc("GET /maps/{id}/markdown", h.handleMarkdown)

	h.mux.HandleFunc("GET /maps/{id}/versions", h.handleListVersions)
	h.mux.HandleFunc("GET /maps/{id}/versions/{n}", h.handleGetVersion)
	h.mux.HandleFunc("POST /maps/{id}/versions/{n}/restore", h.handleRestoreVersion)

	h.mux.HandleFunc("GET /maps/{id}/comments", h.handleListComments)
	h.mux.HandleFunc("POST /maps/{id}/comments", h.handleCreateComment)
	h.mux.HandleFunc("POST /maps/{id}/comments/{cid}/resolve", h.handleResolveComment)
	h.mux.HandleFunc("DELETE /maps/{id}/comments/{cid}", h.handleDeleteComment)

	h.mux.HandleFunc("POST /maps/{id}/sessions", h.handleOpenSession)
	h.mux.HandleFunc("GET /sessions/{sid}", h.handleSessionStatus)
	h.mux.HandleFunc("DELETE /sessions/{sid}", h.handleCloseSession)
	h.mux.HandleFunc("POST /sessions/{sid}/ops", h.handleApplyOps)
	h.mux.HandleFunc("POST /sessions/{sid}/save", h.handleSaveSession)
	h.mux.HandleFunc("POST /sessions/{sid}/restore", h.handleRestoreSession)

	h.mux.HandleFunc("GET /search", h.handleSearch)

	h.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	})
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "journeymap service is not configured",
		})
		return
	}
	h.mux.ServeHTTP(w, r)
}

// handleSectionTypes serves GET `/section-types`.
func (h *Handler) handleSectionTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"section_types": h.service.SectionTypes()})
}

// handleTemplates serves GET `/templates`.
func (h *Handler) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.service.Templates()})
}

// handleListMaps serves GET `/maps`.
func (h *Handler) handleListMaps(w http.ResponseWriter, r *http.Request) {
	maps, err := h.service.ListMaps(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"maps": maps})
}

// handleCreateMap serves POST `/maps`.
func (h *Handler) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	var req common.CreateMapRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	m, err := h.service.CreateMap(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleGetMap serves GET `/maps/{id}`.
func (h *Handler) handleGetMap(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMap(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleSaveMap serves PUT `/maps/{id}`.
func (h *Handler) handleSaveMap(w http.ResponseWriter, r *http.Request) {
	var req common.SaveMapRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.MapID = r.PathValue("id")
	res, err := h.service.SaveMap(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUpdateMap serves PATCH `/maps/{id}`.
func (h *Handler) handleUpdateMap(w http.ResponseWriter, r *http.Request) {
	var req common.UpdateMapRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.MapID = r.PathValue("id")
	m, err := h.service.UpdateMap(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleDeleteMap serves DELETE `/maps/{id}`.
func (h *Handler) handleDeleteMap(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMap(r.Context(), r.PathValue("id")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMapOps serves POST `/maps/{id}/ops`.
func (h *Handler) handleMapOps(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Ops   []json.RawMessage `json:"ops"`
		Actor string            `json:"actor,omitempty"`
	}
	if err := decodeJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	ops, err := decodeOps(payload.Ops)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	res, err := h.service.ApplyMapOps(r.Context(), common.MapOpsRequest{MapID: r.PathValue("id"), Ops: ops, Actor: payload.Actor})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAnalytics serves GET `/maps/{id}/analytics`.
func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Analytics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleCurve serves GET `/maps/{id}/curve?width=&height=`.
func (h *Handler) handleCurve(w http.ResponseWriter, r *http.Request) {
	width, err := queryFloat(r, "width")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	height, err := queryFloat(r, "height")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	view, err := h.service.Curve(r.Context(), common.CurveRequest{MapID: r.PathValue("id"), Width: width, Height: height})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleMarkdown serves GET `/maps/{id}/markdown`.
func (h *Handler) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	md, err := h.service.Markdown(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, md)
}

// handleListVersions serves GET `/maps/{id}/versions`.
func (h *Handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// handleGetVersion serves GET `/maps/{id}/versions/{n}`.
func (h *Handler) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	n, err := pathInt(r, "n")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	v, err := h.service.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleRestoreVersion serves POST `/maps/{id}/versions/{n}/restore`.
func (h *Handler) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	n, err := pathInt(r, "n")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req common.RestoreVersionRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.MapID = r.PathValue("id")
	req.Version = n
	res, err := h.service.RestoreVersion(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListComments serves GET `/maps/{id}/comments`.
func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	includeResolved, err := queryBool(r, "include_resolved")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	comments, err := h.service.ListComments(r.Context(), common.ListCommentsRequest{
		MapID:           r.PathValue("id"),
		SectionID:       r.URL.Query().Get("section_id"),
		StageID:         r.URL.Query().Get("stage_id"),
		IncludeResolved: includeResolved,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// handleCreateComment serves POST `/maps/{id}/comments`.
func (h *Handler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req common.CreateCommentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.MapID = r.PathValue("id")
	c, err := h.service.CreateComment(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleResolveComment serves POST `/maps/{id}/comments/{cid}/resolve`.
func (h *Handler) handleResolveComment(w http.ResponseWriter, r *http.Request) {
	var req common.ResolveCommentRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.MapID = r.PathValue("id")
	req.CommentID = r.PathValue("cid")
	c, err := h.service.ResolveComment(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteComment serves DELETE `/maps/{id}/comments/{cid}`.
func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteComment(r.Context(), r.PathValue("id"), r.PathValue("cid")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOpenSession serves POST `/maps/{id}/sessions`.
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req common.OpenSessionRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.MapID = r.PathValue("id")
	status, err := h.service.OpenSession(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

// handleSessionStatus serves GET `/sessions/{sid}`.
func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.SessionStatus(r.Context(), r.PathValue("sid"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCloseSession serves DELETE `/sessions/{sid}`.
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CloseSession(r.Context(), r.PathValue("sid")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleApplyOps serves POST `/sessions/{sid}/ops`.
func (h *Handler) handleApplyOps(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Ops []json.RawMessage `json:"ops"`
	}
	if err := decodeJSONBody(r.Context(), w, r, &payload); err != nil {
		writeErrorFrom(w, err)
		return
	}
	ops, err := decodeOps(payload.Ops)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	status, err := h.service.ApplyOps(r.Context(), common.ApplyOpsRequest{SessionID: r.PathValue("sid"), Ops: ops})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSaveSession serves POST `/sessions/{sid}/save`.
func (h *Handler) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.SaveSession(r.Context(), r.PathValue("sid"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRestoreSession serves POST `/sessions/{sid}/restore`.
func (h *Handler) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	var req common.SessionRestoreRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.SessionID = r.PathValue("sid")
	status, err := h.service.RestoreSession(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSearch serves GET `/search?q=&map_id=&limit=`.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorFrom(w, fmt.Errorf("limit must be an integer: %w", common.ErrInvalidRequest))
			return
		}
		limit = n
	}
	matches, err := h.service.SearchCells(r.Context(), common.SearchRequest{
		Query: r.URL.Query().Get("q"),
		MapID: r.URL.Query().Get("map_id"),
		Limit: limit,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}
