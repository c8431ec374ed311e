package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/hylla/journeymap/internal/adapters/storage/sqlite"
	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// newTestService wires the shared adapter over an in-memory sqlite repository.
func newTestService(t *testing.T) *common.AppServiceAdapter {
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
	return common.NewAppServiceAdapter(svc, "mcp-test")
}

// newTestServer starts an MCP endpoint over the service and seeds one map.
func newTestServer(t *testing.T) (*httptest.Server, domain.JourneyMap) {
	t.Helper()
	service := newTestService(t)
	jm, err := service.CreateMap(context.Background(), common.CreateMapRequest{Title: "Checkout", Template: "standard"})
	if err != nil {
		t.Fatalf("CreateMap() error = %v", err)
	}
	handler, err := NewHandler(Config{}, service)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server, jm
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// callTool posts one tools/call request and returns its result payload.
func callTool(t *testing.T, server *httptest.Server, id int, name string, args map[string]any) map[string]any {
	t.Helper()
	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(id, name, args))
	if resp.Result == nil {
		t.Fatalf("%s returned no result", name)
	}
	return resp.Result
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "journeymap-test",
				"version": "1.0.0",
			},
		},
	}
}

// callToolResultText decodes the first textual content block from a CallToolResult.
func callToolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatalf("result = nil, want non-nil")
	}
	if len(result.Content) == 0 {
		t.Fatalf("result content is empty")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] has unexpected type %T", result.Content[0])
	}
	return text.Text
}

// TestNewHandlerRequiresService verifies construction fails without a backing service.
func TestNewHandlerRequiresService(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("NewHandler(nil) error = nil, want error")
	}
	var h *Handler
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// TestNormalizeConfig verifies name, version, and endpoint defaults.
func TestNormalizeConfig(t *testing.T) {
	got := normalizeConfig(Config{EndpointPath: " tools/mcp/ "})
	if got.ServerName != "journeymap" || got.ServerVersion != "dev" || got.EndpointPath != "/tools/mcp" {
		t.Fatalf("normalizeConfig() = %#v", got)
	}
	if got := normalizeConfig(Config{}); got.EndpointPath != "/mcp" {
		t.Fatalf("default endpoint = %q, want /mcp", got.EndpointPath)
	}
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, newTestService(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersJourneyMapTools verifies tool discovery lists every map tool.
func TestHandlerRegistersJourneyMapTools(t *testing.T) {
	server, _ := newTestServer(t)
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, required := range []string{
		"journeymap.list_section_types",
		"journeymap.list_maps",
		"journeymap.create_map",
		"journeymap.get_map",
		"journeymap.get_analytics",
		"journeymap.get_curve",
		"journeymap.apply_ops",
		"journeymap.list_versions",
		"journeymap.restore_version",
		"journeymap.list_comments",
		"journeymap.add_comment",
		"journeymap.resolve_comment",
		"journeymap.search_cells",
	} {
		if !slices.Contains(toolNames, required) {
			t.Fatalf("tool list missing %s: %#v", required, toolNames)
		}
	}
}

// TestMapToolsRoundTrip verifies create, list, read, and analytics tools share one store.
func TestMapToolsRoundTrip(t *testing.T) {
	server, seeded := newTestServer(t)

	created := toolResultStructured(t, callTool(t, server, 2, "journeymap.create_map", map[string]any{
		"title":    "Onboarding",
		"template": "blank",
	}))
	if created["title"] != "Onboarding" {
		t.Fatalf("create_map title = %v, want Onboarding", created["title"])
	}

	listed := toolResultStructured(t, callTool(t, server, 3, "journeymap.list_maps", nil))
	maps, _ := listed["maps"].([]any)
	if len(maps) != 2 {
		t.Fatalf("list_maps returned %d maps, want 2", len(maps))
	}

	got := toolResultStructured(t, callTool(t, server, 4, "journeymap.get_map", map[string]any{"map_id": seeded.ID}))
	if got["id"] != seeded.ID {
		t.Fatalf("get_map id = %v, want %s", got["id"], seeded.ID)
	}

	md := toolResultText(t, callTool(t, server, 5, "journeymap.get_map", map[string]any{
		"map_id": seeded.ID,
		"format": "markdown",
	}))
	if !strings.HasPrefix(md, "# Checkout") {
		t.Fatalf("markdown = %q, want title heading", md)
	}

	report := toolResultStructured(t, callTool(t, server, 6, "journeymap.get_analytics", map[string]any{"map_id": seeded.ID}))
	if _, ok := report["completeness"]; !ok {
		t.Fatalf("analytics payload missing completeness: %#v", report)
	}

	view := toolResultStructured(t, callTool(t, server, 7, "journeymap.get_curve", map[string]any{
		"map_id": seeded.ID,
		"width":  400,
		"height": 200,
	}))
	if points, _ := view["points"].([]any); len(points) != len(seeded.Document.Stages) {
		t.Fatalf("curve points = %d, want %d", len(points), len(seeded.Document.Stages))
	}
}

// TestApplyOpsAndRestoreVersions verifies stateless edits save versions and restores append one.
func TestApplyOpsAndRestoreVersions(t *testing.T) {
	server, seeded := newTestServer(t)

	saved := toolResultStructured(t, callTool(t, server, 2, "journeymap.apply_ops", map[string]any{
		"map_id": seeded.ID,
		"actor":  "agent",
		"ops": []any{
			map[string]any{"op": "set_title", "name": "Checkout v2"},
		},
	}))
	savedMap, _ := saved["map"].(map[string]any)
	if savedMap["title"] != "Checkout v2" || savedMap["updated_by"] != "agent" {
		t.Fatalf("apply_ops map = %#v", savedMap)
	}

	versions := toolResultStructured(t, callTool(t, server, 3, "journeymap.list_versions", map[string]any{"map_id": seeded.ID}))
	if list, _ := versions["versions"].([]any); len(list) != 2 {
		t.Fatalf("list_versions = %d entries, want 2", len(list))
	}

	restored := toolResultStructured(t, callTool(t, server, 4, "journeymap.restore_version", map[string]any{
		"map_id":  seeded.ID,
		"version": 1,
	}))
	restoredMap, _ := restored["map"].(map[string]any)
	version, _ := restored["version"].(map[string]any)
	if restoredMap["title"] != "Checkout" || version["version_number"] != float64(3) {
		t.Fatalf("restore_version = %#v", restored)
	}
}

// TestCommentTools verifies add, list, and resolve over MCP.
func TestCommentTools(t *testing.T) {
	server, seeded := newTestServer(t)
	sectionID := seeded.Document.Sections[0].ID
	stageID := seeded.Document.Stages[0].ID

	comment := toolResultStructured(t, callTool(t, server, 2, "journeymap.add_comment", map[string]any{
		"map_id":     seeded.ID,
		"section_id": sectionID,
		"stage_id":   stageID,
		"content":    "needs a quote",
		"author":     "ana",
	}))
	commentID, _ := comment["id"].(string)
	if commentID == "" {
		t.Fatalf("add_comment payload missing id: %#v", comment)
	}

	listed := toolResultStructured(t, callTool(t, server, 3, "journeymap.list_comments", map[string]any{"map_id": seeded.ID}))
	if list, _ := listed["comments"].([]any); len(list) != 1 {
		t.Fatalf("list_comments = %d entries, want 1", len(list))
	}

	_ = callTool(t, server, 4, "journeymap.resolve_comment", map[string]any{
		"map_id":     seeded.ID,
		"comment_id": commentID,
	})
	open := toolResultStructured(t, callTool(t, server, 5, "journeymap.list_comments", map[string]any{"map_id": seeded.ID}))
	if list, _ := open["comments"].([]any); len(list) != 0 {
		t.Fatalf("resolved comment still listed: %#v", list)
	}
	all := toolResultStructured(t, callTool(t, server, 6, "journeymap.list_comments", map[string]any{
		"map_id":           seeded.ID,
		"include_resolved": true,
	}))
	if list, _ := all["comments"].([]any); len(list) != 1 {
		t.Fatalf("include_resolved = %d entries, want 1", len(list))
	}
}

// TestToolErrorsArePrefixed verifies argument and service failures surface as prefixed tool errors.
func TestToolErrorsArePrefixed(t *testing.T) {
	server, seeded := newTestServer(t)

	cases := []struct {
		name   string
		tool   string
		args   map[string]any
		prefix string
	}{
		{name: "missing map", tool: "journeymap.get_map", args: map[string]any{"map_id": "missing"}, prefix: "not_found:"},
		{name: "missing argument", tool: "journeymap.get_analytics", args: map[string]any{}, prefix: "invalid_request:"},
		{name: "missing ops", tool: "journeymap.apply_ops", args: map[string]any{"map_id": seeded.ID}, prefix: "invalid_request:"},
		{name: "unknown op", tool: "journeymap.apply_ops", args: map[string]any{
			"map_id": seeded.ID,
			"ops":    []any{map[string]any{"op": "explode"}},
		}, prefix: "invalid_request:"},
		{name: "blank search", tool: "journeymap.search_cells", args: map[string]any{"query": "  "}, prefix: "invalid_request:"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := callTool(t, server, 10+i, tc.tool, tc.args)
			if isError, _ := result["isError"].(bool); !isError {
				t.Fatalf("isError = %v, want true", result["isError"])
			}
			if text := toolResultText(t, result); !strings.HasPrefix(text, tc.prefix) {
				t.Fatalf("error text = %q, want prefix %q", text, tc.prefix)
			}
		})
	}
}

// TestToolResultFromError verifies each adapter error category maps to its prefix.
func TestToolResultFromError(t *testing.T) {
	cases := []struct {
		err    error
		prefix string
	}{
		{err: errors.Join(common.ErrInvalidRequest, errors.New("bad")), prefix: "invalid_request: "},
		{err: fmt.Errorf("wrap: %w", common.ErrNotFound), prefix: "not_found: "},
		{err: common.ErrConflict, prefix: "conflict: "},
		{err: common.ErrUnavailable, prefix: "service_unavailable: "},
		{err: errors.New("boom"), prefix: "internal_error: "},
	}
	for _, tc := range cases {
		result := toolResultFromError(tc.err)
		if !result.IsError {
			t.Fatalf("IsError = false, want true")
		}
		if text := callToolResultText(t, result); !strings.HasPrefix(text, tc.prefix) {
			t.Fatalf("toolResultFromError(%v) = %q, want prefix %q", tc.err, text, tc.prefix)
		}
	}
	if text := callToolResultText(t, toolResultFromError(nil)); text != "unknown error" {
		t.Fatalf("nil error text = %q", text)
	}
}
