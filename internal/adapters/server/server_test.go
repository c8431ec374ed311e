package server

import (
	"context"
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
)

// newTestDependencies wires server dependencies over an in-memory store.
func newTestDependencies(t *testing.T) Dependencies {
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
	return Dependencies{Service: common.NewAppServiceAdapter(svc, "")}
}

// TestNormalizeConfig verifies serve defaults and endpoint validation.
func TestNormalizeConfig(t *testing.T) {
	got, err := normalizeConfig(Config{APIEndpoint: "api/", RateLimit: 5})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	if got.HTTPBind != defaultBindAddress || got.APIEndpoint != "/api" || got.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected endpoints %#v", got)
	}
	if got.ServerName != "journeymap" || got.ServerVersion != "dev" || got.RateBurst != 5 {
		t.Fatalf("unexpected defaults %#v", got)
	}
	if _, err := normalizeConfig(Config{APIEndpoint: "/x", MCPEndpoint: "x/"}); err == nil {
		t.Fatal("expected colliding endpoints to fail")
	}
	if _, err := normalizeConfig(Config{RateLimit: -1}); err == nil {
		t.Fatal("expected negative rate limit to fail")
	}
}

// TestNewHandlerRequiresService verifies the service dependency is mandatory.
func TestNewHandlerRequiresService(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("NewHandler() error = nil, want missing dependency error")
	}
}

// TestHandlerRoutesHealthAndAPI verifies health probes and the prefixed API mount.
func TestHandlerRoutesHealthAndAPI(t *testing.T) {
	handler, _, err := NewHandler(Config{}, newTestDependencies(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
			t.Fatalf("%s = %d %q", path, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/section-types", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sentiment_graph") {
		t.Fatalf("section-types = %d %q", rec.Code, rec.Body.String())
	}
}

// TestRateLimitRejectsBurstOverflow verifies requests past the burst get a 429 envelope.
func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	handler, _, err := NewHandler(Config{RateLimit: 0.001, RateBurst: 2}, newTestDependencies(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests && !strings.Contains(rec.Body.String(), "rate_limited") {
			t.Fatalf("429 body = %q", rec.Body.String())
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("status codes = %v, want [200 200 429]", codes)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health probes must bypass the limiter, got %d", rec.Code)
	}
}

// TestRunStopsOnCancel verifies graceful shutdown once the context ends.
func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, newTestDependencies(t))
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
