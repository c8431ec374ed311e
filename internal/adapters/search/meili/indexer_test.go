package meili

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
	meili "github.com/meilisearch/meilisearch-go"
)

func TestDocumentIDIsStablePerCoordinate(t *testing.T) {
	a := documentID("m1", "sec", "st")
	if a != documentID("m1", "sec", "st") {
		t.Fatal("documentID() should be deterministic")
	}
	if len(a) != 32 {
		t.Fatalf("documentID() length = %d, want 32", len(a))
	}
	for _, other := range []string{
		documentID("m1", "st", "sec"),
		documentID("m1", "sec", "st2"),
		documentID("m1se", "c", "st"),
	} {
		if other == a {
			t.Fatalf("distinct coordinates collided on %q", a)
		}
	}
}

func TestMapFilterQuotesID(t *testing.T) {
	if got := mapFilter(`odd"id`); got != `mapId = "odd\"id"` {
		t.Fatalf("mapFilter() = %q", got)
	}
}

func TestToDocumentCarriesRecord(t *testing.T) {
	rec := app.CellRecord{
		MapID:        "m1",
		MapTitle:     "Onboarding",
		SectionID:    "sec",
		SectionType:  domain.SectionTypePainPoints,
		SectionTitle: "Pain points",
		StageID:      "st",
		StageName:    "Signup",
		Text:         "slow form (severity 4)",
	}
	doc := toDocument(rec)
	if doc.ID != documentID("m1", "sec", "st") {
		t.Fatalf("unexpected id %q", doc.ID)
	}
	if doc.SectionType != string(domain.SectionTypePainPoints) || doc.Text != rec.Text || doc.StageName != "Signup" {
		t.Fatalf("unexpected document %#v", doc)
	}
}

func TestHitToMatchReadsFormattedAndScore(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}
	hit := meili.Hit{
		"id":            raw("abc"),
		"mapId":         raw("m1"),
		"mapTitle":      raw("Onboarding"),
		"sectionId":     raw("sec"),
		"sectionType":   raw("pain_points"),
		"sectionTitle":  raw("Pain points"),
		"stageId":       raw("st"),
		"stageName":     raw("Signup"),
		"text":          raw("slow form"),
		"_formatted":    raw(map[string]any{"text": " **slow** form "}),
		"_rankingScore": raw(0.75),
	}
	m := hitToMatch(hit)
	if m.MapID != "m1" || m.SectionType != domain.SectionType("pain_points") || m.StageName != "Signup" {
		t.Fatalf("unexpected match %#v", m)
	}
	if m.Snippet != "**slow** form" {
		t.Fatalf("unexpected snippet %q", m.Snippet)
	}
	if m.Score != 0.75 {
		t.Fatalf("unexpected score %v", m.Score)
	}

	bare := hitToMatch(meili.Hit{"mapId": raw(42)})
	if bare.MapID != "" || bare.Snippet != "" || bare.Score != 0 {
		t.Fatalf("malformed hit should decode to zero values, got %#v", bare)
	}
}

func TestSearchRequestDefaults(t *testing.T) {
	ix := &Indexer{uid: "cells"}
	req := ix.searchRequest(app.SearchCellsInput{Query: "form"})
	if req.Limit != 25 || req.IndexUID != "cells" || req.Filter != nil {
		t.Fatalf("unexpected request %#v", req)
	}
	req = ix.searchRequest(app.SearchCellsInput{Query: "form", MapID: "m1", Limit: 5})
	filter, ok := req.Filter.([]string)
	if req.Limit != 5 || !ok || len(filter) != 1 || filter[0] != `mapId = "m1"` {
		t.Fatalf("unexpected request %#v", req)
	}
}

func TestUnreachableServerReportsUnhealthy(t *testing.T) {
	ix := New(Config{URL: "http://127.0.0.1:1"}, nil)
	defer ix.Close()

	if ix.Healthy() {
		t.Fatal("expected unhealthy indexer")
	}
	ctx := context.Background()
	if err := ix.IndexMap(ctx, "m1", []app.CellRecord{{MapID: "m1", Text: "x"}}); !errors.Is(err, errUnhealthy) {
		t.Fatalf("IndexMap() error = %v, want errUnhealthy", err)
	}
	if err := ix.RemoveMap(ctx, "m1"); !errors.Is(err, errUnhealthy) {
		t.Fatalf("RemoveMap() error = %v, want errUnhealthy", err)
	}
	if _, err := ix.SearchCells(ctx, app.SearchCellsInput{Query: "x"}); !errors.Is(err, errUnhealthy) {
		t.Fatalf("SearchCells() error = %v, want errUnhealthy", err)
	}
}
