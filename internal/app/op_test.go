package app

import (
	"errors"
	"slices"
	"testing"

	"github.com/hylla/journeymap/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestApplyOpsBuildsDocument(t *testing.T) {
	doc := domain.NewDocument("Trip", "s1")
	ops := []Op{
		{Kind: OpAddStage, Name: "Book"},
		{Kind: OpAddStage, Name: "Travel", Style: &domain.DisplayStyle{BackgroundColor: "#000000"}},
		{Kind: OpAddSection, Type: domain.SectionTypeSentiment, Name: "Mood", Color: "#ff0000"},
		{Kind: OpSetTitle, Name: "Trip to Lisbon"},
	}
	out, err := ApplyOps(doc, ops, sequentialIDs("n"))
	if err != nil {
		t.Fatalf("ApplyOps() error = %v", err)
	}
	if out.Title != "Trip to Lisbon" {
		t.Fatalf("unexpected title %q", out.Title)
	}
	if got := out.StageIDs(); !slices.Equal(got, []string{"s1", "n-1", "n-2"}) {
		t.Fatalf("unexpected stage ids %v", got)
	}
	if out.Stages[2].Name != "Travel" || out.Stages[2].DisplayStyle.BackgroundColor != "#000000" {
		t.Fatalf("unexpected stage %#v", out.Stages[2])
	}
	if len(out.Sections) != 1 || out.Sections[0].Title != "Mood" || out.Sections[0].ThemeColor != "#ff0000" {
		t.Fatalf("unexpected sections %#v", out.Sections)
	}

	out, err = ApplyOps(out, []Op{
		{Kind: OpSetCell, SectionID: "n-3", StageID: "n-1", Cell: domain.Cell{"value": 9}},
		{Kind: OpMoveStage, StageID: "n-2", To: intPtr(0)},
	}, nil)
	if err != nil {
		t.Fatalf("ApplyOps() error = %v", err)
	}
	if v, _ := out.CellAt("n-3", "n-1").Int("value"); v != domain.SentimentMax {
		t.Fatalf("expected clamped sentiment, got %d", v)
	}
	if got := out.StageIDs(); !slices.Equal(got, []string{"n-2", "s1", "n-1"}) {
		t.Fatalf("unexpected order after move %v", got)
	}
}

func TestApplyOpsIsAtomic(t *testing.T) {
	doc := domain.NewDocument("Keep", "s1")
	out, err := ApplyOps(doc, []Op{
		{Kind: OpSetTitle, Name: "Changed"},
		{Kind: "explode"},
	}, nil)
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if out.Title != "Keep" {
		t.Fatalf("expected original document back, got %q", out.Title)
	}
}

func TestApplyOpUnknownTargetsAreNoOps(t *testing.T) {
	doc := domain.NewDocument("Same", "s1")
	cases := []Op{
		{Kind: OpRemoveStage, StageID: "missing"},
		{Kind: OpRenameSection, SectionID: "missing", Name: "x"},
		{Kind: OpSetCell, SectionID: "missing", StageID: "s1", Cell: domain.Cell{"value": "x"}},
		{Kind: OpMoveStage, StageID: "s1"},
		{Kind: OpAddSection, Type: "not-a-type"},
	}
	for _, tc := range cases {
		out, err := ApplyOp(doc, tc, sequentialIDs("z"))
		if err != nil {
			t.Fatalf("ApplyOp(%s) error = %v", tc.Kind, err)
		}
		if len(out.Stages) != 1 || len(out.Sections) != 0 || out.Title != "Same" {
			t.Fatalf("ApplyOp(%s) changed document %#v", tc.Kind, out)
		}
	}
}

func TestApplyOpReorderByIndex(t *testing.T) {
	doc := domain.NewDocument("Order", "a")
	doc = domain.AddStage(doc, "b")
	doc = domain.AddStage(doc, "c")

	out, err := ApplyOp(doc, Op{Kind: OpMoveStage, From: intPtr(0), To: intPtr(2)}, nil)
	if err != nil {
		t.Fatalf("ApplyOp() error = %v", err)
	}
	if got := out.StageIDs(); !slices.Equal(got, []string{"b", "c", "a"}) {
		t.Fatalf("unexpected order %v", got)
	}
	if got := doc.StageIDs(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("input document was mutated: %v", got)
	}
}

func TestOpKindsAreAllAccepted(t *testing.T) {
	doc := domain.NewDocument("All", "s1")
	for _, kind := range OpKinds() {
		if _, err := ApplyOp(doc, Op{Kind: kind}, sequentialIDs("k")); err != nil {
			t.Fatalf("ApplyOp(%s) error = %v", kind, err)
		}
	}
}
