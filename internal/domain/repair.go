package domain

import (
	"fmt"
	"strings"
)

// RepairReport counts the fixes Repair applied to a document.
type RepairReport struct {
	BackfilledStageIDs   int  `json:"backfilled_stage_ids"`
	BackfilledSectionIDs int  `json:"backfilled_section_ids"`
	DedupedStageIDs      int  `json:"deduped_stage_ids"`
	DedupedSectionIDs    int  `json:"deduped_section_ids"`
	DefaultedFields      int  `json:"defaulted_fields"`
	DroppedCells         int  `json:"dropped_cells"`
	SeededStage          bool `json:"seeded_stage"`
}

// Changed reports whether any fix was applied.
func (r RepairReport) Changed() bool {
	return r != RepairReport{}
}

// Repair brings a document from an outside producer (storage, template, generator) into the
// shape the mutation engine expects. Missing ids are backfilled with newID, later duplicates get
// fresh ids, blank names and titles take defaults, and a missing stage list becomes one seed stage.
// Sections whose type is not registered are rejected.
func Repair(doc Document, newID func() string) (Document, RepairReport, error) {
	var report RepairReport
	out := doc.Clone()

	if strings.TrimSpace(out.Title) == "" {
		out.Title = DefaultDocumentTitle
		report.DefaultedFields++
	} else {
		out.Title = strings.TrimSpace(out.Title)
	}

	if doc.Stages == nil {
		out = AddStage(out, freshID(nil, newID))
		report.SeededStage = true
	}
	if out.Sections == nil {
		out.Sections = []Section{}
	}

	seenStages := make(map[string]struct{}, len(out.Stages))
	for i := range out.Stages {
		stage := &out.Stages[i]
		stage.ID = strings.TrimSpace(stage.ID)
		switch {
		case stage.ID == "":
			stage.ID = freshID(seenStages, newID)
			report.BackfilledStageIDs++
		case hasID(seenStages, stage.ID):
			stage.ID = freshID(seenStages, newID)
			report.DedupedStageIDs++
		}
		seenStages[stage.ID] = struct{}{}

		if strings.TrimSpace(stage.Name) == "" {
			stage.Name = DefaultStageName(i)
			report.DefaultedFields++
		} else {
			stage.Name = strings.TrimSpace(stage.Name)
		}
		defaults := DefaultStageStyle(i)
		if strings.TrimSpace(stage.DisplayStyle.BackgroundColor) == "" {
			stage.DisplayStyle.BackgroundColor = defaults.BackgroundColor
			report.DefaultedFields++
		}
		if strings.TrimSpace(stage.DisplayStyle.TextColor) == "" {
			stage.DisplayStyle.TextColor = defaults.TextColor
			report.DefaultedFields++
		}
	}

	seenSections := make(map[string]struct{}, len(out.Sections))
	for i := range out.Sections {
		section := &out.Sections[i]
		section.ID = strings.TrimSpace(section.ID)
		switch {
		case section.ID == "":
			section.ID = freshID(seenSections, newID)
			report.BackfilledSectionIDs++
		case hasID(seenSections, section.ID):
			section.ID = freshID(seenSections, newID)
			report.DedupedSectionIDs++
		}
		seenSections[section.ID] = struct{}{}

		section.Type = NormalizeSectionType(section.Type)
		if section.Type == "" {
			section.Type = SectionTypeText
			report.DefaultedFields++
		}
		if !IsKnownSectionType(section.Type) {
			return Document{}, report, fmt.Errorf("%w: section %q has type %q", ErrInvalidSectionType, section.ID, section.Type)
		}
		if strings.TrimSpace(section.Title) == "" {
			section.Title = LookupVariant(section.Type).Label
			report.DefaultedFields++
		}
		if section.Cells == nil {
			section.Cells = map[string]Cell{}
		}
		for stageID, cell := range section.Cells {
			if cell == nil || strings.TrimSpace(stageID) == "" {
				delete(section.Cells, stageID)
				report.DroppedCells++
			}
		}
	}
	return out, report, nil
}

// Validate reports the first structural problem that Repair would have to fix.
func Validate(doc Document) error {
	if doc.Stages == nil || doc.Sections == nil {
		return fmt.Errorf("%w: stages and sections are required", ErrInvalidDocument)
	}
	stageIDs := map[string]struct{}{}
	for _, stage := range doc.Stages {
		if strings.TrimSpace(stage.ID) == "" {
			return fmt.Errorf("%w: stage without id", ErrInvalidID)
		}
		if hasID(stageIDs, stage.ID) {
			return fmt.Errorf("%w: duplicate stage id %q", ErrInvalidDocument, stage.ID)
		}
		stageIDs[stage.ID] = struct{}{}
	}
	sectionIDs := map[string]struct{}{}
	for _, section := range doc.Sections {
		if strings.TrimSpace(section.ID) == "" {
			return fmt.Errorf("%w: section without id", ErrInvalidID)
		}
		if hasID(sectionIDs, section.ID) {
			return fmt.Errorf("%w: duplicate section id %q", ErrInvalidDocument, section.ID)
		}
		sectionIDs[section.ID] = struct{}{}
		if !IsKnownSectionType(section.Type) {
			return fmt.Errorf("%w: %q", ErrInvalidSectionType, section.Type)
		}
	}
	return nil
}

func hasID(seen map[string]struct{}, id string) bool {
	_, ok := seen[id]
	return ok
}

// freshID draws ids until one is unused. A generator that keeps colliding falls back to uniqueID.
func freshID(seen map[string]struct{}, newID func() string) string {
	for range 8 {
		id := ""
		if newID != nil {
			id = strings.TrimSpace(newID())
		}
		if id != "" && !hasID(seen, id) {
			return id
		}
	}
	existing := make([]string, 0, len(seen))
	for id := range seen {
		existing = append(existing, id)
	}
	return uniqueID(existing, "", "id")
}
