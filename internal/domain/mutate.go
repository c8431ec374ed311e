package domain

import (
	"strconv"
	"strings"
)

// The functions in this file are the mutation engine. Each takes a document and returns a new
// one without aliasing the input. Ids that do not resolve leave the document unchanged and
// out-of-range indices are clamped, so a stale edit racing a deletion is dropped quietly.

// SetTitle renames the document. A blank title is ignored.
func SetTitle(doc Document, title string) Document {
	title = strings.TrimSpace(title)
	out := doc.Clone()
	if title != "" {
		out.Title = title
	}
	return out
}

// AddStage appends a stage with default name and style. The candidate id is made unique when
// blank or already taken.
func AddStage(doc Document, id string) Document {
	out := doc.Clone()
	index := len(out.Stages)
	stage, _ := NewStage(uniqueID(out.StageIDs(), id, "stage"), "", index)
	out.Stages = append(out.Stages, stage)
	return out
}

// RemoveStage deletes a stage from the sequence. Cells keyed by the stage id stay in every
// section's map; PruneOrphanCells removes them on request.
func RemoveStage(doc Document, stageID string) Document {
	out := doc.Clone()
	idx := out.StageIndex(stageID)
	if idx < 0 {
		return out
	}
	out.Stages = append(out.Stages[:idx], out.Stages[idx+1:]...)
	return out
}

// ReorderStages moves the stage at from to position to in the resulting list.
func ReorderStages(doc Document, from, to int) Document {
	out := doc.Clone()
	out.Stages = moveElement(out.Stages, from, to)
	return out
}

// MoveStage moves a stage, addressed by id, to position to.
func MoveStage(doc Document, stageID string, to int) Document {
	idx := doc.StageIndex(stageID)
	if idx < 0 {
		return doc.Clone()
	}
	return ReorderStages(doc, idx, to)
}

// RenameStage renames one stage. A blank name is ignored.
func RenameStage(doc Document, stageID, name string) Document {
	out := doc.Clone()
	idx := out.StageIndex(stageID)
	name = strings.TrimSpace(name)
	if idx < 0 || name == "" {
		return out
	}
	out.Stages[idx].Name = name
	return out
}

// RestyleStage overlays the non-empty colors of style on one stage.
func RestyleStage(doc Document, stageID string, style DisplayStyle) Document {
	out := doc.Clone()
	idx := out.StageIndex(stageID)
	if idx < 0 {
		return out
	}
	out.Stages[idx].DisplayStyle = mergeStyle(out.Stages[idx].DisplayStyle, style)
	return out
}

// SetStageIcon replaces one stage's icon. An empty icon clears it.
func SetStageIcon(doc Document, stageID, icon string) Document {
	out := doc.Clone()
	idx := out.StageIndex(stageID)
	if idx < 0 {
		return out
	}
	out.Stages[idx].Icon = strings.TrimSpace(icon)
	return out
}

// AddSection appends a section of the given type with its default title and no cells.
// Unregistered types leave the document unchanged.
func AddSection(doc Document, id string, sectionType SectionType) Document {
	out := doc.Clone()
	section, err := NewSection(uniqueID(out.SectionIDs(), id, "section"), sectionType, "")
	if err != nil {
		return out
	}
	out.Sections = append(out.Sections, section)
	return out
}

// DeleteSection removes one section together with its cells.
func DeleteSection(doc Document, sectionID string) Document {
	out := doc.Clone()
	idx := out.SectionIndex(sectionID)
	if idx < 0 {
		return out
	}
	out.Sections = append(out.Sections[:idx], out.Sections[idx+1:]...)
	return out
}

// ReorderSections moves the section at from to position to in the resulting list.
func ReorderSections(doc Document, from, to int) Document {
	out := doc.Clone()
	out.Sections = moveElement(out.Sections, from, to)
	return out
}

// MoveSection moves a section, addressed by id, to position to.
func MoveSection(doc Document, sectionID string, to int) Document {
	idx := doc.SectionIndex(sectionID)
	if idx < 0 {
		return doc.Clone()
	}
	return ReorderSections(doc, idx, to)
}

// RenameSection retitles one section. A blank title is ignored.
func RenameSection(doc Document, sectionID, title string) Document {
	out := doc.Clone()
	idx := out.SectionIndex(sectionID)
	title = strings.TrimSpace(title)
	if idx < 0 || title == "" {
		return out
	}
	out.Sections[idx].Title = title
	return out
}

// RetypeSection changes a section's type. Existing cells keep their payloads as written and are
// read through the new type's variant from then on.
func RetypeSection(doc Document, sectionID string, sectionType SectionType) Document {
	out := doc.Clone()
	idx := out.SectionIndex(sectionID)
	sectionType = NormalizeSectionType(sectionType)
	if idx < 0 || !IsKnownSectionType(sectionType) {
		return out
	}
	out.Sections[idx].Type = sectionType
	return out
}

// SetSectionTheme sets one section's theme color. An empty color clears it.
func SetSectionTheme(doc Document, sectionID, color string) Document {
	out := doc.Clone()
	idx := out.SectionIndex(sectionID)
	if idx < 0 {
		return out
	}
	out.Sections[idx].ThemeColor = strings.TrimSpace(color)
	return out
}

// SetCell merges partial into the cell at (sectionID, stageID). Keys absent from partial keep
// their values; array values are replaced, not spliced. When no cell exists the partial becomes
// the payload. Known numeric fields are clamped for the section's type.
func SetCell(doc Document, sectionID, stageID string, partial Cell) Document {
	out := doc.Clone()
	idx := out.SectionIndex(sectionID)
	if idx < 0 || out.StageIndex(stageID) < 0 {
		return out
	}
	section := &out.Sections[idx]
	if section.Cells == nil {
		section.Cells = map[string]Cell{}
	}
	merged := section.Cells[stageID].Merge(partial)
	section.Cells[stageID] = LookupVariant(section.Type).Normalize(merged)
	return out
}

// ClearCell removes the cell at (sectionID, stageID).
func ClearCell(doc Document, sectionID, stageID string) Document {
	out := doc.Clone()
	idx := out.SectionIndex(sectionID)
	if idx < 0 {
		return out
	}
	delete(out.Sections[idx].Cells, stageID)
	return out
}

// PruneOrphanCells drops cells keyed by stage ids that are no longer in the stage list.
func PruneOrphanCells(doc Document) Document {
	out := doc.Clone()
	live := make(map[string]struct{}, len(out.Stages))
	for _, stage := range out.Stages {
		live[stage.ID] = struct{}{}
	}
	for i := range out.Sections {
		for stageID := range out.Sections[i].Cells {
			if _, ok := live[stageID]; !ok {
				delete(out.Sections[i].Cells, stageID)
			}
		}
	}
	return out
}

// ClampIndex bounds i to [0, n-1]. It returns 0 when n is 0.
func ClampIndex(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// moveElement removes the element at from and inserts it at to in the shortened list.
func moveElement[T any](items []T, from, to int) []T {
	if len(items) < 2 {
		return items
	}
	from = ClampIndex(from, len(items))
	to = ClampIndex(to, len(items))
	if from == to {
		return items
	}
	item := items[from]
	items = append(items[:from], items[from+1:]...)
	items = append(items[:to], append([]T{item}, items[to:]...)...)
	return items
}

// uniqueID returns candidate when it is non-blank and unused, otherwise a derived id.
func uniqueID(existing []string, candidate, prefix string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		taken[id] = struct{}{}
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		for n := len(existing) + 1; ; n++ {
			id := prefix + "-" + strconv.Itoa(n)
			if _, ok := taken[id]; !ok {
				return id
			}
		}
	}
	if _, ok := taken[candidate]; !ok {
		return candidate
	}
	for n := 2; ; n++ {
		id := candidate + "-" + strconv.Itoa(n)
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}
