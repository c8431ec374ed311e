package app

import (
	"fmt"
	"strings"

	"github.com/hylla/journeymap/internal/domain"
)

// OpKind names one editing operation.
type OpKind string

// Supported editing operations.
const (
	OpSetTitle      OpKind = "set_title"
	OpAddStage      OpKind = "add_stage"
	OpRemoveStage   OpKind = "remove_stage"
	OpMoveStage     OpKind = "move_stage"
	OpRenameStage   OpKind = "rename_stage"
	OpRestyleStage  OpKind = "restyle_stage"
	OpAddSection    OpKind = "add_section"
	OpDeleteSection OpKind = "delete_section"
	OpMoveSection   OpKind = "move_section"
	OpRenameSection OpKind = "rename_section"
	OpRetypeSection OpKind = "retype_section"
	OpThemeSection  OpKind = "theme_section"
	OpSetCell       OpKind = "set_cell"
	OpClearCell     OpKind = "clear_cell"
	OpPruneOrphans  OpKind = "prune_orphans"
)

// OpKinds lists every supported operation.
func OpKinds() []OpKind {
	return []OpKind{
		OpSetTitle, OpAddStage, OpRemoveStage, OpMoveStage, OpRenameStage, OpRestyleStage,
		OpAddSection, OpDeleteSection, OpMoveSection, OpRenameSection, OpRetypeSection,
		OpThemeSection, OpSetCell, OpClearCell, OpPruneOrphans,
	}
}

// Op is one editing command as sent by a client.
type Op struct {
	Kind      OpKind               `json:"op" yaml:"op"`
	StageID   string               `json:"stage_id,omitempty" yaml:"stage_id,omitempty"`
	SectionID string               `json:"section_id,omitempty" yaml:"section_id,omitempty"`
	From      *int                 `json:"from,omitempty" yaml:"from,omitempty"`
	To        *int                 `json:"to,omitempty" yaml:"to,omitempty"`
	Name      string               `json:"name,omitempty" yaml:"name,omitempty"`
	Type      domain.SectionType   `json:"type,omitempty" yaml:"type,omitempty"`
	Style     *domain.DisplayStyle `json:"style,omitempty" yaml:"style,omitempty"`
	Icon      *string              `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color     string               `json:"color,omitempty" yaml:"color,omitempty"`
	Cell      domain.Cell          `json:"cell,omitempty" yaml:"cell,omitempty"`
}

// ApplyOp runs one operation through the mutation engine. Unknown stage and section ids are
// no-ops, as in the engine; only an unrecognized operation kind is an error.
func ApplyOp(doc domain.Document, op Op, newID IDGenerator) (domain.Document, error) {
	switch OpKind(strings.TrimSpace(strings.ToLower(string(op.Kind)))) {
	case OpSetTitle:
		return domain.SetTitle(doc, op.Name), nil
	case OpAddStage:
		id := ""
		if newID != nil {
			id = newID()
		}
		out := domain.AddStage(doc, id)
		added := out.Stages[len(out.Stages)-1].ID
		out = domain.RenameStage(out, added, op.Name)
		if op.Style != nil {
			out = domain.RestyleStage(out, added, *op.Style)
		}
		if op.Icon != nil {
			out = domain.SetStageIcon(out, added, *op.Icon)
		}
		if op.To != nil {
			out = domain.MoveStage(out, added, *op.To)
		}
		return out, nil
	case OpRemoveStage:
		return domain.RemoveStage(doc, op.StageID), nil
	case OpMoveStage:
		if op.To == nil {
			return doc.Clone(), nil
		}
		if op.StageID == "" && op.From != nil {
			return domain.ReorderStages(doc, *op.From, *op.To), nil
		}
		return domain.MoveStage(doc, op.StageID, *op.To), nil
	case OpRenameStage:
		return domain.RenameStage(doc, op.StageID, op.Name), nil
	case OpRestyleStage:
		out := doc.Clone()
		if op.Style != nil {
			out = domain.RestyleStage(out, op.StageID, *op.Style)
		}
		if op.Icon != nil {
			out = domain.SetStageIcon(out, op.StageID, *op.Icon)
		}
		return out, nil
	case OpAddSection:
		id := ""
		if newID != nil {
			id = newID()
		}
		before := len(doc.Sections)
		out := domain.AddSection(doc, id, op.Type)
		if len(out.Sections) == before {
			return out, nil
		}
		added := out.Sections[len(out.Sections)-1].ID
		out = domain.RenameSection(out, added, op.Name)
		if op.Color != "" {
			out = domain.SetSectionTheme(out, added, op.Color)
		}
		if op.To != nil {
			out = domain.MoveSection(out, added, *op.To)
		}
		return out, nil
	case OpDeleteSection:
		return domain.DeleteSection(doc, op.SectionID), nil
	case OpMoveSection:
		if op.To == nil {
			return doc.Clone(), nil
		}
		if op.SectionID == "" && op.From != nil {
			return domain.ReorderSections(doc, *op.From, *op.To), nil
		}
		return domain.MoveSection(doc, op.SectionID, *op.To), nil
	case OpRenameSection:
		return domain.RenameSection(doc, op.SectionID, op.Name), nil
	case OpRetypeSection:
		return domain.RetypeSection(doc, op.SectionID, op.Type), nil
	case OpThemeSection:
		return domain.SetSectionTheme(doc, op.SectionID, op.Color), nil
	case OpSetCell:
		return domain.SetCell(doc, op.SectionID, op.StageID, op.Cell), nil
	case OpClearCell:
		return domain.ClearCell(doc, op.SectionID, op.StageID), nil
	case OpPruneOrphans:
		return domain.PruneOrphanCells(doc), nil
	default:
		return doc, fmt.Errorf("%w: unknown op %q", ErrInvalidOperation, op.Kind)
	}
}

// ApplyOps runs ops in order. When any op is rejected the input document is returned unchanged.
func ApplyOps(doc domain.Document, ops []Op, newID IDGenerator) (domain.Document, error) {
	out := doc
	for i, op := range ops {
		next, err := ApplyOp(out, op, newID)
		if err != nil {
			return doc, fmt.Errorf("op %d: %w", i, err)
		}
		out = next
	}
	return out, nil
}
