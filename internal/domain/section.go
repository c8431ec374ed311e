package domain

import "strings"

// Section is one typed row of a journey map. Cells are keyed by stage id.
type Section struct {
	ID         string          `json:"id" yaml:"id"`
	Type       SectionType     `json:"type" yaml:"type"`
	Title      string          `json:"title" yaml:"title"`
	Cells      map[string]Cell `json:"cells" yaml:"cells"`
	ThemeColor string          `json:"theme_color,omitempty" yaml:"theme_color,omitempty"`
}

// NewSection constructs a section with an empty cell map. A blank title takes the variant label.
func NewSection(id string, sectionType SectionType, title string) (Section, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Section{}, ErrInvalidID
	}
	sectionType = NormalizeSectionType(sectionType)
	if !IsKnownSectionType(sectionType) {
		return Section{}, ErrInvalidSectionType
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = LookupVariant(sectionType).Label
	}
	return Section{
		ID:    id,
		Type:  sectionType,
		Title: title,
		Cells: map[string]Cell{},
	}, nil
}

// Cell returns the cell at stageID, or nil when none was written.
func (s Section) Cell(stageID string) Cell {
	return s.Cells[stageID]
}

// Clone returns a deep copy of the section.
func (s Section) Clone() Section {
	s.Cells = cloneCells(s.Cells)
	return s
}
