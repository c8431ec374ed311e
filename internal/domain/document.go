package domain

import "slices"

// DefaultDocumentTitle is used when a document has no title.
const DefaultDocumentTitle = "Untitled journey map"

// Document is a journey map: ordered stages, ordered sections, and the cells between them.
// It is the unit of persistence and versioning. Values are treated as immutable; every
// mutation returns a new Document sharing nothing with its input.
type Document struct {
	Title    string    `json:"title" yaml:"title"`
	Stages   []Stage   `json:"stages" yaml:"stages"`
	Sections []Section `json:"sections" yaml:"sections"`
}

// NewDocument returns a document holding one seed stage and no sections.
func NewDocument(title, seedStageID string) Document {
	doc := Document{Title: title, Stages: []Stage{}, Sections: []Section{}}
	if doc.Title == "" {
		doc.Title = DefaultDocumentTitle
	}
	return AddStage(doc, seedStageID)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{
		Title:    d.Title,
		Stages:   slices.Clone(d.Stages),
		Sections: make([]Section, len(d.Sections)),
	}
	if out.Stages == nil {
		out.Stages = []Stage{}
	}
	for i, section := range d.Sections {
		out.Sections[i] = section.Clone()
	}
	return out
}

// StageIndex returns the position of a stage id, or -1.
func (d Document) StageIndex(stageID string) int {
	return slices.IndexFunc(d.Stages, func(s Stage) bool { return s.ID == stageID })
}

// SectionIndex returns the position of a section id, or -1.
func (d Document) SectionIndex(sectionID string) int {
	return slices.IndexFunc(d.Sections, func(s Section) bool { return s.ID == sectionID })
}

// Stage looks up one stage by id.
func (d Document) Stage(stageID string) (Stage, bool) {
	idx := d.StageIndex(stageID)
	if idx < 0 {
		return Stage{}, false
	}
	return d.Stages[idx], true
}

// Section looks up one section by id.
func (d Document) Section(sectionID string) (Section, bool) {
	idx := d.SectionIndex(sectionID)
	if idx < 0 {
		return Section{}, false
	}
	return d.Sections[idx], true
}

// CellAt returns the cell at a coordinate. Unknown coordinates read as nil (empty).
func (d Document) CellAt(sectionID, stageID string) Cell {
	section, ok := d.Section(sectionID)
	if !ok {
		return nil
	}
	return section.Cell(stageID)
}

// StageIDs returns stage ids in display order.
func (d Document) StageIDs() []string {
	out := make([]string, len(d.Stages))
	for i, stage := range d.Stages {
		out[i] = stage.ID
	}
	return out
}

// SectionIDs returns section ids in display order.
func (d Document) SectionIDs() []string {
	out := make([]string, len(d.Sections))
	for i, section := range d.Sections {
		out[i] = section.ID
	}
	return out
}

// OrphanCellCount counts cells keyed by stage ids that are not in the stage list.
func (d Document) OrphanCellCount() int {
	live := make(map[string]struct{}, len(d.Stages))
	for _, stage := range d.Stages {
		live[stage.ID] = struct{}{}
	}
	count := 0
	for _, section := range d.Sections {
		for stageID := range section.Cells {
			if _, ok := live[stageID]; !ok {
				count++
			}
		}
	}
	return count
}
