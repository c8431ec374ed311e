package domain

import (
	"slices"
	"strings"
)

// Template is a named starting layout for new maps.
type Template struct {
	Key      string
	Label    string
	Stages   []string
	Sections []SectionType
}

var builtinTemplates = []Template{
	{
		Key:   "blank",
		Label: "Blank map",
	},
	{
		Key:    "standard",
		Label:  "Customer journey",
		Stages: []string{"Awareness", "Consideration", "Purchase", "Retention", "Advocacy"},
		Sections: []SectionType{
			SectionTypeGoals,
			SectionTypeActions,
			SectionTypeTouchpoints,
			SectionTypeSentiment,
			SectionTypePainPoints,
			SectionTypeOpportunities,
		},
	},
	{
		Key:    "service_blueprint",
		Label:  "Service blueprint",
		Stages: []string{"Discover", "Request", "Deliver", "Follow up"},
		Sections: []SectionType{
			SectionTypeActions,
			SectionTypeFrontstage,
			SectionTypeBackstage,
			SectionTypeSupportProcesses,
			SectionTypeMomentsOfTruth,
			SectionTypeKPIs,
		},
	},
}

// Templates lists the built-in templates.
func Templates() []Template {
	return slices.Clone(builtinTemplates)
}

// LookupTemplate returns a built-in template by key.
func LookupTemplate(key string) (Template, bool) {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		key = "blank"
	}
	idx := slices.IndexFunc(builtinTemplates, func(t Template) bool { return t.Key == key })
	if idx < 0 {
		return Template{}, false
	}
	return builtinTemplates[idx], true
}

// Build produces a document from the template. Stage names fall back to stageNames, and the
// document gets a single seed stage when neither lists any.
func (t Template) Build(title string, stageNames []string, newID func() string) (Document, error) {
	names := t.Stages
	if len(names) == 0 {
		names = stageNames
	}
	doc := Document{Title: title, Stages: []Stage{}, Sections: []Section{}}
	for _, name := range names {
		doc = AddStage(doc, newID())
		doc = RenameStage(doc, doc.Stages[len(doc.Stages)-1].ID, name)
	}
	for _, sectionType := range t.Sections {
		doc = AddSection(doc, newID(), sectionType)
	}
	if len(doc.Stages) == 0 {
		doc.Stages = nil
	}
	out, _, err := Repair(doc, newID)
	return out, err
}
