package domain

import (
	"strconv"
	"strings"
)

// DisplayStyle holds the colors used to draw a stage header.
type DisplayStyle struct {
	BackgroundColor string `json:"background_color" yaml:"background_color"`
	TextColor       string `json:"text_color" yaml:"text_color"`
}

// Stage is one column of a journey map.
type Stage struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	DisplayStyle DisplayStyle `json:"display_style" yaml:"display_style"`
	Icon         string       `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// stagePalette rotates default header colors as stages are appended.
var stagePalette = []DisplayStyle{
	{BackgroundColor: "#E8F1FF", TextColor: "#1D3A6E"},
	{BackgroundColor: "#EAF7EE", TextColor: "#1F5130"},
	{BackgroundColor: "#FFF4E0", TextColor: "#6B4500"},
	{BackgroundColor: "#FDECEF", TextColor: "#7A1F33"},
	{BackgroundColor: "#F1EBFF", TextColor: "#43267A"},
	{BackgroundColor: "#E6F7F8", TextColor: "#155A60"},
}

// DefaultStageStyle returns the palette entry for the stage at index.
func DefaultStageStyle(index int) DisplayStyle {
	if index < 0 {
		index = 0
	}
	return stagePalette[index%len(stagePalette)]
}

// DefaultStageName returns the placeholder name for the stage at index.
func DefaultStageName(index int) string {
	return "Stage " + strconv.Itoa(index+1)
}

// NewStage constructs a normalized stage. Blank names and styles take the defaults for index.
func NewStage(id, name string, index int) (Stage, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Stage{}, ErrInvalidID
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultStageName(index)
	}
	return Stage{
		ID:           id,
		Name:         name,
		DisplayStyle: DefaultStageStyle(index),
	}, nil
}

// mergeStyle overlays the non-empty fields of next on current.
func mergeStyle(current, next DisplayStyle) DisplayStyle {
	if v := strings.TrimSpace(next.BackgroundColor); v != "" {
		current.BackgroundColor = v
	}
	if v := strings.TrimSpace(next.TextColor); v != "" {
		current.TextColor = v
	}
	return current
}
