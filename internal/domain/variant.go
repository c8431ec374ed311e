package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// SectionType tags a section row and selects the cell variant used for every cell in it.
type SectionType string

// Built-in section types.
const (
	SectionTypeText             SectionType = "text"
	SectionTypeGoals            SectionType = "goals"
	SectionTypeActions          SectionType = "actions"
	SectionTypeThoughts         SectionType = "thoughts"
	SectionTypeQuestions        SectionType = "questions"
	SectionTypeQuotes           SectionType = "quotes"
	SectionTypeIdeas            SectionType = "ideas"
	SectionTypeSupportProcesses SectionType = "support_processes"
	SectionTypeOwners           SectionType = "owners"
	SectionTypeSentiment        SectionType = "sentiment_graph"
	SectionTypeEmotions         SectionType = "emotions"
	SectionTypeTouchpoints      SectionType = "touchpoints"
	SectionTypePainPoints       SectionType = "pain_points"
	SectionTypeOpportunities    SectionType = "opportunities"
	SectionTypeKPIs             SectionType = "kpis"
	SectionTypeFrontstage       SectionType = "frontstage"
	SectionTypeBackstage        SectionType = "backstage"
	SectionTypeRating           SectionType = "rating"
	SectionTypeDuration         SectionType = "duration"
	SectionTypeImage            SectionType = "image"
	SectionTypeMomentsOfTruth   SectionType = "moments_of_truth"
)

// Value ranges enforced by Normalize.
const (
	SentimentMin = -5
	SentimentMax = 5
	ScaleMin     = 1
	ScaleMax     = 5
	RatingMax    = 5
)

// KPI trend values.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// Variant is the function table for one cell payload shape.
// Every function must tolerate cells written under a different section type.
type Variant struct {
	Type        SectionType
	Label       string
	Default     func() Cell
	ExtractText func(Cell) string
	IsEmpty     func(Cell) bool
	Normalize   func(Cell) Cell
}

// registry stores registered variants in registration order.
type registry struct {
	mu       sync.RWMutex
	order    []SectionType
	variants map[SectionType]Variant
}

var variants = newBuiltinRegistry()

// NormalizeSectionType canonicalizes a section type tag.
func NormalizeSectionType(t SectionType) SectionType {
	return SectionType(strings.TrimSpace(strings.ToLower(string(t))))
}

// RegisterVariant adds a variant to the registry.
// Missing functions are filled from the tolerant fallback.
func RegisterVariant(v Variant) error {
	v.Type = NormalizeSectionType(v.Type)
	if v.Type == "" {
		return ErrInvalidSectionType
	}
	fallback := fallbackVariant(v.Type)
	if v.Label == "" {
		v.Label = fallback.Label
	}
	if v.Default == nil {
		v.Default = fallback.Default
	}
	if v.ExtractText == nil {
		v.ExtractText = fallback.ExtractText
	}
	if v.IsEmpty == nil {
		v.IsEmpty = fallback.IsEmpty
	}
	if v.Normalize == nil {
		v.Normalize = fallback.Normalize
	}

	variants.mu.Lock()
	defer variants.mu.Unlock()
	if _, exists := variants.variants[v.Type]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateVariant, v.Type)
	}
	variants.variants[v.Type] = v
	variants.order = append(variants.order, v.Type)
	return nil
}

// LookupVariant returns the variant for a section type, or the fallback when none is registered.
func LookupVariant(t SectionType) Variant {
	t = NormalizeSectionType(t)
	variants.mu.RLock()
	v, ok := variants.variants[t]
	variants.mu.RUnlock()
	if ok {
		return v
	}
	return fallbackVariant(t)
}

// IsKnownSectionType reports whether a variant is registered for the type.
func IsKnownSectionType(t SectionType) bool {
	t = NormalizeSectionType(t)
	variants.mu.RLock()
	defer variants.mu.RUnlock()
	_, ok := variants.variants[t]
	return ok
}

// SectionTypes lists registered section types in registration order.
func SectionTypes() []SectionType {
	variants.mu.RLock()
	defer variants.mu.RUnlock()
	return slices.Clone(variants.order)
}

// DefaultCell returns the default payload for a section type.
func DefaultCell(t SectionType) Cell {
	return LookupVariant(t).Default()
}

// ExtractText returns the one-line human-readable summary of a cell.
func ExtractText(cell Cell, t SectionType) string {
	if cell == nil {
		return ""
	}
	return strings.TrimSpace(LookupVariant(t).ExtractText(cell))
}

// IsEmptyCell reports whether a cell holds no content under its section type. A nil cell is empty.
func IsEmptyCell(cell Cell, t SectionType) bool {
	if cell == nil {
		return true
	}
	return LookupVariant(t).IsEmpty(cell)
}

// NormalizeCell clamps the known fields of a cell for its section type and keeps everything else.
func NormalizeCell(cell Cell, t SectionType) Cell {
	if cell == nil {
		return nil
	}
	return LookupVariant(t).Normalize(cell.Clone())
}

func newBuiltinRegistry() *registry {
	r := &registry{variants: map[SectionType]Variant{}}
	for _, v := range builtinVariants() {
		r.variants[v.Type] = v
		r.order = append(r.order, v.Type)
	}
	return r
}

func builtinVariants() []Variant {
	return []Variant{
		textVariant(SectionTypeText, "Notes"),
		listVariant(SectionTypeGoals, "Goals"),
		listVariant(SectionTypeActions, "Actions"),
		listVariant(SectionTypeThoughts, "Thoughts"),
		listVariant(SectionTypeQuestions, "Questions"),
		listVariant(SectionTypeQuotes, "Quotes"),
		listVariant(SectionTypeIdeas, "Ideas"),
		listVariant(SectionTypeSupportProcesses, "Support processes"),
		listVariant(SectionTypeOwners, "Owners"),
		sentimentVariant(),
		emotionVariant(),
		channelVariant(SectionTypeTouchpoints, "Touchpoints"),
		ratedVariant(SectionTypePainPoints, "Pain points", "severity"),
		ratedVariant(SectionTypeOpportunities, "Opportunities", "impact"),
		kpiVariant(),
		textVariant(SectionTypeFrontstage, "Frontstage"),
		textVariant(SectionTypeBackstage, "Backstage"),
		ratingVariant(),
		durationVariant(),
		imageVariant(),
		momentVariant(),
	}
}

// fallbackVariant reads any cell by its "value" or "text" field.
func fallbackVariant(t SectionType) Variant {
	extract := func(c Cell) string {
		if s := c.String("value"); s != "" {
			return s
		}
		if s := c.String("text"); s != "" {
			return s
		}
		return strings.Join(c.Strings("items"), "; ")
	}
	label := strings.ReplaceAll(string(t), "_", " ")
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return Variant{
		Type:        t,
		Label:       label,
		Default:     func() Cell { return Cell{"value": ""} },
		ExtractText: extract,
		IsEmpty:     func(c Cell) bool { return extract(c) == "" },
		Normalize:   func(c Cell) Cell { return c },
	}
}

func textVariant(t SectionType, label string) Variant {
	return Variant{
		Type:        t,
		Label:       label,
		Default:     func() Cell { return Cell{"value": ""} },
		ExtractText: func(c Cell) string { return c.String("value") },
		IsEmpty:     func(c Cell) bool { return c.String("value") == "" },
		Normalize:   func(c Cell) Cell { return c },
	}
}

func listVariant(t SectionType, label string) Variant {
	return Variant{
		Type:        t,
		Label:       label,
		Default:     func() Cell { return Cell{"items": []any{}} },
		ExtractText: func(c Cell) string { return strings.Join(c.Strings("items"), "; ") },
		IsEmpty:     func(c Cell) bool { return len(c.Strings("items")) == 0 },
		Normalize:   func(c Cell) Cell { return c },
	}
}

func sentimentVariant() Variant {
	return Variant{
		Type:    SectionTypeSentiment,
		Label:   "Sentiment",
		Default: func() Cell { return Cell{"value": float64(0), "note": ""} },
		ExtractText: func(c Cell) string {
			value, _ := c.Int("value")
			note := c.String("note")
			switch {
			case value != 0 && note != "":
				return fmt.Sprintf("Sentiment %+d: %s", value, note)
			case value != 0:
				return fmt.Sprintf("Sentiment %+d", value)
			default:
				return note
			}
		},
		// Neutral with no note is indistinguishable from the default payload.
		IsEmpty: func(c Cell) bool {
			value, _ := c.Number("value")
			return value == 0 && c.String("note") == ""
		},
		Normalize: func(c Cell) Cell {
			c.clampField("value", SentimentMin, SentimentMax)
			return c
		},
	}
}

func emotionVariant() Variant {
	return Variant{
		Type:    SectionTypeEmotions,
		Label:   "Emotions",
		Default: func() Cell { return Cell{"emotion": "", "intensity": float64(ScaleMin)} },
		ExtractText: func(c Cell) string {
			emotion := c.String("emotion")
			if emotion == "" {
				return ""
			}
			if intensity, ok := c.Int("intensity"); ok {
				return fmt.Sprintf("%s (%d/%d)", emotion, intensity, ScaleMax)
			}
			return emotion
		},
		IsEmpty: func(c Cell) bool { return c.String("emotion") == "" },
		Normalize: func(c Cell) Cell {
			c.clampField("intensity", ScaleMin, ScaleMax)
			return c
		},
	}
}

func channelVariant(t SectionType, label string) Variant {
	return Variant{
		Type:    t,
		Label:   label,
		Default: func() Cell { return Cell{"channels": []any{}, "note": ""} },
		ExtractText: func(c Cell) string {
			channels := ReadChannelSet(c)
			labels := make([]string, 0, len(channels.Channels))
			for _, ch := range channels.Channels {
				labels = append(labels, ch.Label)
			}
			text := strings.Join(labels, ", ")
			if channels.Note != "" {
				if text != "" {
					text += ": "
				}
				text += channels.Note
			}
			return text
		},
		IsEmpty:   func(c Cell) bool { return len(ReadChannelSet(c).Channels) == 0 },
		Normalize: func(c Cell) Cell { return c },
	}
}

func ratedVariant(t SectionType, label, scaleKey string) Variant {
	return Variant{
		Type:    t,
		Label:   label,
		Default: func() Cell { return Cell{"value": "", scaleKey: float64(ScaleMin)} },
		ExtractText: func(c Cell) string {
			value := c.String("value")
			if value == "" {
				return ""
			}
			if level, ok := c.Int(scaleKey); ok {
				return fmt.Sprintf("%s (%s %d)", value, scaleKey, level)
			}
			return value
		},
		IsEmpty: func(c Cell) bool { return c.String("value") == "" },
		Normalize: func(c Cell) Cell {
			c.clampField(scaleKey, ScaleMin, ScaleMax)
			return c
		},
	}
}

func kpiVariant() Variant {
	return Variant{
		Type:    SectionTypeKPIs,
		Label:   "KPIs",
		Default: func() Cell { return Cell{"value": "", "label": "", "trend": ""} },
		ExtractText: func(c Cell) string {
			kpi := ReadKPI(c)
			parts := make([]string, 0, 3)
			if kpi.Label != "" {
				parts = append(parts, kpi.Label)
			}
			if kpi.Value != "" {
				parts = append(parts, kpi.Value)
			}
			if kpi.Trend != "" {
				parts = append(parts, "("+kpi.Trend+")")
			}
			return strings.Join(parts, " ")
		},
		// A labelled KPI counts as filled even before a value is recorded.
		IsEmpty: func(c Cell) bool { return c.String("label") == "" && c.String("value") == "" },
		Normalize: func(c Cell) Cell {
			if _, ok := c["trend"]; ok {
				c["trend"] = normalizeTrend(c.String("trend"))
			}
			return c
		},
	}
}

func ratingVariant() Variant {
	return Variant{
		Type:    SectionTypeRating,
		Label:   "Rating",
		Default: func() Cell { return Cell{"value": float64(0)} },
		ExtractText: func(c Cell) string {
			value, ok := c.Int("value")
			if !ok || value <= 0 {
				return ""
			}
			return fmt.Sprintf("%d/%d", value, RatingMax)
		},
		IsEmpty: func(c Cell) bool {
			value, ok := c.Number("value")
			return !ok || value <= 0
		},
		Normalize: func(c Cell) Cell {
			c.clampField("value", 0, RatingMax)
			return c
		},
	}
}

func durationVariant() Variant {
	return Variant{
		Type:    SectionTypeDuration,
		Label:   "Duration",
		Default: func() Cell { return Cell{"value": float64(0), "unit": "minutes"} },
		ExtractText: func(c Cell) string {
			value, ok := c.Number("value")
			if !ok || value <= 0 {
				return ""
			}
			unit := c.String("unit")
			text := strconv.FormatFloat(value, 'f', -1, 64)
			if unit != "" {
				text += " " + unit
			}
			return text
		},
		IsEmpty: func(c Cell) bool {
			value, ok := c.Number("value")
			return !ok || value <= 0
		},
		Normalize: func(c Cell) Cell {
			if value, ok := c.Number("value"); ok && value < 0 {
				c["value"] = float64(0)
			}
			return c
		},
	}
}

func imageVariant() Variant {
	return Variant{
		Type:    SectionTypeImage,
		Label:   "Images",
		Default: func() Cell { return Cell{"url": "", "caption": ""} },
		ExtractText: func(c Cell) string {
			if caption := c.String("caption"); caption != "" {
				return caption
			}
			return c.String("url")
		},
		IsEmpty:   func(c Cell) bool { return c.String("url") == "" },
		Normalize: func(c Cell) Cell { return c },
	}
}

func momentVariant() Variant {
	return Variant{
		Type:    SectionTypeMomentsOfTruth,
		Label:   "Moments of truth",
		Default: func() Cell { return Cell{"value": "", "critical": false} },
		ExtractText: func(c Cell) string {
			value := c.String("value")
			if value != "" && c.Bool("critical") {
				return value + " (critical)"
			}
			return value
		},
		IsEmpty:   func(c Cell) bool { return c.String("value") == "" },
		Normalize: func(c Cell) Cell { return c },
	}
}

func normalizeTrend(trend string) string {
	switch strings.ToLower(strings.TrimSpace(trend)) {
	case TrendUp, "increase", "rising":
		return TrendUp
	case TrendDown, "decrease", "falling":
		return TrendDown
	case TrendFlat, "steady", "stable":
		return TrendFlat
	default:
		return ""
	}
}
