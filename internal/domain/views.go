package domain

import (
	"math"
	"strings"
)

// Channel is one touchpoint channel tag.
type Channel struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ChannelSet is the typed view of a touchpoint cell.
type ChannelSet struct {
	Channels []Channel
	Note     string
}

// ReadChannelSet decodes a channel-set cell. Entries without an id or label are dropped;
// bare strings are accepted as both id and label.
func ReadChannelSet(c Cell) ChannelSet {
	out := ChannelSet{Note: c.String("note")}
	raw, _ := c["channels"].([]any)
	for _, item := range raw {
		var ch Channel
		switch v := item.(type) {
		case string:
			ch = Channel{ID: v, Label: v}
		case map[string]any:
			entry := Cell(v)
			ch = Channel{ID: entry.String("id"), Label: entry.String("label")}
		default:
			continue
		}
		ch.ID = strings.ToLower(strings.TrimSpace(ch.ID))
		ch.Label = strings.TrimSpace(ch.Label)
		if ch.ID == "" {
			ch.ID = strings.ToLower(ch.Label)
		}
		if ch.Label == "" {
			ch.Label = ch.ID
		}
		if ch.ID == "" {
			continue
		}
		out.Channels = append(out.Channels, ch)
	}
	return out
}

// Sentiment is the typed view of a sentiment cell.
type Sentiment struct {
	Value float64
	Set   bool
	Note  string
}

// ReadSentiment decodes a sentiment cell. Set is false when no numeric value is present.
func ReadSentiment(c Cell) Sentiment {
	f, ok := c.Number("value")
	if !ok {
		return Sentiment{Note: c.String("note")}
	}
	f = math.Min(SentimentMax, math.Max(SentimentMin, f))
	return Sentiment{Value: f, Set: true, Note: c.String("note")}
}

// RatedText is the typed view of pain-point and opportunity cells.
type RatedText struct {
	Value string
	Level int
	Set   bool
}

// ReadRatedText decodes a rated-text cell using scaleKey ("severity" or "impact").
// A missing or non-numeric level reads as unset.
func ReadRatedText(c Cell, scaleKey string) RatedText {
	out := RatedText{Value: c.String("value")}
	if level, ok := c.Int(scaleKey); ok {
		out.Level = clampInt(level, ScaleMin, ScaleMax)
		out.Set = true
	}
	return out
}

// KPI is the typed view of a KPI cell.
type KPI struct {
	Label string
	Value string
	Trend string
}

// ReadKPI decodes a KPI cell.
func ReadKPI(c Cell) KPI {
	return KPI{
		Label: c.String("label"),
		Value: c.String("value"),
		Trend: normalizeTrend(c.String("trend")),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundHalfUp rounds x to the nearest integer with halves going toward positive infinity.
func RoundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
