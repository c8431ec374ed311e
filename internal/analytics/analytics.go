// Package analytics reduces a journey map document into dashboard figures.
package analytics

import (
	"slices"

	"github.com/hylla/journeymap/internal/curve"
	"github.com/hylla/journeymap/internal/domain"
)

// StagePain summarizes pain points at one stage.
type StagePain struct {
	StageID     string `json:"stage_id"`
	MaxSeverity int    `json:"max_severity"`
	Count       int    `json:"count"`
}

// ChannelCount is one bucket of the channel distribution.
type ChannelCount struct {
	ChannelID string `json:"channel_id"`
	Label     string `json:"label"`
	Count     int    `json:"count"`
}

// KPIRecord is one collected KPI cell.
type KPIRecord struct {
	StageID   string `json:"stage_id"`
	StageName string `json:"stage_name"`
	SectionID string `json:"section_id"`
	Label     string `json:"label"`
	Value     string `json:"value"`
	Trend     string `json:"trend,omitempty"`
}

// Opportunity is one ranked opportunity cell.
type Opportunity struct {
	StageID   string `json:"stage_id"`
	StageName string `json:"stage_name"`
	SectionID string `json:"section_id"`
	Text      string `json:"text"`
	Impact    int    `json:"impact"`
}

// Trend is the sentiment curve summarized for display.
type Trend struct {
	Path        curve.Path `json:"path"`
	SVG         string     `json:"svg"`
	Direction   string     `json:"direction"`
	LowStageID  string     `json:"low_stage_id,omitempty"`
	HighStageID string     `json:"high_stage_id,omitempty"`
}

// Trend directions.
const (
	DirectionRising  = "rising"
	DirectionFalling = "falling"
	DirectionFlat    = "flat"
)

// Report is the full reduction of one document.
type Report struct {
	StageIDs            []string       `json:"stage_ids"`
	StageNames          []string       `json:"stage_names"`
	SentimentByStage    []int          `json:"sentiment_by_stage"`
	AverageSentiment    float64        `json:"average_sentiment"`
	PainByStage         []StagePain    `json:"pain_by_stage"`
	TouchpointsByStage  []int          `json:"touchpoints_by_stage"`
	ChannelDistribution []ChannelCount `json:"channel_distribution"`
	KPIs                []KPIRecord    `json:"kpis"`
	Opportunities       []Opportunity  `json:"opportunities"`
	FilledCells         int            `json:"filled_cells"`
	TotalCells          int            `json:"total_cells"`
	Completeness        float64        `json:"completeness"`
	Trend               Trend          `json:"trend"`
}

// Options tune the reduction.
type Options struct {
	// TrendLayout projects the sentiment trend. The zero value keeps stage index and score.
	TrendLayout curve.Layout
}

// Reduce walks every (stage, section) coordinate of doc once and builds a Report.
// It never fails: malformed or stale cells read as empty through the variant registry.
func Reduce(doc domain.Document, opts Options) Report {
	n := len(doc.Stages)
	report := Report{
		StageIDs:            doc.StageIDs(),
		StageNames:          make([]string, n),
		SentimentByStage:    make([]int, n),
		PainByStage:         make([]StagePain, n),
		TouchpointsByStage:  make([]int, n),
		ChannelDistribution: []ChannelCount{},
		KPIs:                []KPIRecord{},
		Opportunities:       []Opportunity{},
		TotalCells:          n * len(doc.Sections),
	}

	sentimentSum := make([]float64, n)
	sentimentCount := make([]int, n)
	channelIndex := map[string]int{}

	for i, stage := range doc.Stages {
		report.StageNames[i] = stage.Name
		report.PainByStage[i].StageID = stage.ID

		for _, section := range doc.Sections {
			cell := section.Cell(stage.ID)
			variant := domain.LookupVariant(section.Type)
			if cell != nil && !variant.IsEmpty(cell) {
				report.FilledCells++
			}
			if cell == nil {
				continue
			}

			switch domain.NormalizeSectionType(section.Type) {
			case domain.SectionTypeSentiment:
				if s := domain.ReadSentiment(cell); s.Set {
					sentimentSum[i] += s.Value
					sentimentCount[i]++
				}
			case domain.SectionTypePainPoints:
				rated := domain.ReadRatedText(cell, "severity")
				if rated.Set && rated.Level > report.PainByStage[i].MaxSeverity {
					report.PainByStage[i].MaxSeverity = rated.Level
				}
				if rated.Value != "" {
					report.PainByStage[i].Count++
				}
			case domain.SectionTypeTouchpoints:
				channels := domain.ReadChannelSet(cell).Channels
				report.TouchpointsByStage[i] += len(channels)
				for _, ch := range channels {
					idx, ok := channelIndex[ch.ID]
					if !ok {
						idx = len(report.ChannelDistribution)
						channelIndex[ch.ID] = idx
						report.ChannelDistribution = append(report.ChannelDistribution, ChannelCount{ChannelID: ch.ID, Label: ch.Label})
					}
					report.ChannelDistribution[idx].Count++
				}
			case domain.SectionTypeKPIs:
				if variant.IsEmpty(cell) {
					continue
				}
				kpi := domain.ReadKPI(cell)
				report.KPIs = append(report.KPIs, KPIRecord{
					StageID:   stage.ID,
					StageName: stage.Name,
					SectionID: section.ID,
					Label:     kpi.Label,
					Value:     kpi.Value,
					Trend:     kpi.Trend,
				})
			case domain.SectionTypeOpportunities:
				if variant.IsEmpty(cell) {
					continue
				}
				rated := domain.ReadRatedText(cell, "impact")
				impact := rated.Level
				if !rated.Set {
					impact = domain.ScaleMin
				}
				report.Opportunities = append(report.Opportunities, Opportunity{
					StageID:   stage.ID,
					StageName: stage.Name,
					SectionID: section.ID,
					Text:      rated.Value,
					Impact:    impact,
				})
			}
		}
	}

	scored := 0
	total := 0.0
	for i := range n {
		if sentimentCount[i] == 0 {
			continue
		}
		avg := sentimentSum[i] / float64(sentimentCount[i])
		report.SentimentByStage[i] = domain.RoundHalfUp(avg)
		total += avg
		scored++
	}
	if scored > 0 {
		report.AverageSentiment = total / float64(scored)
	}

	RankOpportunities(report.Opportunities)
	slices.SortStableFunc(report.ChannelDistribution, func(a, b ChannelCount) int {
		return b.Count - a.Count
	})
	report.Completeness = Completeness(report.FilledCells, report.TotalCells)
	report.Trend = buildTrend(report, opts.TrendLayout)
	return report
}

// RankOpportunities sorts by descending impact in place. Equal impacts keep encounter order.
func RankOpportunities(items []Opportunity) {
	slices.SortStableFunc(items, func(a, b Opportunity) int {
		return b.Impact - a.Impact
	})
}

// Completeness returns filled/total, or 0 when total is 0.
func Completeness(filled, total int) float64 {
	if total <= 0 {
		return 0
	}
	ratio := float64(filled) / float64(total)
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}

func buildTrend(report Report, layout curve.Layout) Trend {
	values := make([]float64, len(report.SentimentByStage))
	for i, v := range report.SentimentByStage {
		values[i] = float64(v)
	}
	path := curve.FromValues(values, layout)
	out := Trend{Path: path, SVG: path.SVG(), Direction: DirectionFlat}
	if len(values) == 0 {
		return out
	}

	low, high := 0, 0
	for i, v := range values {
		if v < values[low] {
			low = i
		}
		if v > values[high] {
			high = i
		}
	}
	if values[low] != values[high] {
		out.LowStageID = report.StageIDs[low]
		out.HighStageID = report.StageIDs[high]
	}
	first, last := values[0], values[len(values)-1]
	switch {
	case last > first:
		out.Direction = DirectionRising
	case last < first:
		out.Direction = DirectionFalling
	}
	return out
}
