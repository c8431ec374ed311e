package app

import (
	"fmt"
	"strings"

	"github.com/hylla/journeymap/internal/analytics"
	"github.com/hylla/journeymap/internal/domain"
)

// maxMarkdownOpportunities bounds the ranked opportunity list in rendered summaries.
const maxMarkdownOpportunities = 3

// RenderMarkdown renders a document as a stages by sections table followed by an analytics summary.
func RenderMarkdown(doc domain.Document, report analytics.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(doc.Title))

	if len(doc.Stages) == 0 || len(doc.Sections) == 0 {
		b.WriteString("_No cells yet._\n")
	} else {
		b.WriteString("| Section |")
		for _, stage := range doc.Stages {
			fmt.Fprintf(&b, " %s |", escapeCell(stage.Name))
		}
		b.WriteString("\n| --- |")
		for range doc.Stages {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, section := range doc.Sections {
			fmt.Fprintf(&b, "| **%s** |", escapeCell(section.Title))
			for _, stage := range doc.Stages {
				text := domain.ExtractText(section.Cell(stage.ID), section.Type)
				fmt.Fprintf(&b, " %s |", escapeCell(text))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Summary\n\n")
	fmt.Fprintf(&b, "- Completeness: %.0f%% (%d of %d cells)\n", report.Completeness*100, report.FilledCells, report.TotalCells)
	fmt.Fprintf(&b, "- Average sentiment: %.1f (%s)\n", report.AverageSentiment, report.Trend.Direction)
	if name := stageName(doc, report.Trend.HighStageID); name != "" {
		fmt.Fprintf(&b, "- Emotional high: %s\n", escapeMarkdown(name))
	}
	if name := stageName(doc, report.Trend.LowStageID); name != "" {
		fmt.Fprintf(&b, "- Emotional low: %s\n", escapeMarkdown(name))
	}
	if hot := painHotspot(report.PainByStage); hot.Count > 0 {
		fmt.Fprintf(&b, "- Pain hotspot: %s (%d pain points, max severity %d)\n", escapeMarkdown(stageName(doc, hot.StageID)), hot.Count, hot.MaxSeverity)
	}
	if len(report.ChannelDistribution) > 0 {
		parts := make([]string, 0, len(report.ChannelDistribution))
		for _, ch := range report.ChannelDistribution {
			parts = append(parts, fmt.Sprintf("%s (%d)", escapeMarkdown(ch.Label), ch.Count))
		}
		fmt.Fprintf(&b, "- Channels: %s\n", strings.Join(parts, ", "))
	}

	if len(report.Opportunities) > 0 {
		b.WriteString("\n### Top opportunities\n\n")
		for i, opp := range report.Opportunities {
			if i == maxMarkdownOpportunities {
				break
			}
			fmt.Fprintf(&b, "%d. %s (impact %d, %s)\n", i+1, escapeMarkdown(opp.Text), opp.Impact, escapeMarkdown(opp.StageName))
		}
	}
	return b.String()
}

func stageName(doc domain.Document, stageID string) string {
	if stageID == "" {
		return ""
	}
	stage, ok := doc.Stage(stageID)
	if !ok {
		return ""
	}
	return stage.Name
}

// painHotspot picks the stage with the most pain points, breaking ties by severity then order.
func painHotspot(pains []analytics.StagePain) analytics.StagePain {
	var best analytics.StagePain
	for _, p := range pains {
		if p.Count > best.Count || (p.Count == best.Count && p.Count > 0 && p.MaxSeverity > best.MaxSeverity) {
			best = p
		}
	}
	return best
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", "<br>")
	return strings.ReplaceAll(escapeMarkdown(s), "|", `\|`)
}

func escapeMarkdown(s string) string {
	return strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`").Replace(s)
}
