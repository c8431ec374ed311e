package app

import (
	"context"
	"strings"

	"github.com/hylla/journeymap/internal/domain"
)

// CellRecord is the searchable text of one non-empty cell.
type CellRecord struct {
	MapID        string             `json:"map_id"`
	MapTitle     string             `json:"map_title"`
	SectionID    string             `json:"section_id"`
	SectionType  domain.SectionType `json:"section_type"`
	SectionTitle string             `json:"section_title"`
	StageID      string             `json:"stage_id"`
	StageName    string             `json:"stage_name"`
	Text         string             `json:"text"`
}

// CellMatch is one search hit.
type CellMatch struct {
	CellRecord
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// SearchCellsInput holds input values for cell search.
type SearchCellsInput struct {
	Query string
	MapID string
	Limit int
}

const defaultSearchLimit = 25

// ExtractCellRecords lists the extracted text of every non-empty cell under a live stage.
func ExtractCellRecords(m domain.JourneyMap) []CellRecord {
	out := make([]CellRecord, 0)
	for _, section := range m.Document.Sections {
		for _, stage := range m.Document.Stages {
			text := domain.ExtractText(section.Cell(stage.ID), section.Type)
			if text == "" {
				continue
			}
			out = append(out, CellRecord{
				MapID:        m.ID,
				MapTitle:     m.Title,
				SectionID:    section.ID,
				SectionType:  section.Type,
				SectionTitle: section.Title,
				StageID:      stage.ID,
				StageName:    stage.Name,
				Text:         text,
			})
		}
	}
	return out
}

// SearchCells finds cells whose extracted text matches the query. The configured index answers
// when it is healthy; otherwise stored maps are scanned.
func (s *Service) SearchCells(ctx context.Context, in SearchCellsInput) ([]CellMatch, error) {
	in.Query = strings.TrimSpace(in.Query)
	in.MapID = strings.TrimSpace(in.MapID)
	if in.Query == "" {
		return []CellMatch{}, nil
	}
	if in.Limit <= 0 {
		in.Limit = defaultSearchLimit
	}
	if s.index != nil && s.index.Healthy() {
		matches, err := s.index.SearchCells(ctx, in)
		if err == nil {
			return matches, nil
		}
		s.logger.Warn("search index query failed, scanning instead", "err", err)
	}
	return s.scanCells(ctx, in)
}

func (s *Service) scanCells(ctx context.Context, in SearchCellsInput) ([]CellMatch, error) {
	var maps []domain.JourneyMap
	if in.MapID != "" {
		m, err := s.LoadMap(ctx, in.MapID)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	} else {
		all, err := s.ListMaps(ctx)
		if err != nil {
			return nil, err
		}
		maps = all
	}

	query := strings.ToLower(in.Query)
	out := make([]CellMatch, 0)
	for _, m := range maps {
		for _, rec := range ExtractCellRecords(m) {
			lower := strings.ToLower(rec.Text)
			idx := strings.Index(lower, query)
			if idx < 0 {
				continue
			}
			out = append(out, CellMatch{CellRecord: rec, Snippet: snippet(rec.Text, idx, len(query))})
			if len(out) >= in.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// snippet trims text to a window around a match.
func snippet(text string, idx, n int) string {
	const pad = 32
	start := max(0, idx-pad)
	end := min(len(text), idx+n+pad)
	out := text[start:end]
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}
