// Package meili indexes extracted cell text in Meilisearch.
package meili

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
	meili "github.com/meilisearch/meilisearch-go"
)

// DefaultIndexUID names the cell index when none is configured.
const DefaultIndexUID = "journeymap_cells"

// errUnhealthy reports that the server did not answer its last health check.
var errUnhealthy = errors.New("meilisearch unhealthy")

// Config holds connection settings for the indexer.
type Config struct {
	URL            string
	APIKey         string
	IndexUID       string
	HealthInterval time.Duration
}

// cellDocument is the indexed form of one cell.
type cellDocument struct {
	ID           string `json:"id"`
	MapID        string `json:"mapId"`
	MapTitle     string `json:"mapTitle"`
	SectionID    string `json:"sectionId"`
	SectionType  string `json:"sectionType"`
	SectionTitle string `json:"sectionTitle"`
	StageID      string `json:"stageId"`
	StageName    string `json:"stageName"`
	Text         string `json:"text"`
}

// Indexer implements app.Indexer over one Meilisearch index.
type Indexer struct {
	client  meili.ServiceManager
	uid     string
	logger  app.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// New creates a client, configures the index when the server answers, and starts a background
// health monitor. An unreachable server is not an error; the indexer reports unhealthy until it
// recovers.
func New(cfg Config, logger app.Logger) *Indexer {
	if strings.TrimSpace(cfg.IndexUID) == "" {
		cfg.IndexUID = DefaultIndexUID
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	if logger == nil {
		logger = app.DiscardLogger{}
	}
	ix := &Indexer{
		client: meili.New(cfg.URL, meili.WithAPIKey(cfg.APIKey)),
		uid:    cfg.IndexUID,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := ix.client.Health(); err != nil {
		ix.logger.Warn("meilisearch unavailable", "url", cfg.URL, "err", err)
		ix.healthy.Store(false)
	} else {
		ix.healthy.Store(true)
		ix.configureIndex()
	}

	go ix.healthLoop(cfg.HealthInterval)
	return ix
}

func (ix *Indexer) configureIndex() {
	if _, err := ix.client.CreateIndex(&meili.IndexConfig{
		Uid:        ix.uid,
		PrimaryKey: "id",
	}); err != nil {
		ix.logger.Debug("create index (may already exist)", "index", ix.uid, "err", err)
	}

	index := ix.client.Index(ix.uid)
	filterable := []interface{}{"mapId", "sectionType", "stageId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		ix.logger.Warn("update filterable attributes", "index", ix.uid, "err", err)
	}
	searchable := []string{"text", "sectionTitle", "stageName", "mapTitle"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		ix.logger.Warn("update searchable attributes", "index", ix.uid, "err", err)
	}
}

func (ix *Indexer) healthLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ix.done:
			return
		case <-ticker.C:
			_, err := ix.client.Health()
			wasHealthy := ix.healthy.Load()
			ix.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				ix.logger.Info("meilisearch recovered, reconfiguring index", "index", ix.uid)
				ix.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (ix *Indexer) Close() {
	close(ix.done)
}

// Healthy reports whether Meilisearch answered its last health check.
func (ix *Indexer) Healthy() bool {
	return ix.healthy.Load()
}

// IndexMap replaces every indexed cell of a map with records.
func (ix *Indexer) IndexMap(_ context.Context, mapID string, records []app.CellRecord) error {
	if !ix.healthy.Load() {
		return errUnhealthy
	}
	index := ix.client.Index(ix.uid)
	if _, err := index.DeleteDocumentsByFilter(mapFilter(mapID), nil); err != nil {
		return fmt.Errorf("meilisearch clear map %q: %w", mapID, err)
	}
	if len(records) == 0 {
		return nil
	}
	docs := make([]cellDocument, 0, len(records))
	for _, rec := range records {
		docs = append(docs, toDocument(rec))
	}
	if _, err := index.AddDocuments(docs, nil); err != nil {
		return fmt.Errorf("meilisearch index map %q: %w", mapID, err)
	}
	return nil
}

// RemoveMap drops every indexed cell of a map.
func (ix *Indexer) RemoveMap(_ context.Context, mapID string) error {
	if !ix.healthy.Load() {
		return errUnhealthy
	}
	if _, err := ix.client.Index(ix.uid).DeleteDocumentsByFilter(mapFilter(mapID), nil); err != nil {
		return fmt.Errorf("meilisearch remove map %q: %w", mapID, err)
	}
	return nil
}

// SearchCells runs a full-text query, optionally narrowed to one map.
func (ix *Indexer) SearchCells(_ context.Context, in app.SearchCellsInput) ([]app.CellMatch, error) {
	if !ix.healthy.Load() {
		return nil, errUnhealthy
	}
	resp, err := ix.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{ix.searchRequest(in)},
	})
	if err != nil {
		ix.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	out := make([]app.CellMatch, 0)
	for _, res := range resp.Results {
		for _, hit := range res.Hits {
			out = append(out, hitToMatch(hit))
		}
	}
	return out, nil
}

func (ix *Indexer) searchRequest(in app.SearchCellsInput) *meili.SearchRequest {
	limit := int64(in.Limit)
	if limit <= 0 {
		limit = 25
	}
	req := &meili.SearchRequest{
		IndexUID:              ix.uid,
		Query:                 in.Query,
		Limit:                 limit,
		AttributesToHighlight: []string{"text"},
		HighlightPreTag:       "**",
		HighlightPostTag:      "**",
		ShowRankingScore:      true,
	}
	if strings.TrimSpace(in.MapID) != "" {
		req.Filter = []string{mapFilter(in.MapID)}
	}
	return req
}

// documentID derives a Meilisearch-safe primary key from a cell coordinate.
func documentID(mapID, sectionID, stageID string) string {
	sum := sha256.Sum256([]byte(mapID + "\x00" + sectionID + "\x00" + stageID))
	return hex.EncodeToString(sum[:16])
}

func mapFilter(mapID string) string {
	return fmt.Sprintf("mapId = %q", mapID)
}

func toDocument(rec app.CellRecord) cellDocument {
	return cellDocument{
		ID:           documentID(rec.MapID, rec.SectionID, rec.StageID),
		MapID:        rec.MapID,
		MapTitle:     rec.MapTitle,
		SectionID:    rec.SectionID,
		SectionType:  string(rec.SectionType),
		SectionTitle: rec.SectionTitle,
		StageID:      rec.StageID,
		StageName:    rec.StageName,
		Text:         rec.Text,
	}
}

func hitToMatch(hit meili.Hit) app.CellMatch {
	m := app.CellMatch{
		CellRecord: app.CellRecord{
			MapID:        decodeString(hit, "mapId"),
			MapTitle:     decodeString(hit, "mapTitle"),
			SectionID:    decodeString(hit, "sectionId"),
			SectionType:  domain.SectionType(decodeString(hit, "sectionType")),
			SectionTitle: decodeString(hit, "sectionTitle"),
			StageID:      decodeString(hit, "stageId"),
			StageName:    decodeString(hit, "stageName"),
			Text:         decodeString(hit, "text"),
		},
	}
	m.Snippet = decodeFormattedString(hit, "text")
	if raw, ok := hit["_rankingScore"]; ok {
		_ = json.Unmarshal(raw, &m.Score)
	}
	return m
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

var _ app.Indexer = (*Indexer)(nil)
