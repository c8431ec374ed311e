package domain

import (
	"strings"
	"time"
)

// JourneyMap is the stored record that owns one document and its version history.
type JourneyMap struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	PersonaID string    `json:"persona_id,omitempty" yaml:"persona_id,omitempty"`
	Document  Document  `json:"document" yaml:"document"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty" yaml:"updated_by,omitempty"`
}

// NewJourneyMap constructs a map record around a document. The map title follows the document title.
func NewJourneyMap(id string, doc Document, now time.Time) (JourneyMap, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return JourneyMap{}, ErrInvalidID
	}
	if doc.Title = strings.TrimSpace(doc.Title); doc.Title == "" {
		doc.Title = DefaultDocumentTitle
	}
	ts := now.UTC()
	return JourneyMap{
		ID:        id,
		Title:     doc.Title,
		Document:  doc.Clone(),
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// ReplaceDocument swaps in a new document and stamps the update.
func (m *JourneyMap) ReplaceDocument(doc Document, actor string, now time.Time) {
	m.Document = doc.Clone()
	m.Title = doc.Title
	m.UpdatedBy = strings.TrimSpace(actor)
	m.UpdatedAt = now.UTC()
}

// Version is an immutable snapshot of a map's document taken at save time.
type Version struct {
	MapID     string    `json:"map_id" yaml:"map_id"`
	Number    int       `json:"version_number" yaml:"version_number"`
	Document  Document  `json:"document" yaml:"document"`
	CreatedBy string    `json:"created_by" yaml:"created_by"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// VersionSummary is the list form of a version.
type VersionSummary struct {
	MapID     string    `json:"map_id" yaml:"map_id"`
	Number    int       `json:"version_number" yaml:"version_number"`
	CreatedBy string    `json:"created_by" yaml:"created_by"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Summary drops the snapshot from a version.
func (v Version) Summary() VersionSummary {
	return VersionSummary{MapID: v.MapID, Number: v.Number, CreatedBy: v.CreatedBy, CreatedAt: v.CreatedAt}
}
