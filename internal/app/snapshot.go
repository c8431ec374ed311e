package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/journeymap/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "journeymap.snapshot.v1"

// Snapshot is a portable dump of maps, their version history, and comments.
type Snapshot struct {
	Version    string              `json:"version" yaml:"version"`
	ExportedAt time.Time           `json:"exported_at" yaml:"exported_at"`
	Maps       []domain.JourneyMap `json:"maps" yaml:"maps"`
	Versions   []domain.Version    `json:"versions,omitempty" yaml:"versions,omitempty"`
	Comments   []domain.Comment    `json:"comments,omitempty" yaml:"comments,omitempty"`
}

// ExportOptions narrows a snapshot export.
type ExportOptions struct {
	// MapIDs limits the export to these maps. Empty exports every map.
	MapIDs          []string
	IncludeVersions bool
	IncludeResolved bool
}

// ExportSnapshot dumps stored maps with their versions and comments.
func (s *Service) ExportSnapshot(ctx context.Context, opts ExportOptions) (Snapshot, error) {
	maps, err := s.exportMaps(ctx, opts.MapIDs)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Maps:       make([]domain.JourneyMap, 0, len(maps)),
		Versions:   make([]domain.Version, 0),
		Comments:   make([]domain.Comment, 0),
	}
	for _, m := range maps {
		snap.Maps = append(snap.Maps, m)
		if opts.IncludeVersions {
			summaries, listErr := s.repo.ListVersions(ctx, m.ID)
			if listErr != nil {
				return Snapshot{}, persistenceError("export versions", listErr)
			}
			for _, summary := range summaries {
				v, getErr := s.repo.GetVersion(ctx, m.ID, summary.Number)
				if getErr != nil {
					return Snapshot{}, persistenceError("export versions", getErr)
				}
				snap.Versions = append(snap.Versions, v)
			}
		}
		comments, listErr := s.repo.ListComments(ctx, CommentFilter{MapID: m.ID, IncludeResolved: opts.IncludeResolved})
		if listErr != nil {
			return Snapshot{}, persistenceError("export comments", listErr)
		}
		snap.Comments = append(snap.Comments, comments...)
	}
	snap.sort()
	return snap, nil
}

func (s *Service) exportMaps(ctx context.Context, ids []string) ([]domain.JourneyMap, error) {
	if len(ids) == 0 {
		return s.ListMaps(ctx)
	}
	out := make([]domain.JourneyMap, 0, len(ids))
	for _, id := range ids {
		m, err := s.repo.GetJourneyMap(ctx, strings.TrimSpace(id))
		if err != nil {
			return nil, persistenceError("export map", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	MapsCreated int `json:"maps_created"`
	MapsUpdated int `json:"maps_updated"`
	Versions    int `json:"versions"`
	// VersionsSkipped counts versions whose number was already taken; stored history wins.
	VersionsSkipped int `json:"versions_skipped"`
	Comments        int `json:"comments"`
	Repaired        int `json:"repaired"`
}

// ImportSnapshot upserts every map, version, and comment in snap. Map documents are repaired
// before they are stored.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) (ImportResult, error) {
	if err := snap.Validate(); err != nil {
		return ImportResult{}, err
	}
	snap.sort()

	var res ImportResult
	for _, m := range snap.Maps {
		doc, report, err := domain.Repair(m.Document, s.idGen)
		if err != nil {
			return res, fmt.Errorf("map %q: %w", m.ID, err)
		}
		if report.Changed() {
			res.Repaired++
		}
		m.Document = doc
		m.Title = doc.Title
		created, err := s.upsertMap(ctx, m)
		if err != nil {
			return res, err
		}
		if created {
			res.MapsCreated++
		} else {
			res.MapsUpdated++
		}
	}
	for _, v := range snap.Versions {
		if err := s.repo.PutVersion(ctx, v); err != nil {
			if errors.Is(err, ErrVersionExists) {
				res.VersionsSkipped++
				continue
			}
			return res, persistenceError("import version", err)
		}
		res.Versions++
	}
	for _, c := range snap.Comments {
		if err := s.upsertComment(ctx, c); err != nil {
			return res, err
		}
		res.Comments++
	}
	for _, m := range snap.Maps {
		if stored, err := s.repo.GetJourneyMap(ctx, m.ID); err == nil {
			s.reindex(ctx, stored)
		}
	}
	return res, nil
}

// Validate checks ids, references, and timestamps before anything is written.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version %q", ErrInvalidSnapshot, s.Version)
	}

	mapIDs := map[string]struct{}{}
	for i, m := range s.Maps {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("%w: maps[%d].id is required", ErrInvalidSnapshot, i)
		}
		if m.CreatedAt.IsZero() || m.UpdatedAt.IsZero() {
			return fmt.Errorf("%w: maps[%d] timestamps are required", ErrInvalidSnapshot, i)
		}
		if _, exists := mapIDs[m.ID]; exists {
			return fmt.Errorf("%w: duplicate map id %q", ErrInvalidSnapshot, m.ID)
		}
		mapIDs[m.ID] = struct{}{}
	}

	type versionKey struct {
		mapID  string
		number int
	}
	versionKeys := map[versionKey]struct{}{}
	for i, v := range s.Versions {
		if _, ok := mapIDs[v.MapID]; !ok {
			return fmt.Errorf("%w: versions[%d] references unknown map %q", ErrInvalidSnapshot, i, v.MapID)
		}
		if v.Number <= 0 {
			return fmt.Errorf("%w: versions[%d].version_number must be positive", ErrInvalidSnapshot, i)
		}
		key := versionKey{v.MapID, v.Number}
		if _, exists := versionKeys[key]; exists {
			return fmt.Errorf("%w: duplicate version %d for map %q", ErrInvalidSnapshot, v.Number, v.MapID)
		}
		versionKeys[key] = struct{}{}
	}

	commentIDs := map[string]struct{}{}
	for i, c := range s.Comments {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("%w: comments[%d].id is required", ErrInvalidSnapshot, i)
		}
		if _, ok := mapIDs[c.MapID]; !ok {
			return fmt.Errorf("%w: comments[%d] references unknown map %q", ErrInvalidSnapshot, i, c.MapID)
		}
		if strings.TrimSpace(c.SectionID) == "" || strings.TrimSpace(c.StageID) == "" {
			return fmt.Errorf("%w: comments[%d] anchor is incomplete", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(c.Content) == "" {
			return fmt.Errorf("%w: comments[%d].content is required", ErrInvalidSnapshot, i)
		}
		if _, exists := commentIDs[c.ID]; exists {
			return fmt.Errorf("%w: duplicate comment id %q", ErrInvalidSnapshot, c.ID)
		}
		commentIDs[c.ID] = struct{}{}
	}
	return nil
}

func (s *Service) upsertMap(ctx context.Context, m domain.JourneyMap) (bool, error) {
	if _, err := s.repo.GetJourneyMap(ctx, m.ID); err == nil {
		if err := s.repo.UpdateJourneyMap(ctx, m); err != nil {
			return false, persistenceError("import map", err)
		}
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, persistenceError("import map", err)
	}
	if err := s.repo.CreateJourneyMap(ctx, m); err != nil {
		return false, persistenceError("import map", err)
	}
	return true, nil
}

func (s *Service) upsertComment(ctx context.Context, c domain.Comment) error {
	if _, err := s.repo.GetComment(ctx, c.ID); err == nil {
		if err := s.repo.UpdateComment(ctx, c); err != nil {
			return persistenceError("import comment", err)
		}
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return persistenceError("import comment", err)
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return persistenceError("import comment", err)
	}
	return nil
}

// sort orders snapshot rows deterministically so exports diff cleanly.
func (s *Snapshot) sort() {
	slices.SortStableFunc(s.Maps, func(a, b domain.JourneyMap) int {
		return cmp.Compare(a.ID, b.ID)
	})
	slices.SortStableFunc(s.Versions, func(a, b domain.Version) int {
		return cmp.Or(cmp.Compare(a.MapID, b.MapID), cmp.Compare(a.Number, b.Number))
	})
	slices.SortStableFunc(s.Comments, func(a, b domain.Comment) int {
		return cmp.Or(
			cmp.Compare(a.MapID, b.MapID),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
}
