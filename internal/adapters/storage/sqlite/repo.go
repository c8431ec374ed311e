package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores maps, versions, and comments in one SQLite database.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	// One connection serializes overlapping saves and keeps per-connection pragmas in effect.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS journey_maps (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			persona_id TEXT NOT NULL DEFAULT '',
			document_json TEXT NOT NULL,
			version_seq INTEGER NOT NULL DEFAULT 0,
			updated_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS map_versions (
			map_id TEXT NOT NULL,
			version_number INTEGER NOT NULL,
			document_json TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			PRIMARY KEY(map_id, version_number),
			FOREIGN KEY(map_id) REFERENCES journey_maps(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS cell_comments (
			id TEXT PRIMARY KEY,
			map_id TEXT NOT NULL,
			section_id TEXT NOT NULL,
			stage_id TEXT NOT NULL,
			content TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT 'journeymap-user',
			resolved INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			resolved_at TEXT,
			FOREIGN KEY(map_id) REFERENCES journey_maps(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journey_maps_updated ON journey_maps(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_cell_comments_anchor ON cell_comments(map_id, section_id, stage_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateJourneyMap creates journey map.
func (r *Repository) CreateJourneyMap(ctx context.Context, m domain.JourneyMap) error {
	if strings.TrimSpace(m.ID) == "" {
		return domain.ErrInvalidID
	}
	docJSON, err := encodeDocument(m.Document)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO journey_maps(id, title, persona_id, document_json, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Title, m.PersonaID, docJSON, m.UpdatedBy, ts(m.CreatedAt), ts(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert journey map: %w", err)
	}
	return nil
}

// UpdateJourneyMap replaces the stored document and metadata. The version counter is untouched.
func (r *Repository) UpdateJourneyMap(ctx context.Context, m domain.JourneyMap) error {
	docJSON, err := encodeDocument(m.Document)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE journey_maps
		SET title = ?, persona_id = ?, document_json = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
	`, m.Title, m.PersonaID, docJSON, m.UpdatedBy, ts(m.UpdatedAt), m.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetJourneyMap returns journey map.
func (r *Repository) GetJourneyMap(ctx context.Context, id string) (domain.JourneyMap, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, persona_id, document_json, updated_by, created_at, updated_at
		FROM journey_maps
		WHERE id = ?
	`, id)
	return scanJourneyMap(row)
}

// ListJourneyMaps lists journey maps, most recently updated first.
func (r *Repository) ListJourneyMaps(ctx context.Context) ([]domain.JourneyMap, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, persona_id, document_json, updated_by, created_at, updated_at
		FROM journey_maps
		ORDER BY updated_at DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.JourneyMap, 0)
	for rows.Next() {
		m, scanErr := scanJourneyMap(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteJourneyMap deletes a map with its versions and comments.
func (r *Repository) DeleteJourneyMap(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM map_versions WHERE map_id = ?`,
		`DELETE FROM cell_comments WHERE map_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM journey_maps WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// AppendVersion bumps the map's version counter and stores doc under the new number in one
// transaction.
func (r *Repository) AppendVersion(ctx context.Context, mapID string, doc domain.Document, createdBy string, at time.Time) (_ domain.Version, err error) {
	docJSON, err := encodeDocument(doc)
	if err != nil {
		return domain.Version{}, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Version{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE journey_maps SET version_seq = version_seq + 1 WHERE id = ?`, mapID)
	if err != nil {
		return domain.Version{}, err
	}
	if err = translateNoRows(res); err != nil {
		return domain.Version{}, err
	}
	var number int
	if err = tx.QueryRowContext(ctx, `SELECT version_seq FROM journey_maps WHERE id = ?`, mapID).Scan(&number); err != nil {
		return domain.Version{}, err
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO map_versions(map_id, version_number, document_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, mapID, number, docJSON, createdBy, ts(at)); err != nil {
		return domain.Version{}, fmt.Errorf("insert version: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.Version{}, err
	}
	return domain.Version{
		MapID:     mapID,
		Number:    number,
		Document:  doc.Clone(),
		CreatedBy: createdBy,
		CreatedAt: at.UTC(),
	}, nil
}

// PutVersion stores a version under its own number and keeps the counter at or above it.
// An existing version with the same number is left untouched and reported as app.ErrVersionExists.
func (r *Repository) PutVersion(ctx context.Context, v domain.Version) (err error) {
	if v.Number <= 0 {
		return domain.ErrInvalidVersion
	}
	docJSON, err := encodeDocument(v.Document)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE journey_maps SET version_seq = MAX(version_seq, ?) WHERE id = ?`, v.Number, v.MapID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	res, err = tx.ExecContext(ctx, `
		INSERT INTO map_versions(map_id, version_number, document_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(map_id, version_number) DO NOTHING
	`, v.MapID, v.Number, docJSON, v.CreatedBy, ts(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		err = fmt.Errorf("version %d of map %q: %w", v.Number, v.MapID, app.ErrVersionExists)
		return err
	}
	err = tx.Commit()
	return err
}

// ListVersions lists version summaries newest first.
func (r *Repository) ListVersions(ctx context.Context, mapID string) ([]domain.VersionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT map_id, version_number, created_by, created_at
		FROM map_versions
		WHERE map_id = ?
		ORDER BY version_number DESC
	`, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.VersionSummary, 0)
	for rows.Next() {
		var (
			v          domain.VersionSummary
			createdRaw string
		)
		if err := rows.Scan(&v.MapID, &v.Number, &v.CreatedBy, &createdRaw); err != nil {
			return nil, err
		}
		v.CreatedAt = parseTS(createdRaw)
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersion returns one version with its snapshot.
func (r *Repository) GetVersion(ctx context.Context, mapID string, number int) (domain.Version, error) {
	var (
		v          domain.Version
		docRaw     string
		createdRaw string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT map_id, version_number, document_json, created_by, created_at
		FROM map_versions
		WHERE map_id = ? AND version_number = ?
	`, mapID, number).Scan(&v.MapID, &v.Number, &docRaw, &v.CreatedBy, &createdRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Version{}, app.ErrNotFound
		}
		return domain.Version{}, err
	}
	if v.Document, err = decodeDocument(docRaw); err != nil {
		return domain.Version{}, err
	}
	v.CreatedAt = parseTS(createdRaw)
	return v, nil
}

// CreateComment creates comment.
func (r *Repository) CreateComment(ctx context.Context, comment domain.Comment) error {
	if strings.TrimSpace(comment.ID) == "" {
		return domain.ErrInvalidID
	}
	anchor, err := domain.NormalizeCommentAnchor(domain.CommentAnchor{
		MapID:     comment.MapID,
		SectionID: comment.SectionID,
		StageID:   comment.StageID,
	})
	if err != nil {
		return err
	}
	content := strings.TrimSpace(comment.Content)
	if content == "" {
		return domain.ErrInvalidContent
	}
	authorName := strings.TrimSpace(comment.AuthorName)
	if authorName == "" {
		authorName = "journeymap-user"
	}
	createdAt := comment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := comment.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cell_comments(id, map_id, section_id, stage_id, content, author_name, resolved, created_at, updated_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		comment.ID,
		anchor.MapID,
		anchor.SectionID,
		anchor.StageID,
		content,
		authorName,
		boolInt(comment.Resolved),
		ts(createdAt),
		ts(updatedAt),
		nullableTS(comment.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// UpdateComment updates content and resolution state.
func (r *Repository) UpdateComment(ctx context.Context, comment domain.Comment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cell_comments
		SET content = ?, author_name = ?, resolved = ?, updated_at = ?, resolved_at = ?
		WHERE id = ?
	`, comment.Content, comment.AuthorName, boolInt(comment.Resolved), ts(comment.UpdatedAt), nullableTS(comment.ResolvedAt), comment.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetComment returns comment.
func (r *Repository) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, map_id, section_id, stage_id, content, author_name, resolved, created_at, updated_at, resolved_at
		FROM cell_comments
		WHERE id = ?
	`, id)
	return scanComment(row)
}

// ListComments lists comments matching filter, oldest first.
func (r *Repository) ListComments(ctx context.Context, filter app.CommentFilter) ([]domain.Comment, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 3)
	for _, f := range []struct {
		column string
		value  string
	}{
		{"map_id", filter.MapID},
		{"section_id", filter.SectionID},
		{"stage_id", filter.StageID},
	} {
		if v := strings.TrimSpace(f.value); v != "" {
			clauses = append(clauses, f.column+" = ?")
			args = append(args, v)
		}
	}
	if !filter.IncludeResolved {
		clauses = append(clauses, "resolved = 0")
	}
	query := `
		SELECT id, map_id, section_id, stage_id, content, author_name, resolved, created_at, updated_at, resolved_at
		FROM cell_comments`
	if len(clauses) > 0 {
		query += "\n\t\tWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\n\t\tORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Comment, 0)
	for rows.Next() {
		comment, scanErr := scanComment(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, comment)
	}
	return out, rows.Err()
}

// DeleteComment deletes comment.
func (r *Repository) DeleteComment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cell_comments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// scanner describes scanner behavior required by callers.
type scanner interface {
	Scan(dest ...any) error
}

// scanJourneyMap handles scan journey map.
func scanJourneyMap(s scanner) (domain.JourneyMap, error) {
	var (
		m          domain.JourneyMap
		docRaw     string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&m.ID, &m.Title, &m.PersonaID, &docRaw, &m.UpdatedBy, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.JourneyMap{}, app.ErrNotFound
		}
		return domain.JourneyMap{}, err
	}
	doc, err := decodeDocument(docRaw)
	if err != nil {
		return domain.JourneyMap{}, fmt.Errorf("map %q: %w", m.ID, err)
	}
	m.Document = doc
	m.CreatedAt = parseTS(createdRaw)
	m.UpdatedAt = parseTS(updatedRaw)
	return m, nil
}

// scanComment handles scan comment.
func scanComment(s scanner) (domain.Comment, error) {
	var (
		c          domain.Comment
		resolved   int
		createdRaw string
		updatedRaw string
		resolvedAt sql.NullString
	)
	if err := s.Scan(&c.ID, &c.MapID, &c.SectionID, &c.StageID, &c.Content, &c.AuthorName, &resolved, &createdRaw, &updatedRaw, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Comment{}, app.ErrNotFound
		}
		return domain.Comment{}, err
	}
	c.Resolved = resolved != 0
	c.CreatedAt = parseTS(createdRaw)
	c.UpdatedAt = parseTS(updatedRaw)
	c.ResolvedAt = parseNullTS(resolvedAt)
	return c, nil
}

// encodeDocument stores a document as JSON. Nil stage and section lists survive as null so a
// load can tell a missing list from an empty one.
func encodeDocument(doc domain.Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

// decodeDocument parses a stored document.
func decodeDocument(raw string) (domain.Document, error) {
	var doc domain.Document
	if strings.TrimSpace(raw) == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.Document{}, fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}
	return doc, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

var _ app.Repository = (*Repository)(nil)
