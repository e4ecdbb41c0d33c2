package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS content_records (
    id                  TEXT PRIMARY KEY,
    external_id         TEXT NOT NULL UNIQUE,
    title               TEXT NOT NULL,
    kind                TEXT NOT NULL CHECK (kind IN ('Movie', 'TVShow', 'KidsContent')),
    release_date        TEXT,
    poster_ref          TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    popularity          REAL NOT NULL DEFAULT 0,
    genre_tags          TEXT NOT NULL DEFAULT '[]',
    ratings             TEXT NOT NULL DEFAULT '[]',
    average_rating      REAL,
    negative_flag_count INTEGER NOT NULL DEFAULT 0,
    category_tally      TEXT NOT NULL DEFAULT '{}',
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS content_records_kind_idx ON content_records (kind);
`

const dateLayout = "2006-01-02"

// SQLiteStore is a single-file store for development and the CLI. Tag and
// rating collections are stored as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers, which MergeCatalog's
	// read-modify-write relies on.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (ContentRecord, error) {
	return s.getOne(ctx, s.db, `SELECT `+recordColumns+` FROM content_records WHERE id = ?`, id)
}

func (s *SQLiteStore) GetByExternalID(ctx context.Context, externalID string) (ContentRecord, error) {
	return s.getOne(ctx, s.db, `SELECT `+recordColumns+` FROM content_records WHERE external_id = ?`, externalID)
}

func (s *SQLiteStore) Insert(ctx context.Context, rec NewRecord) (ContentRecord, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tags, _ := json.Marshal(NormalizeTags(rec.GenreTags))
	_, err := s.db.ExecContext(ctx, `
INSERT INTO content_records (id, external_id, title, kind, release_date, poster_ref, description, popularity, genre_tags, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		id, rec.ExternalID, rec.Title, string(rec.Kind), formatDate(rec.ReleaseDate),
		rec.PosterRef, rec.Description, rec.Popularity, string(tags), now, now,
	)
	if err != nil {
		if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) || errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY) {
			return ContentRecord{}, ErrDuplicate
		}
		return ContentRecord{}, fmt.Errorf("insert record: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SQLiteStore) MergeCatalog(ctx context.Context, id string, u CatalogUpdate) (ContentRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ContentRecord{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := s.getOne(ctx, tx, `SELECT `+recordColumns+` FROM content_records WHERE id = ?`, id)
	if err != nil {
		return ContentRecord{}, err
	}
	merged, _ := UnionTags(cur.GenreTags, u.GenreTags)
	tags, _ := json.Marshal(merged)
	pop := cur.Popularity
	if u.Popularity != nil {
		pop = *u.Popularity
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE content_records SET genre_tags = ?, popularity = ?, updated_at = ? WHERE id = ?`,
		string(tags), pop, time.Now().UTC().Format(time.RFC3339Nano), id,
	); err != nil {
		return ContentRecord{}, fmt.Errorf("merge record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ContentRecord{}, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SQLiteStore) Find(ctx context.Context, f Filter) ([]ContentRecord, error) {
	where, args := sqliteWhere(f)
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM content_records`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer rows.Close()

	out := make([]ContentRecord, 0)
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		// SQLite's lower() folds ASCII only, and score bounds fall back to
		// the mean of a JSON column; both are checked here.
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

// SeedRatings overwrites the rating state of a record. It stands in for the
// rating-submission workflow in tests and fixtures.
func (s *SQLiteStore) SeedRatings(ctx context.Context, id string, ratings []float64, flags int, tally map[string]int) error {
	if ratings == nil {
		ratings = []float64{}
	}
	if tally == nil {
		tally = map[string]int{}
	}
	rb, _ := json.Marshal(ratings)
	tb, _ := json.Marshal(tally)
	var avg *float64
	if len(ratings) > 0 {
		a := ContentRecord{Ratings: ratings}.Score()
		avg = &a
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_records SET ratings = ?, average_rating = ?, negative_flag_count = ?, category_tally = ? WHERE id = ?`,
		string(rb), avg, flags, string(tb), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func sqliteWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Genre > 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(genre_tags) WHERE value = ?)")
		args = append(args, f.Genre)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(category_tally) WHERE key = ? AND value > 0)")
		args = append(args, c)
	}
	if f.FlaggedOnly {
		conds = append(conds, "negative_flag_count > 0")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getOne(ctx context.Context, q queryer, query string, args ...any) (ContentRecord, error) {
	r, err := scanSQLite(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ContentRecord{}, ErrNotFound
	}
	return r, err
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row sqlScanner) (ContentRecord, error) {
	var (
		r                    ContentRecord
		kind                 string
		release              sql.NullString
		avg                  sql.NullFloat64
		tags, ratings, tally string
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &r.ExternalID, &r.Title, &kind, &release, &r.PosterRef, &r.Description,
		&r.Popularity, &tags, &ratings, &avg, &r.NegativeFlagCount, &tally, &createdAt, &updatedAt); err != nil {
		return ContentRecord{}, err
	}
	r.Kind = Kind(kind)
	if release.Valid && release.String != "" {
		if d, err := time.Parse(dateLayout, release.String); err == nil {
			r.ReleaseDate = &d
		}
	}
	if avg.Valid {
		a := avg.Float64
		r.AverageRating = &a
	}
	if err := json.Unmarshal([]byte(tags), &r.GenreTags); err != nil {
		return ContentRecord{}, fmt.Errorf("decode genre_tags: %w", err)
	}
	if err := json.Unmarshal([]byte(ratings), &r.Ratings); err != nil {
		return ContentRecord{}, fmt.Errorf("decode ratings: %w", err)
	}
	if err := json.Unmarshal([]byte(tally), &r.CategoryTally); err != nil {
		return ContentRecord{}, fmt.Errorf("decode category_tally: %w", err)
	}
	if r.GenreTags == nil {
		r.GenreTags = []int{}
	}
	if r.Ratings == nil {
		r.Ratings = []float64{}
	}
	if r.CategoryTally == nil {
		r.CategoryTally = map[string]int{}
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return r, nil
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dateLayout)
}
