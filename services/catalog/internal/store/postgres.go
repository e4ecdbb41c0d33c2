package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var postgresSchema string

const recordColumns = `id, external_id, title, kind, release_date, poster_ref, description, popularity,
genre_tags, ratings, average_rating, negative_flag_count, category_tally, created_at, updated_at`

// PostgresStore is the production Postgres-backed implementation.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the content_records table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (ContentRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ContentRecord{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM content_records WHERE id = $1::uuid`, id)
	return scanOne(row)
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, externalID string) (ContentRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM content_records WHERE external_id = $1`, externalID)
	return scanOne(row)
}

func (s *PostgresStore) Insert(ctx context.Context, rec NewRecord) (ContentRecord, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
INSERT INTO content_records (id, external_id, title, kind, release_date, poster_ref, description, popularity, genre_tags, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
RETURNING `+recordColumns,
		uuid.New(), rec.ExternalID, rec.Title, string(rec.Kind), rec.ReleaseDate,
		rec.PosterRef, rec.Description, rec.Popularity, toInt32(NormalizeTags(rec.GenreTags)), now,
	)
	out, err := scanOne(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ContentRecord{}, ErrDuplicate
		}
		return ContentRecord{}, err
	}
	return out, nil
}

// MergeCatalog unions tags and refreshes popularity in one statement so
// concurrent merges of the same record cannot drop each other's tags.
func (s *PostgresStore) MergeCatalog(ctx context.Context, id string, u CatalogUpdate) (ContentRecord, error) {
	row := s.db.QueryRow(ctx, `
UPDATE content_records
SET genre_tags = ARRAY(SELECT DISTINCT t FROM unnest(genre_tags || $2::int[]) AS t ORDER BY t),
    popularity = COALESCE($3, popularity),
    updated_at = $4
WHERE id = $1::uuid
RETURNING `+recordColumns,
		id, toInt32(NormalizeTags(u.GenreTags)), u.Popularity, time.Now().UTC(),
	)
	return scanOne(row)
}

func (s *PostgresStore) Find(ctx context.Context, f Filter) ([]ContentRecord, error) {
	where, args := postgresWhere(f)
	rows, err := s.db.Query(ctx, `SELECT `+recordColumns+` FROM content_records`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer rows.Close()

	out := make([]ContentRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func postgresWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if q := strings.TrimSpace(f.FreeText); q != "" {
		add(`title ILIKE $%d ESCAPE '\'`, "%"+escapeLike(q)+"%")
	}
	if f.Genre > 0 {
		add("$%d = ANY(genre_tags)", int32(f.Genre))
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		add("COALESCE((category_tally->>$%d)::int, 0) > 0", c)
	}
	if f.MinRating != nil || f.MaxRating != nil {
		conds = append(conds, "cardinality(ratings) > 0")
		score := "COALESCE(average_rating, (SELECT avg(v) FROM unnest(ratings) AS v))"
		if f.MinRating != nil {
			add(score+" >= $%d", *f.MinRating)
		}
		if f.MaxRating != nil {
			add(score+" <= $%d", *f.MaxRating)
		}
	}
	if f.FlaggedOnly {
		conds = append(conds, "negative_flag_count > 0")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanOne(row pgx.Row) (ContentRecord, error) {
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ContentRecord{}, ErrNotFound
	}
	return r, err
}

func scanRecord(row pgx.Row) (ContentRecord, error) {
	var (
		r     ContentRecord
		id    uuid.UUID
		kind  string
		tags  []int32
		tally map[string]int
	)
	if err := row.Scan(&id, &r.ExternalID, &r.Title, &kind, &r.ReleaseDate, &r.PosterRef, &r.Description,
		&r.Popularity, &tags, &r.Ratings, &r.AverageRating, &r.NegativeFlagCount, &tally, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return ContentRecord{}, err
	}
	r.ID = id.String()
	r.Kind = Kind(kind)
	r.GenreTags = make([]int, 0, len(tags))
	for _, t := range tags {
		r.GenreTags = append(r.GenreTags, int(t))
	}
	if r.Ratings == nil {
		r.Ratings = []float64{}
	}
	if tally == nil {
		tally = map[string]int{}
	}
	r.CategoryTally = tally
	return r, nil
}

func toInt32(tags []int) []int32 {
	out := make([]int32, 0, len(tags))
	for _, t := range tags {
		out = append(out, int32(t))
	}
	return out
}
