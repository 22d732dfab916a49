package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/domain"
)

// Compile-time interface verification.
var _ cache.Store = (*PgCacheStore)(nil)

// PgCacheStore is the PostgreSQL implementation of cache.Store.
type PgCacheStore struct {
	db DBTX
}

// NewPgCacheStore creates a new PostgreSQL cache store.
func NewPgCacheStore(db DBTX) *PgCacheStore {
	return &PgCacheStore{db: db}
}

// Get returns the live entry for key, or nil when there is none.
func (s *PgCacheStore) Get(ctx context.Context, key cache.Key, now time.Time) (*cache.Entry, error) {
	query := `
		SELECT value, expires_at
		FROM citation_cache
		WHERE cache_key = $1 AND expires_at > $2`

	entry := &cache.Entry{Key: key}
	err := s.db.QueryRow(ctx, query, key.String(), now).Scan(&entry.Value, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return entry, nil
}

// Set upserts entry, replacing any previous value and expiry for its key.
func (s *PgCacheStore) Set(ctx context.Context, entry cache.Entry) error {
	if entry.Key.Digest == "" {
		return domain.NewValidationError("key", "cache key digest is required")
	}

	query := `
		INSERT INTO citation_cache (cache_key, source, kind, value, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (cache_key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()`

	_, err := s.db.Exec(ctx, query,
		entry.Key.String(),
		string(entry.Key.Source),
		string(entry.Key.Kind),
		entry.Value,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	return nil
}

// PurgeExpired deletes rows whose expiry is at or before now and returns how
// many were removed.
func (s *PgCacheStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM citation_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeSource deletes every row cached for source regardless of expiry.
func (s *PgCacheStore) PurgeSource(ctx context.Context, source domain.SourceType) (int64, error) {
	if source == "" {
		return 0, domain.NewValidationError("source", "source is required")
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM citation_cache WHERE source = $1`, string(source))
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries for %s: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// KindStats counts the rows held for one source and query kind.
type KindStats struct {
	Source  domain.SourceType `json:"source"`
	Kind    domain.QueryKind  `json:"kind"`
	Live    int64             `json:"live"`
	Expired int64             `json:"expired"`
}

// Stats summarizes the table by source and kind as of now.
func (s *PgCacheStore) Stats(ctx context.Context, now time.Time) ([]KindStats, error) {
	query := `
		SELECT source, kind,
			COUNT(*) FILTER (WHERE expires_at > $1) AS live,
			COUNT(*) FILTER (WHERE expires_at <= $1) AS expired
		FROM citation_cache
		GROUP BY source, kind
		ORDER BY source, kind`

	rows, err := s.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache stats: %w", err)
	}
	defer rows.Close()

	var out []KindStats
	for rows.Next() {
		var (
			st           KindStats
			source, kind string
		)
		if err := rows.Scan(&source, &kind, &st.Live, &st.Expired); err != nil {
			return nil, fmt.Errorf("failed to scan cache stats: %w", err)
		}
		st.Source = domain.SourceType(source)
		st.Kind = domain.QueryKind(kind)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache stats: %w", err)
	}

	return out, nil
}
