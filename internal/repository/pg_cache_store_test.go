package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/domain"
)

func testKey() cache.Key {
	return cache.NewKey(domain.SourceTypeCrossRef, domain.QueryKindID, "10.1000/xyz")
}

func TestPgCacheStore_Get(t *testing.T) {
	t.Run("returns live entry", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := NewPgCacheStore(mock)
		key := testKey()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		expires := now.Add(time.Hour)

		mock.ExpectQuery(`SELECT value, expires_at FROM citation_cache WHERE cache_key = \$1 AND expires_at > \$2`).
			WithArgs(key.String(), now).
			WillReturnRows(pgxmock.NewRows([]string{"value", "expires_at"}).
				AddRow([]byte(`[{"title":"A"}]`), expires))

		entry, err := store.Get(context.Background(), key, now)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, key, entry.Key)
		assert.JSONEq(t, `[{"title":"A"}]`, string(entry.Value))
		assert.Equal(t, expires, entry.ExpiresAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing or expired is nil without error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := NewPgCacheStore(mock)
		mock.ExpectQuery(`SELECT value, expires_at FROM citation_cache`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)

		entry, err := store.Get(context.Background(), testKey(), time.Now())
		require.NoError(t, err)
		assert.Nil(t, entry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := NewPgCacheStore(mock)
		dbErr := errors.New("connection reset")
		mock.ExpectQuery(`SELECT value, expires_at FROM citation_cache`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(dbErr)

		entry, err := store.Get(context.Background(), testKey(), time.Now())
		require.Error(t, err)
		assert.Nil(t, entry)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to get cache entry")
	})
}

func TestPgCacheStore_Set(t *testing.T) {
	t.Run("upserts entry", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := NewPgCacheStore(mock)
		key := testKey()
		expires := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

		mock.ExpectExec(`INSERT INTO citation_cache .* ON CONFLICT \(cache_key\) DO UPDATE`).
			WithArgs(key.String(), "crossref", "id", []byte(`[]`), expires).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = store.Set(context.Background(), cache.Entry{Key: key, Value: []byte(`[]`), ExpiresAt: expires})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects empty key", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := NewPgCacheStore(mock)
		err = store.Set(context.Background(), cache.Entry{Value: []byte(`[]`)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := NewPgCacheStore(mock)
		mock.ExpectExec(`INSERT INTO citation_cache`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "53300"})

		err = store.Set(context.Background(), cache.Entry{Key: testKey(), Value: []byte(`[]`), ExpiresAt: time.Now()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to set cache entry")
	})
}

func TestPgCacheStore_PurgeExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgCacheStore(mock)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM citation_cache WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := store.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCacheStore_PurgeSource(t *testing.T) {
	t.Run("deletes rows for source", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := NewPgCacheStore(mock)
		mock.ExpectExec(`DELETE FROM citation_cache WHERE source = \$1`).
			WithArgs("pubmed").
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		n, err := store.PurgeSource(context.Background(), domain.SourceTypePubMed)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires source", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		_, err = NewPgCacheStore(mock).PurgeSource(context.Background(), "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgCacheStore_Stats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgCacheStore(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT source, kind, .* FROM citation_cache GROUP BY source, kind`).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"source", "kind", "live", "expired"}).
			AddRow("arxiv", "title", int64(4), int64(1)).
			AddRow("crossref", "id", int64(10), int64(0)))

	stats, err := store.Stats(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, KindStats{Source: domain.SourceTypeArXiv, Kind: domain.QueryKindTitle, Live: 4, Expired: 1}, stats[0])
	assert.Equal(t, domain.SourceTypeCrossRef, stats[1].Source)
	assert.Equal(t, int64(10), stats[1].Live)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCacheStore_WithCache(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	key := testKey()
	mock.ExpectQuery(`SELECT value, expires_at FROM citation_cache`).
		WithArgs(key.String(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"value", "expires_at"}).
			AddRow([]byte(`"from store"`), time.Now().Add(time.Hour)))

	c, err := cache.New(cache.Config{MaxEntries: 10}, cache.WithStore(NewPgCacheStore(mock)))
	require.NoError(t, err)

	got, err := cache.Fetch(context.Background(), c, key, func(context.Context) (string, error) {
		t.Fatal("compute must not run on a store hit")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "from store", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
