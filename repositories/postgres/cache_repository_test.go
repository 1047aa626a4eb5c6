package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockRepository(t *testing.T) (*CacheRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewCacheRepository(WrapDB(db, zap.NewNop()), zap.NewNop())
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestCacheRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(`SELECT value\s+FROM retrieval_cache\s+WHERE cache_key = \$1 AND expires_at > \$2`).
			WithArgs("retrieval:v1:abc", fixedNow).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"query_hash":"abc"}`)))

		value, found, err := repo.Get(ctx, "retrieval:v1:abc")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"query_hash":"abc"}`, string(value))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing or expired", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(`SELECT value`).
			WithArgs("retrieval:v1:abc", fixedNow).
			WillReturnError(sql.ErrNoRows)

		value, found, err := repo.Get(ctx, "retrieval:v1:abc")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("database error", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(`SELECT value`).WillReturnError(sql.ErrConnDone)

		_, found, err := repo.Get(ctx, "retrieval:v1:abc")
		require.Error(t, err)
		assert.False(t, found)
		assert.True(t, errors.Is(err, sql.ErrConnDone))
	})
}

func TestCacheRepository_Set(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts with expiry", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(`INSERT INTO retrieval_cache \(cache_key, value, expires_at\)\s+VALUES \(\$1, \$2, \$3\)\s+ON CONFLICT \(cache_key\) DO UPDATE`).
			WithArgs("k", []byte("v"), fixedNow.Add(time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Set(ctx, "k", []byte("v"), time.Hour))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive ttl is skipped", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		require.NoError(t, repo.Set(ctx, "k", []byte("v"), 0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(`INSERT INTO retrieval_cache`).WillReturnError(sql.ErrConnDone)

		err := repo.Set(ctx, "k", []byte("v"), time.Hour)
		assert.Error(t, err)
	})
}

func TestCacheRepository_PurgeExpired(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`DELETE FROM retrieval_cache WHERE expires_at <= \$1`).
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepository_Ping(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		assert.NoError(t, repo.Ping(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreachable", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)

		err := repo.Ping(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database health check failed")
	})
}

func TestDB_InitSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS retrieval_cache`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, WrapDB(db, zap.NewNop()).InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
