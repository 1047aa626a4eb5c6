package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/context-retrieval/services/cache"
	"go.uber.org/zap"
)

var _ cache.Store = (*CacheRepository)(nil)

// CacheRepository stores serialized retrieval results in the
// retrieval_cache table. Expired rows are never returned and are removed by
// PurgeExpired.
type CacheRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(db *DB, logger *zap.Logger) *CacheRepository {
	return &CacheRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the value stored under key if it has not expired
func (r *CacheRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `
		SELECT value
		FROM retrieval_cache
		WHERE cache_key = $1 AND expires_at > $2
	`

	var value []byte
	err := r.db.QueryRowContext(ctx, query, key, r.now().UTC()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return value, true, nil
}

// Set upserts value under key. Entries with a non-positive ttl are not stored.
func (r *CacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	query := `
		INSERT INTO retrieval_cache (cache_key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`

	expiresAt := r.now().UTC().Add(ttl)
	if _, err := r.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	r.logger.Debug("cache entry stored", zap.String("key", key), zap.Time("expires_at", expiresAt))
	return nil
}

// PurgeExpired deletes expired rows and returns how many were removed
func (r *CacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM retrieval_cache WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if n > 0 {
		r.logger.Debug("expired cache entries purged", zap.Int64("count", n))
	}
	return n, nil
}

// StartPurgeWorker runs PurgeExpired every interval until stopCh is closed
func (r *CacheRepository) StartPurgeWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := r.PurgeExpired(context.Background()); err != nil {
					r.logger.Warn("cache purge failed", zap.Error(err))
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// Ping checks that the database is reachable
func (r *CacheRepository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Close closes the underlying pool
func (r *CacheRepository) Close() error {
	return r.db.Close()
}
