package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
)

// EnvironmentCacheRepository stores combined soil/weather payloads by s2 cell
type EnvironmentCacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewEnvironmentCacheRepository creates a new environment cache repository
func NewEnvironmentCacheRepository(db *sql.DB) *EnvironmentCacheRepository {
	return &EnvironmentCacheRepository{db: db, now: time.Now}
}

// Get returns the cached payload for cell, or nil when absent or expired
func (r *EnvironmentCacheRepository) Get(ctx context.Context, cell string) (*models.CombinedEnvironmentPayload, error) {
	query := `
		SELECT payload FROM environment_cache
		WHERE cell = ? AND expires_at > ?
	`

	var raw string
	err := r.db.QueryRowContext(ctx, query, cell, r.now().UnixMilli()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read environment cache: %w", err)
	}

	var payload models.CombinedEnvironmentPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode cached payload for %s: %w", cell, err)
	}
	return &payload, nil
}

// Put stores payload for cell until ttl elapses
func (r *EnvironmentCacheRepository) Put(ctx context.Context, cell string, payload models.CombinedEnvironmentPayload, ttl time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	query := `
		INSERT INTO environment_cache (cell, payload, expires_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(cell) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, cell, string(raw), r.now().Add(ttl).UnixMilli()); err != nil {
		return fmt.Errorf("failed to write environment cache: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired entries and returns how many were removed
func (r *EnvironmentCacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM environment_cache WHERE expires_at <= ?", r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge environment cache: %w", err)
	}
	return result.RowsAffected()
}
