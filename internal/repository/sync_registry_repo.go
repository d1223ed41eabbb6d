package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

type SyncRegistryRepository struct {
	db *pgxpool.Pool
}

func NewSyncRegistryRepository(db *pgxpool.Pool) *SyncRegistryRepository {
	return &SyncRegistryRepository{db: db}
}

// Find returns the registry entry for (site, key), or nil when absent.
func (r *SyncRegistryRepository) Find(ctx context.Context, siteID, emailKey string) (*model.SyncRegistryEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("find", "sync_registry", time.Since(start)) }()

	query := `
        SELECT id, site_id, email_key, status, detail, created_at, updated_at
        FROM sync_registry
        WHERE site_id = $1 AND email_key = $2
    `
	var e model.SyncRegistryEntry
	var detail []byte
	err := r.db.QueryRow(ctx, query, siteID, emailKey).Scan(
		&e.ID, &e.SiteID, &e.EmailKey, &e.Status, &detail, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to decode registry detail: %w", err)
		}
	}
	return &e, nil
}

// Upsert writes the outcome for (site, key), replacing any earlier run's
// record for the same email.
func (r *SyncRegistryRepository) Upsert(ctx context.Context, e *model.SyncRegistryEntry) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("upsert", "sync_registry", time.Since(start)) }()

	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("failed to encode registry detail: %w", err)
	}

	query := `
        INSERT INTO sync_registry (site_id, email_key, status, detail, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        ON CONFLICT (site_id, email_key)
        DO UPDATE SET status = EXCLUDED.status, detail = EXCLUDED.detail, updated_at = NOW()
    `
	_, err = r.db.Exec(ctx, query, e.SiteID, e.EmailKey, e.Status, detail)
	return err
}
