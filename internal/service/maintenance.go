package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/offlinesync/internal/cache"
	"github.com/jask/offlinesync/internal/coordinator"
	"github.com/jask/offlinesync/internal/database"
	"github.com/jask/offlinesync/internal/queue"
)

// MaintenanceService houses destructive/ops actions surfaced through the CLI.
type MaintenanceService struct {
	DB *sql.DB
}

// ResetResult counts what Reset removed.
type ResetResult struct {
	CacheEntries int64
	SyncEntries  int64
}

// Reset wipes the offline cache, the sync queue and sync metadata. It keeps
// the schema intact so the app can continue running.
func (s *MaintenanceService) Reset(ctx context.Context) (ResetResult, error) {
	var res ResetResult
	if s.DB == nil {
		return res, fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx,
			`DELETE FROM kv_store WHERE substr(key, 1, length(?)) = ?`, cache.KeyPrefix, cache.KeyPrefix)
		if err != nil {
			return fmt.Errorf("reset cache entries: %w", err)
		}
		res.CacheEntries, _ = r.RowsAffected()

		r, err = tx.ExecContext(ctx,
			`DELETE FROM kv_store WHERE key IN (?, ?, ?)`,
			queue.StorageKey, coordinator.LastSyncAtKey, coordinator.OfflineModeKey)
		if err != nil {
			return fmt.Errorf("reset sync state: %w", err)
		}
		res.SyncEntries, _ = r.RowsAffected()
		return nil
	}); err != nil {
		return res, err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return res, nil
}
