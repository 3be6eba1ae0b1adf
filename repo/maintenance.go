package repo

import (
	"context"
	"fmt"

	"github.com/htol/locallib/config"
	"github.com/htol/locallib/logger"
)

// CheckpointWAL writes pending WAL pages into the sqlite database file and truncates
// the WAL. It is a no-op for other drivers.
func (r *Repo) CheckpointWAL(ctx context.Context) error {
	if r.driver != config.DriverSQLite {
		return nil
	}
	var busy, walPages, moved int
	row := r.db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err := row.Scan(&busy, &walPages, &moved); err != nil {
		return fmt.Errorf("wal_checkpoint: %w", err)
	}
	logger.Debug("WAL checkpoint completed", "busy", busy, "wal_pages", walPages, "checkpointed", moved)
	return nil
}
