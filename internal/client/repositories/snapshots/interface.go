// Package snapshots stores the Local Snapshot of each editing session in the
// client SQLite database. One row per key, overwritten in place.
package snapshots

import (
	"context"

	"github.com/dmitrijs2005/intakekeeper/internal/client/models"
)

type Repository interface {
	// Write overwrites the snapshot stored under s.Key.
	Write(ctx context.Context, s *models.Snapshot) error
	// Read returns nil, nil when no snapshot exists for key.
	Read(ctx context.Context, key string) (*models.Snapshot, error)
	Delete(ctx context.Context, key string) error
}
