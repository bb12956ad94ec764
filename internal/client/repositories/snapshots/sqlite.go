package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/client/models"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Write(ctx context.Context, s *models.Snapshot) error {
	query := `INSERT INTO snapshots (key, data, draft_id, base_version, pending, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET data = excluded.data,
				draft_id = excluded.draft_id,
				base_version = excluded.base_version,
				pending = excluded.pending,
				updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		s.Key, s.Data, s.DraftID, s.BaseVersion, s.Pending, s.UpdatedAt.UTC().Format(models.TimeLayout))
	if err != nil {
		return fmt.Errorf("failed to write snapshot[%s]: %w", s.Key, err)
	}
	return nil
}

func (r *SQLiteRepository) Read(ctx context.Context, key string) (*models.Snapshot, error) {
	query := `SELECT key, data, draft_id, base_version, pending, updated_at FROM snapshots WHERE key = ?`

	var (
		s       models.Snapshot
		updated string
	)
	err := r.db.QueryRowContext(ctx, query, key).Scan(&s.Key, &s.Data, &s.DraftID, &s.BaseVersion, &s.Pending, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot[%s]: %w", key, err)
	}

	s.UpdatedAt, err = time.Parse(models.TimeLayout, updated)
	if err != nil {
		return nil, fmt.Errorf("snapshot[%s] updated_at: %w", key, err)
	}
	return &s, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot[%s]: %w", key, err)
	}
	return nil
}
