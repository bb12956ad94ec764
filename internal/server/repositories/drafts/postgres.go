// Package drafts persists intake drafts in PostgreSQL. The version column is
// only ever advanced by Update, which is a conditional write.
package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

const selectColumns = `id, owner_id, data, version, status, last_save_id, updated_by, created_at, updated_at`

// PostgresRepository implements draft storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanDraft(row *sql.Row) (*models.Draft, error) {
	var d models.Draft
	var status string
	err := row.Scan(&d.ID, &d.OwnerID, &d.Data, &d.Version, &status, &d.LastSaveID, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select draft: %w", err)
	}
	d.Status = models.Status(status)
	return &d, nil
}

// Create inserts a new draft and fills its timestamps.
func (r *PostgresRepository) Create(ctx context.Context, d *models.Draft) error {
	query := `
		INSERT INTO intakes (id, owner_id, data, version, status, last_save_id, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		d.ID, d.OwnerID, d.Data, d.Version, string(d.Status), d.LastSaveID, d.UpdatedBy,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the draft or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Draft, error) {
	query := `SELECT ` + selectColumns + ` FROM intakes WHERE id = $1`
	return scanDraft(r.db.QueryRowContext(ctx, query, id))
}

// GetForUpdate reads the draft and locks its row until the surrounding
// transaction ends. It must be called on a transactional DBTX.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Draft, error) {
	query := `SELECT ` + selectColumns + ` FROM intakes WHERE id = $1 FOR UPDATE`
	return scanDraft(r.db.QueryRowContext(ctx, query, id))
}

// LatestByOwner returns the most recently updated intake in draft status
// owned by ownerID.
func (r *PostgresRepository) LatestByOwner(ctx context.Context, ownerID string) (*models.Draft, error) {
	query := `SELECT ` + selectColumns + ` FROM intakes
		WHERE owner_id = $1 AND status = 'draft'
		ORDER BY updated_at DESC
		LIMIT 1`
	return scanDraft(r.db.QueryRowContext(ctx, query, ownerID))
}

// Update writes data, version and save metadata only if the stored version
// still equals expectedVersion. A mismatch (or a vanished row) yields
// common.ErrVersionConflict and nothing is written.
func (r *PostgresRepository) Update(ctx context.Context, d *models.Draft, expectedVersion int64) error {
	query := `
		UPDATE intakes
		SET data = $2, version = $3, last_save_id = $4, updated_by = $5, updated_at = now()
		WHERE id = $1 AND version = $6
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		d.ID, d.Data, d.Version, d.LastSaveID, d.UpdatedBy, expectedVersion,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetStatus changes the lifecycle status without touching data or version.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status models.Status, actorID string) error {
	query := `UPDATE intakes SET status = $2, updated_by = $3, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, string(status), actorID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// ListIDs pages through intake ids in ascending order, starting after afterID.
func (r *PostgresRepository) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if afterID == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT id FROM intakes ORDER BY id LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT id FROM intakes WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select intake ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
