// Package statuses stores per-section workflow status rows. These rows are
// independent of field data and never touch any version column.
package statuses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, intakeID, section string) (*models.SectionStatus, error) {
	query := `SELECT status, last_updated_by, updated_at FROM intake_sections WHERE intake_id = $1 AND section_name = $2`

	st := &models.SectionStatus{IntakeID: intakeID, Section: section}
	var status string
	err := r.db.QueryRowContext(ctx, query, intakeID, section).Scan(&status, &st.LastUpdatedBy, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select section status: %w", err)
	}
	st.Status = catalog.Status(status)
	return st, nil
}

func (r *PostgresRepository) List(ctx context.Context, intakeID string) ([]*models.SectionStatus, error) {
	query := `SELECT section_name, status, last_updated_by, updated_at FROM intake_sections WHERE intake_id = $1 ORDER BY section_name`

	rows, err := r.db.QueryContext(ctx, query, intakeID)
	if err != nil {
		return nil, fmt.Errorf("failed to select section statuses: %w", err)
	}
	defer rows.Close()

	var result []*models.SectionStatus
	for rows.Next() {
		st := &models.SectionStatus{IntakeID: intakeID}
		var status string
		if err := rows.Scan(&st.Section, &status, &st.LastUpdatedBy, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Status = catalog.Status(status)
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Upsert writes the status unconditionally.
func (r *PostgresRepository) Upsert(ctx context.Context, st *models.SectionStatus) error {
	query := `
		INSERT INTO intake_sections (intake_id, section_name, status, last_updated_by, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (intake_id, section_name)
		DO UPDATE SET status = EXCLUDED.status, last_updated_by = EXCLUDED.last_updated_by, updated_at = now()`

	_, err := r.db.ExecContext(ctx, query, st.IntakeID, st.Section, string(st.Status), st.LastUpdatedBy)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// InitIfAbsent creates the status row only when none exists and reports
// whether it did.
func (r *PostgresRepository) InitIfAbsent(ctx context.Context, intakeID, section string, status catalog.Status, actorID string) (bool, error) {
	query := `
		INSERT INTO intake_sections (intake_id, section_name, status, last_updated_by, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (intake_id, section_name) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, intakeID, section, string(status), actorID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}
