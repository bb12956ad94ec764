package backups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/client/models"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, b *models.Backup) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO backups (id, form_key, data, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.FormKey, b.Data, b.CreatedAt.UTC().Format(models.TimeLayout))
	if err != nil {
		return fmt.Errorf("failed to append backup: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBackup(row scanner) (*models.Backup, error) {
	var (
		b       models.Backup
		created string
	)
	if err := row.Scan(&b.ID, &b.FormKey, &b.Data, &created); err != nil {
		return nil, err
	}
	t, err := time.Parse(models.TimeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("backup %s created_at: %w", b.ID, err)
	}
	b.CreatedAt = t
	return &b, nil
}

func (r *SQLiteRepository) ListByForm(ctx context.Context, formKey string) ([]*models.Backup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, form_key, data, created_at FROM backups WHERE form_key = ? ORDER BY created_at DESC, id DESC`, formKey)
	if err != nil {
		return nil, fmt.Errorf("failed to select backups: %w", err)
	}
	defer rows.Close()

	var result []*models.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Backup, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, form_key, data, created_at FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	return b, nil
}
