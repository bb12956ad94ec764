// Package events writes field-level audit events to intake_events.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func jsonOrNull(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditEvent) error {
	oldValue, err := jsonOrNull(e.OldValue)
	if err != nil {
		return fmt.Errorf("encode old value: %w", err)
	}
	newValue, err := jsonOrNull(e.NewValue)
	if err != nil {
		return fmt.Errorf("encode new value: %w", err)
	}

	query := `
		INSERT INTO intake_events (id, intake_id, field_path, old_value, new_value, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query, e.ID, e.IntakeID, e.FieldPath, oldValue, newValue, e.ActorID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
