// Package backups stores append-only Safety Backups in the client SQLite
// database. Backups are never consulted automatically.
package backups

import (
	"context"

	"github.com/dmitrijs2005/intakekeeper/internal/client/models"
)

type Repository interface {
	Append(ctx context.Context, b *models.Backup) error
	// ListByForm returns the backups of formKey, newest first.
	ListByForm(ctx context.Context, formKey string) ([]*models.Backup, error)
	// Get returns common.ErrorNotFound for an unknown id.
	Get(ctx context.Context, id string) (*models.Backup, error)
}
