package drafts

import (
	"context"

	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, d *models.Draft) error
	Get(ctx context.Context, id string) (*models.Draft, error)
	GetForUpdate(ctx context.Context, id string) (*models.Draft, error)
	LatestByOwner(ctx context.Context, ownerID string) (*models.Draft, error)
	Update(ctx context.Context, d *models.Draft, expectedVersion int64) error
	SetStatus(ctx context.Context, id string, status models.Status, actorID string) error
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}
