package statuses

import (
	"context"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, intakeID, section string) (*models.SectionStatus, error)
	List(ctx context.Context, intakeID string) ([]*models.SectionStatus, error)
	Upsert(ctx context.Context, st *models.SectionStatus) error
	InitIfAbsent(ctx context.Context, intakeID, section string, status catalog.Status, actorID string) (bool, error)
}
