package sections

import (
	"context"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

// Repository stores Section Records. The section descriptor selects the
// table and the typed columns.
type Repository interface {
	Get(ctx context.Context, section *catalog.Section, intakeID string) (*models.SectionRecord, error)
	// GetForUpdate is Get with the row locked until the transaction ends.
	GetForUpdate(ctx context.Context, section *catalog.Section, intakeID string) (*models.SectionRecord, error)
	Insert(ctx context.Context, section *catalog.Section, rec *models.SectionRecord) error
	Update(ctx context.Context, section *catalog.Section, rec *models.SectionRecord, expectedVersion int64) error
	Upsert(ctx context.Context, section *catalog.Section, rec *models.SectionRecord) error
}
