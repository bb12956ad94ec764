package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/repomanager"
)

// loadOverlay fetches every section record and status row of an intake,
// keyed by section name. Missing rows are simply absent from the maps.
func loadOverlay(ctx context.Context, rm repomanager.RepositoryManager, c *catalog.Catalog, db dbx.DBTX, intakeID string) (map[string]*models.SectionRecord, map[string]*models.SectionStatus, error) {
	records := make(map[string]*models.SectionRecord, len(c.Sections))
	sectionsRepo := rm.Sections(db)
	for _, s := range c.Sections {
		rec, err := sectionsRepo.Get(ctx, s, intakeID)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		records[s.Name] = rec
	}

	list, err := rm.Statuses(db).List(ctx, intakeID)
	if err != nil {
		return nil, nil, err
	}
	statuses := make(map[string]*models.SectionStatus, len(list))
	for _, st := range list {
		statuses[st.Section] = st
	}
	return records, statuses, nil
}
