package events

import (
	"context"

	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

// Repository is the append-only audit log. It is never read back by the
// synchronization logic.
type Repository interface {
	Append(ctx context.Context, e *models.AuditEvent) error
}
