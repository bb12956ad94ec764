package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/drafts"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/events"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/sections"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/statuses"
)

// RepositoryManager binds repositories to a connection or a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Drafts(db dbx.DBTX) drafts.Repository
	Sections(db dbx.DBTX) sections.Repository
	Statuses(db dbx.DBTX) statuses.Repository
	Events(db dbx.DBTX) events.Repository
}
