// Package services contains the server-side intake logic: the Versioned
// Save Protocol for drafts and section records, overlay reads and the
// relational backfill.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/dmitrijs2005/intakekeeper/internal/server/archive"
	"github.com/dmitrijs2005/intakekeeper/internal/server/audit"
	"github.com/dmitrijs2005/intakekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/notify"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Deps are the collaborators shared by the services. Audit, Notifier,
// Exporter, Metrics and Logger are optional.
type Deps struct {
	Tx          dbx.Transactor
	RepoManager repomanager.RepositoryManager
	Catalog     *catalog.Catalog
	Validator   *catalog.Validator
	Audit       audit.Sink
	Notifier    notify.Publisher
	Subscriber  notify.Subscriber
	Exporter    archive.Exporter
	Metrics     *metrics.Recorder
	Logger      logging.Logger
}

type base struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	catalog     *catalog.Catalog
	validator   *catalog.Validator
	audit       audit.Sink
	notifier    notify.Publisher
	subscriber  notify.Subscriber
	exporter    archive.Exporter
	metrics     *metrics.Recorder
	log         logging.Logger
	now         func() time.Time
	newID       func() string
}

func newBase(d Deps, module string) base {
	b := base{
		tx:          d.Tx,
		repomanager: d.RepoManager,
		catalog:     d.Catalog,
		validator:   d.Validator,
		audit:       d.Audit,
		notifier:    d.Notifier,
		subscriber:  d.Subscriber,
		exporter:    d.Exporter,
		metrics:     d.Metrics,
		log:         d.Logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if b.catalog == nil {
		b.catalog = catalog.Default()
	}
	if b.validator == nil {
		v, err := catalog.NewValidator(b.catalog)
		if err != nil {
			panic(err)
		}
		b.validator = v
	}
	if b.audit == nil {
		b.audit = audit.Nop{}
	}
	if b.notifier == nil {
		b.notifier = notify.Nop{}
	}
	if b.subscriber == nil {
		b.subscriber = notify.Nop{}
	}
	if b.log == nil {
		b.log = logging.Nop{}
	}
	b.log = b.log.With("module", module)
	return b
}

// publish is best effort; subscribers only observe.
func (b *base) publish(ctx context.Context, ev notify.ChangeEvent) {
	ev.At = b.now().UTC()
	if err := b.notifier.Publish(ctx, ev); err != nil {
		b.log.Warn(ctx, "change notification failed", "intake_id", ev.IntakeID, "kind", ev.Kind, "error", err)
	}
}

// writableDraft loads the draft and rejects archived ones.
func (b *base) writableDraft(ctx context.Context, tx dbx.DBTX, id string) (*models.Draft, error) {
	d, err := b.repomanager.Drafts(tx).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == models.StatusArchived {
		return nil, common.ErrArchived
	}
	return d, nil
}

func (b *base) recordConflict(ctx context.Context, err error, scope string) {
	if errors.Is(err, common.ErrVersionConflict) {
		b.metrics.Conflict(ctx, scope)
	}
}
