package services

import (
	"context"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/overlay"
)

// BackfillActor is recorded as updated_by on rows written by the backfill.
const BackfillActor = "backfill"

type BackfillReport struct {
	Intakes  int
	Sections int
	Skipped  int
	Statuses int
}

// Backfill promotes legacy document keys into Section Records. Values
// already present in a record are never overwritten, so the run can be
// repeated.
type Backfill struct {
	base
}

func NewBackfill(d Deps) *Backfill {
	return &Backfill{base: newBase(d, "backfill")}
}

// Run walks all intakes in id order, batch at a time.
func (b *Backfill) Run(ctx context.Context, batch int) (*BackfillReport, error) {
	if batch <= 0 {
		batch = 100
	}
	report := &BackfillReport{}

	after := ""
	for {
		ids, err := b.repomanager.Drafts(b.tx.Conn()).ListIDs(ctx, after, batch)
		if err != nil {
			return report, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := b.one(ctx, id, report); err != nil {
				return report, err
			}
			report.Intakes++
		}
		after = ids[len(ids)-1]
	}

	b.log.Info(ctx, "backfill finished",
		"intakes", report.Intakes, "sections", report.Sections, "skipped", report.Skipped, "statuses", report.Statuses)
	return report, nil
}

func (b *Backfill) one(ctx context.Context, id string, report *BackfillReport) error {
	return b.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := b.repomanager.Drafts(tx).Get(ctx, id)
		if err != nil {
			return err
		}

		for _, sec := range b.catalog.Sections {
			values := legacyValues(sec, d.Data)
			if len(values) == 0 {
				continue
			}
			if err := b.validator.ValidateSection(sec.Name, values); err != nil {
				b.log.Warn(ctx, "legacy values rejected", "intake_id", id, "section", sec.Name, "error", err)
				report.Skipped++
				continue
			}

			rec := &models.SectionRecord{IntakeID: id, Section: sec.Name, Values: values, UpdatedBy: BackfillActor}
			if err := b.repomanager.Sections(tx).Upsert(ctx, sec, rec); err != nil {
				return err
			}
			report.Sections++

			initial := overlay.StatusOf(sec.Name, d.Data, nil)
			if initial == catalog.StatusNotStarted {
				initial = catalog.StatusInProgress
			}
			created, err := b.repomanager.Statuses(tx).InitIfAbsent(ctx, id, sec.Name, initial, BackfillActor)
			if err != nil {
				return err
			}
			if created {
				report.Statuses++
			}
		}
		return nil
	})
}

// legacyValues picks the non-null document keys that belong to sec.
func legacyValues(sec *catalog.Section, doc document.Document) document.Document {
	out := document.Document{}
	for _, f := range sec.Fields {
		if doc.Has(f.Name) {
			out[f.Name] = document.CloneValue(doc[f.Name])
		}
	}
	return out
}
