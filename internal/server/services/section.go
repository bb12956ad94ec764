package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/server/audit"
	"github.com/dmitrijs2005/intakekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/notify"
	"github.com/dmitrijs2005/intakekeeper/internal/server/overlay"
)

type SectionCommand struct {
	IntakeID string
	Section  string
	Patch    document.Document
	ActorID  string
	// ExpectedVersion is the record version the caller last saw; nil or 0
	// for a section that has never been written.
	ExpectedVersion *int64
}

type SectionResult struct {
	Version int64
}

// IntakeView is the merged whole-intake read.
type IntakeView struct {
	IntakeID      string
	Version       int64
	Status        models.Status
	Data          document.Document
	SectionStatus map[string]catalog.Status
}

// SectionService writes Section Records with compare-and-increment and
// serves overlay reads.
type SectionService struct {
	base
}

func NewSectionService(d Deps) *SectionService {
	return &SectionService{base: newBase(d, "section_service")}
}

func (s *SectionService) section(name string) (*catalog.Section, error) {
	sec, ok := s.catalog.Section(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown section %q", common.ErrValidation, name)
	}
	return sec, nil
}

// SaveSection writes the patch columns of one section. The first write
// inserts version 1; later writes are a single conditional update.
func (s *SectionService) SaveSection(ctx context.Context, cmd SectionCommand) (*SectionResult, error) {
	sec, err := s.section(cmd.Section)
	if err != nil {
		return nil, err
	}
	patch, err := document.Normalize(cmd.Patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := s.validator.ValidateSection(sec.Name, patch); err != nil {
		return nil, err
	}

	var (
		prev   document.Document
		result *SectionResult
	)

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := s.writableDraft(ctx, tx, cmd.IntakeID)
		if err != nil {
			return err
		}

		repo := s.repomanager.Sections(tx)
		rec := &models.SectionRecord{
			IntakeID:  cmd.IntakeID,
			Section:   sec.Name,
			Values:    patch,
			UpdatedBy: cmd.ActorID,
		}

		// An unconditional save locks the row so the version it read is
		// still current at the update.
		get := repo.Get
		if cmd.ExpectedVersion == nil {
			get = repo.GetForUpdate
		}
		existing, err := get(ctx, sec, cmd.IntakeID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != 0 {
				return &common.ConflictError{Entity: "section " + sec.Name, Expected: *cmd.ExpectedVersion, Current: 0}
			}
			if err := repo.Insert(ctx, sec, rec); err != nil {
				if errors.Is(err, common.ErrVersionConflict) {
					return &common.ConflictError{Entity: "section " + sec.Name, Current: 1}
				}
				return err
			}
		case err != nil:
			return err
		default:
			expected := existing.Version
			if cmd.ExpectedVersion != nil {
				expected = *cmd.ExpectedVersion
			}
			if err := repo.Update(ctx, sec, rec, expected); err != nil {
				if errors.Is(err, common.ErrVersionConflict) {
					return &common.ConflictError{Entity: "section " + sec.Name, Expected: expected, Current: existing.Version}
				}
				return err
			}
			prev = make(document.Document, len(patch))
			for k := range patch {
				prev[k] = existing.Values[k]
			}
		}

		if overlay.StatusOf(sec.Name, d.Data, nil) == catalog.StatusNotStarted {
			if _, err := s.repomanager.Statuses(tx).InitIfAbsent(ctx, cmd.IntakeID, sec.Name, catalog.StatusInProgress, cmd.ActorID); err != nil {
				return err
			}
		}

		result = &SectionResult{Version: rec.Version}
		return nil
	})
	if err != nil {
		s.recordConflict(ctx, err, metrics.ScopeSection)
		return nil, err
	}

	s.audit.Emit(ctx, audit.Record{
		IntakeID: cmd.IntakeID,
		ActorID:  cmd.ActorID,
		Prefix:   sec.Name + ".",
		Changes:  document.Diff(prev, patch),
		At:       s.now().UTC(),
	})
	s.publish(ctx, notify.ChangeEvent{IntakeID: cmd.IntakeID, Kind: notify.KindSectionSaved, Section: sec.Name, Version: result.Version})
	s.metrics.SaveCommitted(ctx, metrics.ScopeSection)
	s.log.Info(ctx, "section saved", "intake_id", cmd.IntakeID, "section", sec.Name, "version", result.Version)
	return result, nil
}

// SetSectionStatus records workflow status. It is unconditional and never
// touches any version.
func (s *SectionService) SetSectionStatus(ctx context.Context, intakeID, section string, status catalog.Status, actorID string) error {
	sec, err := s.section(section)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown section status %q", common.ErrValidation, status)
	}

	var old catalog.Status
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := s.writableDraft(ctx, tx, intakeID)
		if err != nil {
			return err
		}

		repo := s.repomanager.Statuses(tx)
		current, err := repo.Get(ctx, intakeID, sec.Name)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		old = overlay.StatusOf(sec.Name, d.Data, current)

		return repo.Upsert(ctx, &models.SectionStatus{
			IntakeID:      intakeID,
			Section:       sec.Name,
			Status:        status,
			LastUpdatedBy: actorID,
		})
	})
	if err != nil {
		return err
	}

	if old != status {
		s.audit.Emit(ctx, audit.Record{
			IntakeID: intakeID,
			ActorID:  actorID,
			Prefix:   common.SectionStatusKey + ".",
			Changes:  []document.Change{{Field: sec.Name, Old: string(old), New: string(status)}},
			At:       s.now().UTC(),
		})
	}
	s.publish(ctx, notify.ChangeEvent{IntakeID: intakeID, Kind: notify.KindStatusChanged, Section: sec.Name})
	return nil
}

// Read returns the Merged View of one section.
func (s *SectionService) Read(ctx context.Context, intakeID, section string) (*overlay.View, error) {
	sec, err := s.section(section)
	if err != nil {
		return nil, err
	}

	conn := s.tx.Conn()
	d, err := s.repomanager.Drafts(conn).Get(ctx, intakeID)
	if err != nil {
		return nil, err
	}

	rec, err := s.repomanager.Sections(conn).Get(ctx, sec, intakeID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	st, err := s.repomanager.Statuses(conn).Get(ctx, intakeID, sec.Name)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	v := overlay.Merge(sec, rec, d.Data, st)
	v.IntakeID = intakeID
	return v, nil
}

// ReadAll returns the whole intake with every section overlaid.
func (s *SectionService) ReadAll(ctx context.Context, intakeID string) (*IntakeView, error) {
	conn := s.tx.Conn()
	d, err := s.repomanager.Drafts(conn).Get(ctx, intakeID)
	if err != nil {
		return nil, err
	}

	records, statuses, err := loadOverlay(ctx, s.repomanager, s.catalog, conn, intakeID)
	if err != nil {
		return nil, err
	}

	merged := overlay.MergeAll(s.catalog, d.Data, records, statuses)
	view := &IntakeView{
		IntakeID:      d.ID,
		Version:       d.Version,
		Status:        d.Status,
		Data:          merged,
		SectionStatus: make(map[string]catalog.Status, len(s.catalog.Sections)),
	}
	for _, sec := range s.catalog.Sections {
		view.SectionStatus[sec.Name] = overlay.StatusOf(sec.Name, d.Data, statuses[sec.Name])
	}
	return view, nil
}

// Watch emits the current Merged View and a fresh one after every change
// notification that can affect the section, until ctx is done or emit
// fails.
func (s *SectionService) Watch(ctx context.Context, intakeID, section string, emit func(*overlay.View) error) error {
	if _, err := s.section(section); err != nil {
		return err
	}

	events, err := s.subscriber.Subscribe(ctx, intakeID)
	if err != nil {
		return err
	}

	v, err := s.Read(ctx, intakeID, section)
	if err != nil {
		return err
	}
	if err := emit(v); err != nil {
		return err
	}

	for ev := range events {
		if ev.Section != "" && ev.Section != section {
			continue
		}
		v, err := s.Read(ctx, intakeID, section)
		if err != nil {
			return err
		}
		if err := emit(v); err != nil {
			return err
		}
	}
	return ctx.Err()
}
