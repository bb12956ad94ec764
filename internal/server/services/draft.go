package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/server/audit"
	"github.com/dmitrijs2005/intakekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/notify"
	"github.com/dmitrijs2005/intakekeeper/internal/server/overlay"
	"github.com/google/uuid"
)

// saveIDNamespace scopes the ids derived for drafts created by a save id.
var saveIDNamespace = uuid.MustParse("6f1c1a52-6a43-4b8e-9d0f-5c2e8a0b7d11")

type SaveCommand struct {
	DraftID string
	Patch   document.Document
	ActorID string
	// ExpectedVersion enables compare-and-increment; nil saves unconditionally.
	ExpectedVersion *int64
	// SaveID identifies one logical save across retries.
	SaveID string
}

type SaveResult struct {
	DraftID  string
	Version  int64
	Replayed bool
}

type TransitionResult struct {
	Status     models.Status
	ArchiveKey string
}

// DraftService implements the Versioned Save Protocol for intake drafts.
type DraftService struct {
	base
}

func NewDraftService(d Deps) *DraftService {
	return &DraftService{base: newBase(d, "draft_service")}
}

// Save applies cmd.Patch to the draft with a shallow merge. With an expected
// version the write happens only when the stored version matches; otherwise
// a *common.ConflictError carrying the current version is returned and
// nothing is written.
func (s *DraftService) Save(ctx context.Context, cmd SaveCommand) (*SaveResult, error) {
	patch, err := document.Normalize(cmd.Patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := s.validator.ValidateDraft(patch); err != nil {
		return nil, err
	}

	if cmd.DraftID == "" {
		return s.create(ctx, cmd, patch)
	}

	var (
		prev, next document.Document
		result     *SaveResult
	)

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Drafts(tx)

		d, err := repo.GetForUpdate(ctx, cmd.DraftID)
		if err != nil {
			return err
		}
		if d.Status == models.StatusArchived {
			return common.ErrArchived
		}

		if cmd.ExpectedVersion != nil && d.Version != *cmd.ExpectedVersion {
			if cmd.SaveID != "" && d.LastSaveID == cmd.SaveID && d.Version == *cmd.ExpectedVersion+1 {
				result = &SaveResult{DraftID: d.ID, Version: d.Version, Replayed: true}
				return nil
			}
			return &common.ConflictError{Entity: "draft " + d.ID, Expected: *cmd.ExpectedVersion, Current: d.Version}
		}
		if cmd.ExpectedVersion == nil && cmd.SaveID != "" && d.LastSaveID == cmd.SaveID {
			result = &SaveResult{DraftID: d.ID, Version: d.Version, Replayed: true}
			return nil
		}

		current := d.Version
		prev = d.Data
		next = document.Merge(d.Data, patch)

		d.Data = next
		d.Version = current + 1
		d.LastSaveID = cmd.SaveID
		d.UpdatedBy = cmd.ActorID
		if err := repo.Update(ctx, d, current); err != nil {
			return err
		}

		result = &SaveResult{DraftID: d.ID, Version: d.Version}
		return nil
	})
	if err != nil {
		s.recordConflict(ctx, err, metrics.ScopeDraft)
		if errors.Is(err, common.ErrVersionConflict) {
			s.log.Info(ctx, "save rejected", "intake_id", cmd.DraftID, "error", err)
		}
		return nil, err
	}

	if result.Replayed {
		s.log.Info(ctx, "save replayed", "intake_id", result.DraftID, "version", result.Version, "save_id", cmd.SaveID)
		return result, nil
	}

	s.committed(ctx, result, cmd.ActorID, prev, next)
	return result, nil
}

// create inserts a new draft at version 1. With a save id the draft id is
// derived from it, so a retried create finds the first attempt's row.
func (s *DraftService) create(ctx context.Context, cmd SaveCommand, patch document.Document) (*SaveResult, error) {
	repo := s.repomanager.Drafts(s.tx.Conn())

	id := s.newID()
	if cmd.SaveID != "" {
		id = uuid.NewSHA1(saveIDNamespace, []byte(cmd.ActorID+"/"+cmd.SaveID)).String()

		existing, err := repo.Get(ctx, id)
		switch {
		case err == nil && existing.OwnerID == cmd.ActorID && existing.LastSaveID == cmd.SaveID:
			return &SaveResult{DraftID: existing.ID, Version: existing.Version, Replayed: true}, nil
		case err == nil:
			return nil, fmt.Errorf("%w: save id already used", common.ErrValidation)
		case !errors.Is(err, common.ErrorNotFound):
			return nil, err
		}
	}

	d := &models.Draft{
		ID:         id,
		OwnerID:    cmd.ActorID,
		Data:       patch,
		Version:    1,
		Status:     models.StatusDraft,
		LastSaveID: cmd.SaveID,
		UpdatedBy:  cmd.ActorID,
	}
	if err := repo.Create(ctx, d); err != nil {
		return nil, err
	}

	result := &SaveResult{DraftID: d.ID, Version: d.Version}
	s.committed(ctx, result, cmd.ActorID, nil, patch)
	return result, nil
}

func (s *DraftService) committed(ctx context.Context, r *SaveResult, actorID string, prev, next document.Document) {
	s.audit.Emit(ctx, audit.Record{
		IntakeID: r.DraftID,
		ActorID:  actorID,
		Changes:  document.Diff(prev, next),
		At:       s.now().UTC(),
	})
	s.publish(ctx, notify.ChangeEvent{IntakeID: r.DraftID, Kind: notify.KindDraftSaved, Version: r.Version})
	s.metrics.SaveCommitted(ctx, metrics.ScopeDraft)
	s.log.Info(ctx, "draft saved", "intake_id", r.DraftID, "version", r.Version)
}

func (s *DraftService) Get(ctx context.Context, id string) (*models.Draft, error) {
	return s.repomanager.Drafts(s.tx.Conn()).Get(ctx, id)
}

// GetLatest returns the actor's most recently updated draft.
func (s *DraftService) GetLatest(ctx context.Context, actorID string) (*models.Draft, error) {
	return s.repomanager.Drafts(s.tx.Conn()).LatestByOwner(ctx, actorID)
}

// Transition moves the intake along its lifecycle. Archiving first exports
// the merged intake; a failed export leaves the status unchanged.
func (s *DraftService) Transition(ctx context.Context, id string, target models.Status, actorID string) (*TransitionResult, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrValidation, target)
	}

	conn := s.tx.Conn()
	d, err := s.repomanager.Drafts(conn).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Status.CanTransition(target) {
		return nil, fmt.Errorf("%s -> %s: %w", d.Status, target, common.ErrInvalidTransition)
	}

	result := &TransitionResult{Status: target}
	if target == models.StatusArchived && s.exporter != nil {
		records, statuses, err := loadOverlay(ctx, s.repomanager, s.catalog, conn, id)
		if err != nil {
			return nil, err
		}
		merged := overlay.MergeAll(s.catalog, d.Data, records, statuses)
		key, err := s.exporter.Export(ctx, id, d.Version, merged)
		if err != nil {
			return nil, fmt.Errorf("archive export: %w", err)
		}
		result.ArchiveKey = key
	}

	if err := s.repomanager.Drafts(conn).SetStatus(ctx, id, target, actorID); err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.Record{
		IntakeID: id,
		ActorID:  actorID,
		Changes:  []document.Change{{Field: "status", Old: string(d.Status), New: string(target)}},
		At:       s.now().UTC(),
	})
	s.publish(ctx, notify.ChangeEvent{IntakeID: id, Kind: notify.KindTransitioned, Version: d.Version})
	s.log.Info(ctx, "intake transitioned", "intake_id", id, "from", d.Status, "to", target)
	return result, nil
}
