package grpc

import (
	"context"
	"errors"
	"strconv"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/intakerpc"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/overlay"
	"github.com/dmitrijs2005/intakekeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// fail logs unexpected errors, attaches the current version to conflicts and
// converts err to a status.
func (s *GRPCServer) fail(ctx context.Context, method string, err error) error {
	var ce *common.ConflictError
	if errors.As(err, &ce) {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(intakerpc.CurrentVersionTrailer, strconv.FormatInt(ce.Current, 10)))
	}
	if common.Classify(err) == common.ClassFatal {
		s.logger.Error(ctx, "request failed", "method", method, "error", err)
	}
	return toStatus(err)
}

func (s *GRPCServer) SaveDraft(ctx context.Context, req *intakerpc.SaveDraftRequest) (*intakerpc.SaveDraftResponse, error) {
	res, err := s.drafts.Save(ctx, services.SaveCommand{
		DraftID:         req.DraftID,
		Patch:           req.Patch,
		ActorID:         actorFromContext(ctx),
		ExpectedVersion: req.ExpectedVersion,
		SaveID:          req.SaveID,
	})
	if err != nil {
		return nil, s.fail(ctx, "SaveDraft", err)
	}
	return &intakerpc.SaveDraftResponse{DraftID: res.DraftID, Version: res.Version, Replayed: res.Replayed}, nil
}

func toDraft(d *models.Draft) *intakerpc.Draft {
	return &intakerpc.Draft{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Data:      d.Data,
		Version:   d.Version,
		Status:    string(d.Status),
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *GRPCServer) GetDraft(ctx context.Context, req *intakerpc.GetDraftRequest) (*intakerpc.GetDraftResponse, error) {
	d, err := s.drafts.Get(ctx, req.DraftID)
	if err != nil {
		return nil, s.fail(ctx, "GetDraft", err)
	}
	return &intakerpc.GetDraftResponse{Draft: toDraft(d)}, nil
}

func (s *GRPCServer) GetLatestDraft(ctx context.Context, req *intakerpc.GetLatestDraftRequest) (*intakerpc.GetDraftResponse, error) {
	d, err := s.drafts.GetLatest(ctx, actorFromContext(ctx))
	if err != nil {
		return nil, s.fail(ctx, "GetLatestDraft", err)
	}
	return &intakerpc.GetDraftResponse{Draft: toDraft(d)}, nil
}

func (s *GRPCServer) SaveSection(ctx context.Context, req *intakerpc.SaveSectionRequest) (*intakerpc.SaveSectionResponse, error) {
	res, err := s.sections.SaveSection(ctx, services.SectionCommand{
		IntakeID:        req.IntakeID,
		Section:         req.Section,
		Patch:           req.Patch,
		ActorID:         actorFromContext(ctx),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return nil, s.fail(ctx, "SaveSection", err)
	}
	return &intakerpc.SaveSectionResponse{Version: res.Version}, nil
}

func (s *GRPCServer) SetSectionStatus(ctx context.Context, req *intakerpc.SetSectionStatusRequest) (*intakerpc.SetSectionStatusResponse, error) {
	err := s.sections.SetSectionStatus(ctx, req.IntakeID, req.Section, catalog.Status(req.Status), actorFromContext(ctx))
	if err != nil {
		return nil, s.fail(ctx, "SetSectionStatus", err)
	}
	return &intakerpc.SetSectionStatusResponse{}, nil
}

func toSectionView(v *overlay.View) *intakerpc.SectionView {
	sources := make(map[string]string, len(v.Sources))
	for k, src := range v.Sources {
		sources[k] = string(src)
	}
	return &intakerpc.SectionView{
		IntakeID: v.IntakeID,
		Section:  v.Section,
		Fields:   v.Fields,
		Sources:  sources,
		Status:   string(v.Status),
		Version:  v.Version,
	}
}

func (s *GRPCServer) ReadSection(ctx context.Context, req *intakerpc.ReadSectionRequest) (*intakerpc.SectionView, error) {
	v, err := s.sections.Read(ctx, req.IntakeID, req.Section)
	if err != nil {
		return nil, s.fail(ctx, "ReadSection", err)
	}
	return toSectionView(v), nil
}

func (s *GRPCServer) ReadIntake(ctx context.Context, req *intakerpc.ReadIntakeRequest) (*intakerpc.ReadIntakeResponse, error) {
	v, err := s.sections.ReadAll(ctx, req.IntakeID)
	if err != nil {
		return nil, s.fail(ctx, "ReadIntake", err)
	}
	st := make(map[string]string, len(v.SectionStatus))
	for k, x := range v.SectionStatus {
		st[k] = string(x)
	}
	return &intakerpc.ReadIntakeResponse{
		IntakeID:      v.IntakeID,
		Version:       v.Version,
		Status:        string(v.Status),
		Fields:        v.Data,
		SectionStatus: st,
	}, nil
}

func (s *GRPCServer) Transition(ctx context.Context, req *intakerpc.TransitionRequest) (*intakerpc.TransitionResponse, error) {
	res, err := s.drafts.Transition(ctx, req.IntakeID, models.Status(req.Target), actorFromContext(ctx))
	if err != nil {
		return nil, s.fail(ctx, "Transition", err)
	}
	return &intakerpc.TransitionResponse{Status: string(res.Status), ArchiveKey: res.ArchiveKey}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *intakerpc.PingRequest) (*intakerpc.PingResponse, error) {

	return &intakerpc.PingResponse{Status: "OK"}, nil

}

// WatchSection streams the section view until the client goes away.
func (s *GRPCServer) WatchSection(req *intakerpc.WatchSectionRequest, stream intakerpc.WatchSectionServer) error {
	ctx := stream.Context()
	err := s.sections.Watch(ctx, req.IntakeID, req.Section, func(v *overlay.View) error {
		return stream.Send(toSectionView(v))
	})
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return s.fail(ctx, "WatchSection", err)
}
