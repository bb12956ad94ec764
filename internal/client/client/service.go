package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/intakerpc"
)

// Draft is the server copy of an intake draft.
type Draft struct {
	ID        string
	Data      document.Document
	Version   int64
	Status    string
	UpdatedAt time.Time
}

type SaveRequest struct {
	DraftID         string
	Value           document.Document
	ExpectedVersion *int64
	SaveID          string
}

type SaveResult struct {
	DraftID string
	Version int64
	// Replayed reports that the server had already applied this save id and
	// returned the earlier outcome without merging the request value.
	Replayed bool
}

// Client is the transport-agnostic contract the CLI and the draft session
// use to talk to the intake server. Errors are common sentinels.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Save(ctx context.Context, req SaveRequest) (*SaveResult, error)
	Fetch(ctx context.Context, draftID string) (*Draft, error)
	// FetchLatest returns nil, nil when the actor has no open draft.
	FetchLatest(ctx context.Context) (*Draft, error)
	SaveSection(ctx context.Context, intakeID, section string, patch document.Document, expected *int64) (int64, error)
	SetSectionStatus(ctx context.Context, intakeID, section, status string) error
	ReadSection(ctx context.Context, intakeID, section string) (*intakerpc.SectionView, error)
	ReadIntake(ctx context.Context, intakeID string) (*intakerpc.ReadIntakeResponse, error)
	Transition(ctx context.Context, intakeID, target string) (*intakerpc.TransitionResponse, error)
	WatchSection(ctx context.Context, intakeID, section string, fn func(*intakerpc.SectionView)) error
}
