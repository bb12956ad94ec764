package intakerpc

import (
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/document"
)

type Draft struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Data      document.Document `json:"data"`
	Version   int64             `json:"version"`
	Status    string            `json:"status"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type SaveDraftRequest struct {
	DraftID         string            `json:"draft_id,omitempty"`
	Patch           document.Document `json:"patch"`
	ExpectedVersion *int64            `json:"expected_version,omitempty"`
	SaveID          string            `json:"save_id,omitempty"`
}

type SaveDraftResponse struct {
	DraftID string `json:"draft_id"`
	Version int64  `json:"version"`
	// Replayed is set when the save id was already applied and the patch of
	// this request was not merged.
	Replayed bool `json:"replayed,omitempty"`
}

type GetDraftRequest struct {
	DraftID string `json:"draft_id"`
}

type GetLatestDraftRequest struct{}

type GetDraftResponse struct {
	Draft *Draft `json:"draft"`
}

type SaveSectionRequest struct {
	IntakeID        string            `json:"intake_id"`
	Section         string            `json:"section"`
	Patch           document.Document `json:"patch"`
	ExpectedVersion *int64            `json:"expected_version,omitempty"`
}

type SaveSectionResponse struct {
	Version int64 `json:"version"`
}

type SetSectionStatusRequest struct {
	IntakeID string `json:"intake_id"`
	Section  string `json:"section"`
	Status   string `json:"status"`
}

type SetSectionStatusResponse struct{}

type ReadSectionRequest struct {
	IntakeID string `json:"intake_id"`
	Section  string `json:"section"`
}

// SectionView is the merged projection of one section.
type SectionView struct {
	IntakeID string            `json:"intake_id"`
	Section  string            `json:"section"`
	Fields   document.Document `json:"fields"`
	Sources  map[string]string `json:"sources"`
	Status   string            `json:"status"`
	Version  int64             `json:"version"`
}

type ReadIntakeRequest struct {
	IntakeID string `json:"intake_id"`
}

type ReadIntakeResponse struct {
	IntakeID      string            `json:"intake_id"`
	Version       int64             `json:"version"`
	Status        string            `json:"status"`
	Fields        document.Document `json:"fields"`
	SectionStatus map[string]string `json:"section_status"`
}

type TransitionRequest struct {
	IntakeID string `json:"intake_id"`
	Target   string `json:"target"`
}

type TransitionResponse struct {
	Status     string `json:"status"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

type WatchSectionRequest struct {
	IntakeID string `json:"intake_id"`
	Section  string `json:"section"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}
