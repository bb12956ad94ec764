package models

import (
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
)

// Status is the lifecycle state of an intake.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusArchived  Status = "archived"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted, StatusArchived},
	StatusSubmitted: {StatusApproved, StatusDraft, StatusArchived},
	StatusApproved:  {StatusArchived},
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether an intake in s may move to target.
func (s Status) CanTransition(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Draft is the intake row. Version only changes through a versioned save.
type Draft struct {
	ID         string
	OwnerID    string
	Data       document.Document
	Version    int64
	Status     Status
	LastSaveID string
	UpdatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SectionRecord holds the relational columns of one section. Values is keyed
// by document field name; a nil value is a NULL column.
type SectionRecord struct {
	IntakeID  string
	Section   string
	Values    map[string]any
	Version   int64
	UpdatedBy string
	UpdatedAt time.Time
}

type SectionStatus struct {
	IntakeID      string
	Section       string
	Status        catalog.Status
	LastUpdatedBy string
	UpdatedAt     time.Time
}

// AuditEvent is one field-level change written after a successful save.
type AuditEvent struct {
	ID        string
	IntakeID  string
	FieldPath string
	OldValue  any
	NewValue  any
	ActorID   string
	CreatedAt time.Time
}
