package model

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventQueued    EventStatus = "QUEUED"
	EventProcessed EventStatus = "PROCESSED"
	EventFailed    EventStatus = "FAILED"
)

type ObjectType string

const (
	ObjectWorkflow         ObjectType = "WORKFLOW"
	ObjectProcess          ObjectType = "PROCESS"
	ObjectWorkflowDocument ObjectType = "WORKFLOW_DOCUMENT"
	ObjectProcessDocument  ObjectType = "PROCESS_DOCUMENT"
)

type EventType string

const (
	EventWorkflowCreated       EventType = "WORKFLOW_CREATED"
	EventWorkflowStatusChanged EventType = "WORKFLOW_STATUS_CHANGED"
	EventDocumentProvided      EventType = "DOCUMENT_PROVIDED"
	EventDocumentVerified      EventType = "DOCUMENT_VERIFIED"
	EventDocumentRejected      EventType = "DOCUMENT_REJECTED"
	EventDocumentWaived        EventType = "DOCUMENT_WAIVED"
)

// Event is a durable fact about a domain change, queued for at-least-once
// side-effect processing. Rows are never deleted, only transitioned.
type Event struct {
	ID                 uuid.UUID   `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID           uuid.UUID   `gorm:"type:uuid;not null;index"`
	ObjectType         ObjectType  `gorm:"type:varchar(50);not null"`
	ObjectID           uuid.UUID   `gorm:"type:uuid;not null;index"`
	Type               EventType   `gorm:"type:varchar(100);not null"`
	Occurred           time.Time   `gorm:"not null;index"`
	Actor              string      `gorm:"not null"`
	Status             EventStatus `gorm:"type:varchar(50);default:'QUEUED';index"`
	ProcessingAttempts int         `gorm:"default:0"`
	Locked             *time.Time  `gorm:"index"`
	LockName           *string
	LastProcessed      *time.Time
	Processed          *time.Time
	CreatedAt          time.Time
}

func (Event) TableName() string {
	return "operations_events"
}

// Terminal reports whether the event can no longer be mutated.
func (e Event) Terminal() bool {
	return e.Status == EventProcessed || e.Status == EventFailed
}

// Redelivered reports whether the event has been attempted before. The queue
// is at-least-once, so handlers see redelivered events after worker crashes
// and visibility-timeout reclaims.
func (e Event) Redelivered() bool {
	return e.ProcessingAttempts > 0 || e.LastProcessed != nil
}

// NextAttempt returns a copy of the event accounting for one failed
// processing attempt: the attempt counter is incremented exactly once and the
// lock is released. The caller persists the result under the same conditional
// update that checks lock ownership.
func NextAttempt(e Event, now time.Time) Event {
	e.ProcessingAttempts++
	e.LastProcessed = &now
	e.Locked = nil
	e.LockName = nil
	return e
}
