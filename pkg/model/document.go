package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type DocumentStatus string

const (
	DocumentRequested DocumentStatus = "REQUESTED"
	DocumentProvided  DocumentStatus = "PROVIDED"
	DocumentVerified  DocumentStatus = "VERIFIED"
	DocumentRejected  DocumentStatus = "REJECTED"
	DocumentWaived    DocumentStatus = "WAIVED"
)

// DocumentRecord carries the lifecycle fields shared by workflow and process
// document associations. While status is REQUESTED no concrete document is
// attached yet; exactly one of the verified/rejected/waived timestamp groups
// is populated once the record is terminal.
type DocumentRecord struct {
	DocumentDefinitionID string         `gorm:"not null;index"`
	DocumentID           *uuid.UUID     `gorm:"type:uuid"`
	Status               DocumentStatus `gorm:"type:varchar(50);default:'REQUESTED';index"`
	Requested            time.Time      `gorm:"not null"`
	RequestedBy          string         `gorm:"not null"`
	Provided             *time.Time
	ProvidedBy           string
	Verified             *time.Time
	VerifiedBy           string
	Rejected             *time.Time
	RejectedBy           string
	RejectionReason      string
	Waived               *time.Time
	WaivedBy             string
	WaiveReason          string
}

// Live reports whether the record still counts toward its requirement.
// Rejected records are dead; a resubmission produces a fresh request.
func (r DocumentRecord) Live() bool {
	return r.Status != DocumentRejected
}

// WorkflowDocument associates a concrete document with a workflow instance.
type WorkflowDocument struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID     uuid.UUID `gorm:"type:uuid;not null;index"`
	DocumentRecord `gorm:"embedded"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (WorkflowDocument) TableName() string {
	return "operations_workflow_documents"
}

// ProcessDocument is the process-scoped parallel of WorkflowDocument.
type ProcessDocument struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProcessID      uuid.UUID `gorm:"type:uuid;not null;index"`
	DocumentRecord `gorm:"embedded"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ProcessDocument) TableName() string {
	return "operations_process_documents"
}

// DocumentDefinition describes a kind of document the business recognises.
// Content itself lives in an external document store keyed by document id.
type DocumentDefinition struct {
	ID               string `gorm:"primaryKey"`
	Name             string `gorm:"not null"`
	Description      string
	AllowedMimeTypes pq.StringArray `gorm:"type:text[]"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DocumentDefinition) TableName() string {
	return "operations_document_definitions"
}
