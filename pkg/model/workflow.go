package model

import (
	"time"

	"github.com/google/uuid"
)

type WorkflowStatus string

const (
	WorkflowOpen      WorkflowStatus = "OPEN"
	WorkflowBlocked   WorkflowStatus = "BLOCKED"
	WorkflowCompleted WorkflowStatus = "COMPLETED"
	WorkflowCancelled WorkflowStatus = "CANCELLED"
)

// Workflow is an instance of a WorkflowDefinition. The surrounding data layer
// owns most of its columns; the queue core only needs identity, tenant and
// the definition coordinates for rule lookups.
type Workflow struct {
	ID                        uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID                  uuid.UUID      `gorm:"type:uuid;not null;index"`
	WorkflowDefinitionID      string         `gorm:"not null;index"`
	WorkflowDefinitionVersion int            `gorm:"not null"`
	Status                    WorkflowStatus `gorm:"type:varchar(50);default:'OPEN';index"`
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

func (Workflow) TableName() string {
	return "operations_workflows"
}

// Process mirrors Workflow for the process-scoped document records.
type Process struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Status    string    `gorm:"type:varchar(50);index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Process) TableName() string {
	return "operations_processes"
}
