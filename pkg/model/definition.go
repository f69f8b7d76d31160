package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ValidityUnit string

const (
	ValidityDays   ValidityUnit = "DAYS"
	ValidityWeeks  ValidityUnit = "WEEKS"
	ValidityMonths ValidityUnit = "MONTHS"
	ValidityYears  ValidityUnit = "YEARS"
)

// WorkflowDefinition is a versioned template for workflow instances. Its
// document rules are loaded separately by (id, version); no back-pointers.
type WorkflowDefinition struct {
	ID          string `gorm:"primaryKey"`
	Version     int    `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Description string
	EngineID    string         `gorm:"not null"`
	Tags        pq.StringArray `gorm:"type:text[]"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (WorkflowDefinition) TableName() string {
	return "operations_workflow_definitions"
}

// WorkflowDefinitionDocumentDefinition is a rule: documents of this
// definition are required (or optional) for workflows of this
// definition+version, at most one live record when singular, expiring after
// the validity period when one is configured.
type WorkflowDefinitionDocumentDefinition struct {
	ID                        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowDefinitionID      string    `gorm:"not null;uniqueIndex:idx_definition_document_rule"`
	WorkflowDefinitionVersion int       `gorm:"not null;uniqueIndex:idx_definition_document_rule"`
	DocumentDefinitionID      string    `gorm:"not null;uniqueIndex:idx_definition_document_rule"`
	Required                  bool      `gorm:"default:false"`
	Unique                    bool      `gorm:"column:singular;default:false"`
	RequiresVerification      bool      `gorm:"default:true"`
	ValidityPeriodUnit        *ValidityUnit `gorm:"type:varchar(20)"`
	ValidityPeriodAmount      *int
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

func (WorkflowDefinitionDocumentDefinition) TableName() string {
	return "operations_workflow_definition_document_definitions"
}

// HasValidityPeriod reports whether documents satisfying this rule expire.
func (r WorkflowDefinitionDocumentDefinition) HasValidityPeriod() bool {
	return r.ValidityPeriodUnit != nil && r.ValidityPeriodAmount != nil && *r.ValidityPeriodAmount > 0
}

// ExpiryFrom computes the calendar-aware expiry instant for a document issued
// at the given time. The second return is false when no validity period is
// configured.
func (r WorkflowDefinitionDocumentDefinition) ExpiryFrom(issued time.Time) (time.Time, bool) {
	if !r.HasValidityPeriod() {
		return time.Time{}, false
	}
	amount := *r.ValidityPeriodAmount
	switch *r.ValidityPeriodUnit {
	case ValidityDays:
		return issued.AddDate(0, 0, amount), true
	case ValidityWeeks:
		return issued.AddDate(0, 0, 7*amount), true
	case ValidityMonths:
		return issued.AddDate(0, amount, 0), true
	case ValidityYears:
		return issued.AddDate(amount, 0, 0), true
	}
	return time.Time{}, false
}
