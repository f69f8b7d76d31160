package docstatus

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsflow/opsflow/pkg/model"
)

// InvalidTransitionError is returned when a requested transition is not legal
// from the record's current status.
type InvalidTransitionError struct {
	From model.DocumentStatus
	To   model.DocumentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid document transition from %s to %s", e.From, e.To)
}

// Policy controls the one transition the data model leaves open: whether a
// rejected record may be reopened for resubmission or stays terminal.
type Policy struct {
	AllowResubmission bool
}

type Machine struct {
	policy Policy
}

func NewMachine(policy Policy) *Machine {
	return &Machine{policy: policy}
}

var transitions = map[model.DocumentStatus][]model.DocumentStatus{
	model.DocumentRequested: {model.DocumentProvided, model.DocumentWaived},
	model.DocumentProvided:  {model.DocumentVerified, model.DocumentRejected, model.DocumentWaived},
	model.DocumentRejected:  {model.DocumentRequested}, // only with AllowResubmission
	model.DocumentVerified:  nil,
	model.DocumentWaived:    nil,
}

// CanTransition reports whether the machine permits from→to, honoring the
// resubmission policy for the REJECTED→REQUESTED edge.
func (m *Machine) CanTransition(from, to model.DocumentStatus) bool {
	if from == model.DocumentRejected && to == model.DocumentRequested {
		return m.policy.AllowResubmission
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (m *Machine) check(from, to model.DocumentStatus) error {
	if !m.CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Provide attaches a concrete document to a requested record.
func (m *Machine) Provide(record *model.DocumentRecord, documentID uuid.UUID, by string, now time.Time) error {
	if err := m.check(record.Status, model.DocumentProvided); err != nil {
		return err
	}
	if documentID == uuid.Nil {
		return fmt.Errorf("document id is required to provide %s", record.DocumentDefinitionID)
	}
	record.Status = model.DocumentProvided
	record.DocumentID = &documentID
	record.Provided = &now
	record.ProvidedBy = by
	return nil
}

func (m *Machine) Verify(record *model.DocumentRecord, by string, now time.Time) error {
	if err := m.check(record.Status, model.DocumentVerified); err != nil {
		return err
	}
	record.Status = model.DocumentVerified
	record.Verified = &now
	record.VerifiedBy = by
	return nil
}

func (m *Machine) Reject(record *model.DocumentRecord, by, reason string, now time.Time) error {
	if err := m.check(record.Status, model.DocumentRejected); err != nil {
		return err
	}
	record.Status = model.DocumentRejected
	record.Rejected = &now
	record.RejectedBy = by
	record.RejectionReason = reason
	return nil
}

func (m *Machine) Waive(record *model.DocumentRecord, by, reason string, now time.Time) error {
	if err := m.check(record.Status, model.DocumentWaived); err != nil {
		return err
	}
	record.Status = model.DocumentWaived
	record.Waived = &now
	record.WaivedBy = by
	record.WaiveReason = reason
	return nil
}

// Reopen returns a rejected record to REQUESTED for resubmission. The
// attached document and provision fields are cleared; the rejection fields
// stay as audit trail.
func (m *Machine) Reopen(record *model.DocumentRecord, by string, now time.Time) error {
	if err := m.check(record.Status, model.DocumentRequested); err != nil {
		return err
	}
	record.Status = model.DocumentRequested
	record.Requested = now
	record.RequestedBy = by
	record.DocumentID = nil
	record.Provided = nil
	record.ProvidedBy = ""
	return nil
}
