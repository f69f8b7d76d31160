package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opsflow/opsflow/pkg/model"
)

// AttemptRecord describes one processing attempt for the audit trail. The
// attempt number is the one this record accounts for, starting at 1.
type AttemptRecord struct {
	EventID    uuid.UUID
	TenantID   uuid.UUID
	ObjectType model.ObjectType
	Type       model.EventType
	WorkerID   string
	Attempt    int
	Outcome    string
	Error      string
	Duration   time.Duration
	Timestamp  time.Time
}

// AuditSink persists attempt records. Batches follow claim batches; a failed
// write loses audit rows, never events.
type AuditSink interface {
	RecordAttempts(ctx context.Context, records []AttemptRecord) error
}
