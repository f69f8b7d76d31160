package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
)

type fakeClaimer struct {
	mu      sync.Mutex
	batches [][]model.Event
	err     error
}

func (f *fakeClaimer) ClaimBatch(ctx context.Context, workerID string, batchSize int, visibilityTimeout time.Duration) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeDeadSink struct {
	mu        sync.Mutex
	escalated []uuid.UUID
}

func (f *fakeDeadSink) EscalateDeadLetter(ctx context.Context, event model.Event, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalated = append(f.escalated, event.ID)
	return nil
}

func TestWorkerProcessesBatchInOccurredOrder(t *testing.T) {
	now := time.Now()
	first := queuedEvent(0)
	first.Occurred = now.Add(-3 * time.Minute)
	second := queuedEvent(0)
	second.Occurred = now.Add(-2 * time.Minute)
	third := queuedEvent(0)
	third.Occurred = now.Add(-time.Minute)

	claimer := &fakeClaimer{batches: [][]model.Event{{first, second, third}}}
	repo := &fakeFinalizer{}
	processor := newTestProcessor(repo, 5)

	var handled []uuid.UUID
	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, HandlerFunc(func(ctx context.Context, event model.Event) error {
		handled = append(handled, event.ID)
		return nil
	})); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	worker := NewWorker(claimer, processor, nil, nil, zap.NewNop(), WorkerConfig{
		WorkerID:     "worker-1",
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := worker.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	expected := []uuid.UUID{first.ID, second.ID, third.ID}
	if len(handled) != len(expected) {
		t.Fatalf("expected %d events handled, got %d", len(expected), len(handled))
	}
	for i, id := range expected {
		if handled[i] != id {
			t.Fatalf("expected position %d to be %s, got %s", i, id, handled[i])
		}
	}
}

func TestWorkerSurvivesClaimErrors(t *testing.T) {
	claimer := &fakeClaimer{err: errors.New("connection refused")}
	processor := newTestProcessor(&fakeFinalizer{}, 5)

	worker := NewWorker(claimer, processor, nil, nil, zap.NewNop(), WorkerConfig{
		WorkerID:     "worker-1",
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The loop must keep ticking through transient storage errors and stop
	// only on context cancellation.
	if err := worker.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type fakeAuditSink struct {
	mu      sync.Mutex
	records []AttemptRecord
}

func (f *fakeAuditSink) RecordAttempts(ctx context.Context, records []AttemptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func TestWorkerRecordsAttemptAudit(t *testing.T) {
	ok := queuedEvent(0)
	failing := queuedEvent(1)
	claimer := &fakeClaimer{batches: [][]model.Event{{ok, failing}}}
	audit := &fakeAuditSink{}
	processor := newTestProcessor(&fakeFinalizer{}, 5)

	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, HandlerFunc(func(ctx context.Context, event model.Event) error {
		if event.ID == failing.ID {
			return errors.New("transient handler failure")
		}
		return nil
	})); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	worker := NewWorker(claimer, processor, nil, audit, zap.NewNop(), WorkerConfig{
		WorkerID:     "worker-1",
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = worker.Run(ctx)

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(audit.records))
	}
	if audit.records[0].EventID != ok.ID || audit.records[0].Outcome != OutcomeProcessed.String() {
		t.Fatalf("unexpected first record: %+v", audit.records[0])
	}
	if audit.records[1].Attempt != failing.ProcessingAttempts+1 {
		t.Fatalf("expected attempt %d, got %d", failing.ProcessingAttempts+1, audit.records[1].Attempt)
	}
	if audit.records[1].Outcome != OutcomeRetry.String() || audit.records[1].Error == "" {
		t.Fatalf("unexpected failure record: %+v", audit.records[1])
	}
}

func TestWorkerEscalatesDeadLetters(t *testing.T) {
	event := queuedEvent(5)
	claimer := &fakeClaimer{batches: [][]model.Event{{event}}}
	repo := &fakeFinalizer{}
	sink := &fakeDeadSink{}
	processor := newTestProcessor(repo, 5)

	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, HandlerFunc(func(ctx context.Context, event model.Event) error {
		return errors.New("permanently broken")
	})); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	worker := NewWorker(claimer, processor, sink, nil, zap.NewNop(), WorkerConfig{
		WorkerID:     "worker-1",
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = worker.Run(ctx)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.escalated) != 1 || sink.escalated[0] != event.ID {
		t.Fatalf("expected dead letter escalated, got %+v", sink.escalated)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected event marked failed, got %+v", repo.failed)
	}
}
