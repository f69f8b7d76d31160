package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
)

type fakeFinalizer struct {
	processed []uuid.UUID
	released  []model.Event
	failed    []model.Event

	processErr error
}

func (f *fakeFinalizer) MarkProcessed(ctx context.Context, eventID uuid.UUID, workerID string, now time.Time) error {
	if f.processErr != nil {
		return f.processErr
	}
	f.processed = append(f.processed, eventID)
	return nil
}

func (f *fakeFinalizer) ReleaseForRetry(ctx context.Context, event model.Event, workerID string, now time.Time) error {
	f.released = append(f.released, model.NextAttempt(event, now))
	return nil
}

func (f *fakeFinalizer) MarkFailed(ctx context.Context, event model.Event, workerID string, now time.Time) error {
	failed := model.NextAttempt(event, now)
	failed.Status = model.EventFailed
	f.failed = append(f.failed, failed)
	return nil
}

func queuedEvent(attempts int) model.Event {
	return model.Event{
		ID:                 uuid.New(),
		TenantID:           uuid.New(),
		ObjectType:         model.ObjectWorkflow,
		ObjectID:           uuid.New(),
		Type:               model.EventWorkflowCreated,
		Occurred:           time.Now().Add(-time.Minute),
		Actor:              "alice",
		Status:             model.EventQueued,
		ProcessingAttempts: attempts,
	}
}

func newTestProcessor(repo EventFinalizer, maxAttempts int) *Processor {
	return NewProcessor(repo, "worker-1", maxAttempts, zap.NewNop())
}

func TestProcessSuccess(t *testing.T) {
	repo := &fakeFinalizer{}
	processor := newTestProcessor(repo, 5)

	handled := 0
	err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, HandlerFunc(func(ctx context.Context, event model.Event) error {
		handled++
		return nil
	}))
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	event := queuedEvent(0)
	outcome, err := processor.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected OutcomeProcessed, got %s", outcome)
	}
	if handled != 1 {
		t.Fatalf("expected handler invoked once, got %d", handled)
	}
	if len(repo.processed) != 1 || repo.processed[0] != event.ID {
		t.Fatalf("expected event marked processed, got %+v", repo.processed)
	}
}

func TestProcessFailureReleasesForRetry(t *testing.T) {
	repo := &fakeFinalizer{}
	processor := newTestProcessor(repo, 5)

	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, HandlerFunc(func(ctx context.Context, event model.Event) error {
		return errors.New("downstream unavailable")
	})); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	outcome, err := processor.Process(context.Background(), queuedEvent(0))
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if outcome != OutcomeRetry {
		t.Fatalf("expected OutcomeRetry, got %s", outcome)
	}
	if len(repo.released) != 1 {
		t.Fatalf("expected one release, got %d", len(repo.released))
	}
	if repo.released[0].ProcessingAttempts != 1 {
		t.Fatalf("expected 1 attempt recorded, got %d", repo.released[0].ProcessingAttempts)
	}
}

func TestProcessDeadLettersAtMaxAttempts(t *testing.T) {
	repo := &fakeFinalizer{}
	processor := newTestProcessor(repo, 5)

	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, HandlerFunc(func(ctx context.Context, event model.Event) error {
		return errors.New("still broken")
	})); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	// Attempts 4 of max 5: one more failure stays QUEUED at attempts 5.
	outcome, _ := processor.Process(context.Background(), queuedEvent(4))
	if outcome != OutcomeRetry {
		t.Fatalf("expected OutcomeRetry at attempt 4, got %s", outcome)
	}
	if len(repo.released) != 1 || repo.released[0].ProcessingAttempts != 5 {
		t.Fatalf("expected release with 5 attempts, got %+v", repo.released)
	}

	// The next failure exhausts the budget.
	outcome, _ = processor.Process(context.Background(), queuedEvent(5))
	if outcome != OutcomeDeadLettered {
		t.Fatalf("expected OutcomeDeadLettered at attempt 5, got %s", outcome)
	}
	if len(repo.failed) != 1 || repo.failed[0].Status != model.EventFailed {
		t.Fatalf("expected event marked failed, got %+v", repo.failed)
	}
}

func TestProcessConsecutiveFailuresCountAttempts(t *testing.T) {
	repo := &fakeFinalizer{}
	processor := newTestProcessor(repo, 5)

	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, HandlerFunc(func(ctx context.Context, event model.Event) error {
		return errors.New("boom")
	})); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	event := queuedEvent(0)
	for i := 0; i < 5; i++ {
		outcome, _ := processor.Process(context.Background(), event)
		if outcome != OutcomeRetry {
			t.Fatalf("failure %d: expected OutcomeRetry, got %s", i+1, outcome)
		}
		event = repo.released[len(repo.released)-1]
		if event.ProcessingAttempts != i+1 {
			t.Fatalf("failure %d: expected %d attempts, got %d", i+1, i+1, event.ProcessingAttempts)
		}
	}

	outcome, _ := processor.Process(context.Background(), event)
	if outcome != OutcomeDeadLettered {
		t.Fatalf("expected dead letter after exhausting attempts, got %s", outcome)
	}
}

func TestProcessNoHandlerFollowsFailurePath(t *testing.T) {
	repo := &fakeFinalizer{}
	processor := newTestProcessor(repo, 5)

	outcome, err := processor.Process(context.Background(), queuedEvent(0))
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
	if outcome != OutcomeRetry {
		t.Fatalf("expected OutcomeRetry, got %s", outcome)
	}
}

func TestProcessMarkProcessedFailureLeavesLock(t *testing.T) {
	repo := &fakeFinalizer{processErr: errors.New("connection reset")}
	processor := newTestProcessor(repo, 5)

	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, HandlerFunc(func(ctx context.Context, event model.Event) error {
		return nil
	})); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	outcome, err := processor.Process(context.Background(), queuedEvent(0))
	if err == nil {
		t.Fatal("expected storage error to propagate")
	}
	if outcome != OutcomeRetry {
		t.Fatalf("expected OutcomeRetry, got %s", outcome)
	}
	if len(repo.released) != 0 && len(repo.failed) != 0 {
		t.Fatalf("expected no finalize writes, got %+v %+v", repo.released, repo.failed)
	}
}

func TestRegisterRejectsDuplicateKey(t *testing.T) {
	processor := newTestProcessor(&fakeFinalizer{}, 5)

	handler := HandlerFunc(func(ctx context.Context, event model.Event) error { return nil })
	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, handler); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := processor.Register(model.ObjectWorkflow, model.EventWorkflowCreated, handler); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
