package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (f *fakePublisher) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

type fakeDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{keys: make(map[string]bool)}
}

func (f *fakeDeduper) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeDeduper) Release(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

func testEvent() model.Event {
	return model.Event{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		ObjectType: model.ObjectWorkflow,
		ObjectID:   uuid.New(),
		Type:       model.EventWorkflowCreated,
		Occurred:   time.Now().Add(-time.Minute),
	}
}

func TestNotifyPublishesOnce(t *testing.T) {
	writer := &fakePublisher{}
	notifier := NewNotifier(writer, &fakePublisher{}, newFakeDeduper(), zap.NewNop(), time.Hour)

	event := testEvent()
	detail := map[string]interface{}{"outstanding": 2}

	if err := notifier.Notify(context.Background(), event, detail); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	// Redelivery of the same event publishes nothing.
	if err := notifier.Notify(context.Background(), event, detail); err != nil {
		t.Fatalf("Notify() redelivery error: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected exactly 1 message, got %d", len(writer.messages))
	}

	var message Message
	if err := json.Unmarshal(writer.messages[0].Value, &message); err != nil {
		t.Fatalf("unmarshal message error: %v", err)
	}
	if message.EventID != event.ID.String() {
		t.Fatalf("expected event id %s, got %s", event.ID, message.EventID)
	}
}

func TestNotifyReleasesDedupKeyOnPublishFailure(t *testing.T) {
	writer := &fakePublisher{err: errors.New("broker unavailable")}
	deduper := newFakeDeduper()
	notifier := NewNotifier(writer, &fakePublisher{}, deduper, zap.NewNop(), time.Hour)

	event := testEvent()
	if err := notifier.Notify(context.Background(), event, nil); err == nil {
		t.Fatal("expected publish error")
	}

	// The key must be free again so redelivery can retry the notification.
	writer.err = nil
	if err := notifier.Notify(context.Background(), event, nil); err != nil {
		t.Fatalf("Notify() retry error: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message after retry, got %d", len(writer.messages))
	}
}

func TestEscalateDeadLetter(t *testing.T) {
	dlq := &fakePublisher{}
	notifier := NewNotifier(&fakePublisher{}, dlq, newFakeDeduper(), zap.NewNop(), time.Hour)

	event := testEvent()
	event.ProcessingAttempts = 5

	if err := notifier.EscalateDeadLetter(context.Background(), event, errors.New("handler exploded")); err != nil {
		t.Fatalf("EscalateDeadLetter() error: %v", err)
	}

	if len(dlq.messages) != 1 {
		t.Fatalf("expected 1 DLQ message, got %d", len(dlq.messages))
	}

	var message DeadLetterMessage
	if err := json.Unmarshal(dlq.messages[0].Value, &message); err != nil {
		t.Fatalf("unmarshal DLQ message error: %v", err)
	}
	if message.Attempts != 6 {
		t.Fatalf("expected 6 attempts, got %d", message.Attempts)
	}
	if message.Error != "handler exploded" {
		t.Fatalf("expected cause recorded, got %q", message.Error)
	}
}
