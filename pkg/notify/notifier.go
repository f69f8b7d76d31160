package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
)

// Publisher is satisfied by *kafka.Writer.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Deduper remembers which event ids already produced a notification.
// Notifications are not idempotent on redelivery, so they are deduplicated
// by event id before publishing.
type Deduper interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisDeduper struct {
	client redis.UniversalClient
}

func NewRedisDeduper(client redis.UniversalClient) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, key, 1, ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, key).Err()
}

type Message struct {
	EventID    string                 `json:"event_id"`
	TenantID   string                 `json:"tenant_id"`
	ObjectType string                 `json:"object_type"`
	ObjectID   string                 `json:"object_id"`
	Type       string                 `json:"type"`
	Occurred   time.Time              `json:"occurred"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	SentAt     time.Time              `json:"sent_at"`
}

type DeadLetterMessage struct {
	Event    Message   `json:"event"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type Notifier struct {
	writer    Publisher
	dlqWriter Publisher
	deduper   Deduper
	logger    *zap.Logger
	dedupTTL  time.Duration
}

func NewNotifier(writer, dlqWriter Publisher, deduper Deduper, logger *zap.Logger, dedupTTL time.Duration) *Notifier {
	if dedupTTL <= 0 {
		dedupTTL = 72 * time.Hour
	}
	return &Notifier{
		writer:    writer,
		dlqWriter: dlqWriter,
		deduper:   deduper,
		logger:    logger,
		dedupTTL:  dedupTTL,
	}
}

func dedupKey(eventID string) string {
	return "opsflow:notified:" + eventID
}

// Notify publishes a notification for the event at most once. Redelivered
// events find the dedup key set and publish nothing.
func (n *Notifier) Notify(ctx context.Context, event model.Event, detail map[string]interface{}) error {
	key := dedupKey(event.ID.String())

	acquired, err := n.deduper.Acquire(ctx, key, n.dedupTTL)
	if err != nil {
		return fmt.Errorf("acquire notification dedup key: %w", err)
	}
	if !acquired {
		n.logger.Debug("notification already sent", zap.String("event_id", event.ID.String()))
		return nil
	}

	message := Message{
		EventID:    event.ID.String(),
		TenantID:   event.TenantID.String(),
		ObjectType: string(event.ObjectType),
		ObjectID:   event.ObjectID.String(),
		Type:       string(event.Type),
		Occurred:   event.Occurred,
		Detail:     detail,
		SentAt:     time.Now(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(event.ID.String()),
		Value: payload,
		Time:  time.Now(),
	}

	if err := n.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		// Give redelivery another chance to notify.
		if relErr := n.deduper.Release(ctx, key); relErr != nil {
			n.logger.Warn("failed to release notification dedup key",
				zap.String("event_id", event.ID.String()), zap.Error(relErr))
		}
		return fmt.Errorf("publish notification: %w", err)
	}

	return nil
}

// EscalateDeadLetter publishes a dead-lettered event to the operator topic.
// Dead-lettering is terminal, so no dedup is needed: the event transitions to
// FAILED exactly once.
func (n *Notifier) EscalateDeadLetter(ctx context.Context, event model.Event, cause error) error {
	message := DeadLetterMessage{
		Event: Message{
			EventID:    event.ID.String(),
			TenantID:   event.TenantID.String(),
			ObjectType: string(event.ObjectType),
			ObjectID:   event.ObjectID.String(),
			Type:       string(event.Type),
			Occurred:   event.Occurred,
			SentAt:     time.Now(),
		},
		Attempts: event.ProcessingAttempts + 1,
		FailedAt: time.Now(),
	}
	if cause != nil {
		message.Error = cause.Error()
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return n.dlqWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID.String()),
		Value: payload,
		Time:  time.Now(),
	})
}
