package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/metrics"
	"github.com/opsflow/opsflow/pkg/model"
)

var ErrNoHandler = errors.New("no handler registered for event")

type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeRetry
	OutcomeDeadLettered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeRetry:
		return "retry"
	case OutcomeDeadLettered:
		return "dead_lettered"
	}
	return "unknown"
}

// Handler processes one event. Handlers must be idempotent: a crash between
// handler success and the mark-processed write causes redelivery of the same
// event.
type Handler interface {
	Handle(ctx context.Context, event model.Event) error
}

type HandlerFunc func(ctx context.Context, event model.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event model.Event) error {
	return f(ctx, event)
}

// HandlerKey dispatches on the closed (objectType, type) variant pair.
type HandlerKey struct {
	ObjectType model.ObjectType
	Type       model.EventType
}

// EventFinalizer is the slice of the event repository the processor needs to
// transition claimed events to their next state.
type EventFinalizer interface {
	MarkProcessed(ctx context.Context, eventID uuid.UUID, workerID string, now time.Time) error
	ReleaseForRetry(ctx context.Context, event model.Event, workerID string, now time.Time) error
	MarkFailed(ctx context.Context, event model.Event, workerID string, now time.Time) error
}

type Processor struct {
	repo        EventFinalizer
	handlers    map[HandlerKey]Handler
	workerID    string
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

func NewProcessor(repo EventFinalizer, workerID string, maxAttempts int, logger *zap.Logger) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Processor{
		repo:        repo,
		handlers:    make(map[HandlerKey]Handler),
		workerID:    workerID,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

func (p *Processor) Register(objectType model.ObjectType, eventType model.EventType, handler Handler) error {
	key := HandlerKey{ObjectType: objectType, Type: eventType}
	if _, exists := p.handlers[key]; exists {
		return fmt.Errorf("handler already registered for %s/%s", objectType, eventType)
	}
	p.handlers[key] = handler
	return nil
}

// Process dispatches one claimed event to its handler and finalizes it:
// success marks it PROCESSED, failure releases it for retry until the
// attempt budget is exhausted, then dead-letters it. A missing handler
// follows the failure path so a misconfigured worker cannot silently drop
// events.
func (p *Processor) Process(ctx context.Context, event model.Event) (Outcome, error) {
	handler, ok := p.handlers[HandlerKey{ObjectType: event.ObjectType, Type: event.Type}]

	var handlerErr error
	if !ok {
		handlerErr = fmt.Errorf("%w: %s/%s", ErrNoHandler, event.ObjectType, event.Type)
	} else {
		started := time.Now()
		handlerErr = handler.Handle(ctx, event)
		metrics.ProcessingDuration.
			WithLabelValues(string(event.ObjectType), string(event.Type)).
			Observe(time.Since(started).Seconds())
	}

	now := p.now()
	outcome, err := p.finalize(ctx, event, handlerErr, now)

	metrics.EventsProcessed.
		WithLabelValues(string(event.ObjectType), string(event.Type), outcome.String()).
		Inc()

	return outcome, err
}

func (p *Processor) finalize(ctx context.Context, event model.Event, handlerErr error, now time.Time) (Outcome, error) {
	if handlerErr == nil {
		if err := p.repo.MarkProcessed(ctx, event.ID, p.workerID, now); err != nil {
			// The lock stays held (or was reclaimed); the event will be
			// redelivered after the visibility timeout either way.
			return OutcomeRetry, fmt.Errorf("mark processed: %w", err)
		}
		return OutcomeProcessed, nil
	}

	p.logger.Warn("event handler failed",
		zap.String("event_id", event.ID.String()),
		zap.String("object_type", string(event.ObjectType)),
		zap.String("type", string(event.Type)),
		zap.Int("processing_attempts", event.ProcessingAttempts),
		zap.Error(handlerErr),
	)

	if event.ProcessingAttempts >= p.maxAttempts {
		if err := p.repo.MarkFailed(ctx, event, p.workerID, now); err != nil {
			return OutcomeRetry, fmt.Errorf("mark failed: %w", err)
		}
		metrics.DeadLetters.
			WithLabelValues(string(event.ObjectType), string(event.Type)).
			Inc()
		return OutcomeDeadLettered, handlerErr
	}

	if err := p.repo.ReleaseForRetry(ctx, event, p.workerID, now); err != nil {
		return OutcomeRetry, fmt.Errorf("release for retry: %w", err)
	}
	return OutcomeRetry, handlerErr
}
