package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/metrics"
	"github.com/opsflow/opsflow/pkg/model"
)

// Claimer atomically acquires a batch of due, unlocked events for a worker.
type Claimer interface {
	ClaimBatch(ctx context.Context, workerID string, batchSize int, visibilityTimeout time.Duration) ([]model.Event, error)
}

// DeadLetterSink receives events after their final failed attempt so
// operators hear about them outside the database.
type DeadLetterSink interface {
	EscalateDeadLetter(ctx context.Context, event model.Event, cause error) error
}

type WorkerConfig struct {
	WorkerID          string
	BatchSize         int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
}

// Worker runs the claim-process loop. Many workers run concurrently against
// the same event table; the claim query is the only coordination between
// them. Individual event failures never stop the loop.
type Worker struct {
	claimer   Claimer
	processor *Processor
	deadSink  DeadLetterSink
	audit     AuditSink
	logger    *zap.Logger
	cfg       WorkerConfig
}

func NewWorker(claimer Claimer, processor *Processor, deadSink DeadLetterSink, audit AuditSink, logger *zap.Logger, cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	return &Worker{
		claimer:   claimer,
		processor: processor,
		deadSink:  deadSink,
		audit:     audit,
		logger:    logger,
		cfg:       cfg,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("event worker starting",
		zap.String("worker_id", w.cfg.WorkerID),
		zap.Int("batch_size", w.cfg.BatchSize),
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Duration("visibility_timeout", w.cfg.VisibilityTimeout),
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("event worker shutting down", zap.String("worker_id", w.cfg.WorkerID))
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce claims one batch and processes it in occurred order. A claim
// failure is transient: it is logged and retried on the next tick.
func (w *Worker) runOnce(ctx context.Context) {
	events, err := w.claimer.ClaimBatch(ctx, w.cfg.WorkerID, w.cfg.BatchSize, w.cfg.VisibilityTimeout)
	if err != nil {
		metrics.ClaimErrors.WithLabelValues(w.cfg.WorkerID).Inc()
		w.logger.Warn("failed to claim events", zap.String("worker_id", w.cfg.WorkerID), zap.Error(err))
		return
	}

	if len(events) == 0 {
		return
	}

	metrics.EventsClaimed.WithLabelValues(w.cfg.WorkerID).Add(float64(len(events)))

	var attempts []AttemptRecord
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		if event.Redelivered() {
			metrics.EventsRedelivered.WithLabelValues(w.cfg.WorkerID).Inc()
		}

		started := time.Now()
		outcome, err := w.processor.Process(ctx, event)
		if err != nil {
			w.logger.Warn("event processing failed",
				zap.String("event_id", event.ID.String()),
				zap.String("outcome", outcome.String()),
				zap.Error(err),
			)
		}

		if w.audit != nil {
			record := AttemptRecord{
				EventID:    event.ID,
				TenantID:   event.TenantID,
				ObjectType: event.ObjectType,
				Type:       event.Type,
				WorkerID:   w.cfg.WorkerID,
				Attempt:    event.ProcessingAttempts + 1,
				Outcome:    outcome.String(),
				Duration:   time.Since(started),
				Timestamp:  started,
			}
			if err != nil {
				record.Error = err.Error()
			}
			attempts = append(attempts, record)
		}

		if outcome == OutcomeDeadLettered && w.deadSink != nil {
			if escErr := w.deadSink.EscalateDeadLetter(ctx, event, err); escErr != nil {
				w.logger.Warn("failed to escalate dead letter",
					zap.String("event_id", event.ID.String()),
					zap.Error(escErr),
				)
			}
		}
	}

	if w.audit != nil && len(attempts) > 0 {
		if err := w.audit.RecordAttempts(ctx, attempts); err != nil {
			w.logger.Warn("failed to record attempt audit batch",
				zap.String("worker_id", w.cfg.WorkerID),
				zap.Int("records", len(attempts)),
				zap.Error(err),
			)
		}
	}
}
