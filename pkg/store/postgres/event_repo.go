package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsflow/opsflow/pkg/model"
)

// ErrLockLost signals that a finalize update matched no row: the worker's
// visibility timeout elapsed and another worker reclaimed the event.
var ErrLockLost = errors.New("event lock no longer held")

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, event *model.Event) error {
	if event.Status == "" {
		event.Status = model.EventQueued
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

const claimBatchSQL = `
UPDATE operations_events
SET locked = ?, lock_name = ?
WHERE id IN (
	SELECT id FROM operations_events
	WHERE status = ? AND (locked IS NULL OR locked < ?)
	ORDER BY occurred ASC
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING *`

// ClaimBatch atomically marks up to batchSize due events as locked by
// workerID and returns them ordered by occurred. Rows whose lock is older
// than the visibility timeout are reclaimable; SKIP LOCKED keeps concurrent
// claimers from blocking on or double-claiming the same rows.
func (r *EventRepository) ClaimBatch(ctx context.Context, workerID string, batchSize int, visibilityTimeout time.Duration) ([]model.Event, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	now := time.Now()
	staleBefore := now.Add(-visibilityTimeout)

	var events []model.Event
	err := r.db.WithContext(ctx).
		Raw(claimBatchSQL, now, workerID, model.EventQueued, staleBefore, batchSize).
		Scan(&events).Error
	if err != nil {
		return nil, err
	}

	// RETURNING does not guarantee row order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	return events, nil
}

// MarkProcessed finalizes a successfully handled event. The update is
// conditional on lock ownership so a stale worker cannot finalize an event
// that was reclaimed from it.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID uuid.UUID, workerID string, now time.Time) error {
	updates := map[string]interface{}{
		"status":         model.EventProcessed,
		"processed":      now,
		"last_processed": now,
		"locked":         nil,
		"lock_name":      nil,
	}
	return r.finalize(ctx, eventID, workerID, updates)
}

// ReleaseForRetry records one failed attempt and releases the lock, leaving
// the event QUEUED for a later claim.
func (r *EventRepository) ReleaseForRetry(ctx context.Context, event model.Event, workerID string, now time.Time) error {
	next := model.NextAttempt(event, now)
	updates := map[string]interface{}{
		"processing_attempts": next.ProcessingAttempts,
		"last_processed":      now,
		"locked":              nil,
		"lock_name":           nil,
	}
	return r.finalize(ctx, event.ID, workerID, updates)
}

// MarkFailed dead-letters an event whose retry budget is exhausted. The final
// attempt still counts.
func (r *EventRepository) MarkFailed(ctx context.Context, event model.Event, workerID string, now time.Time) error {
	next := model.NextAttempt(event, now)
	updates := map[string]interface{}{
		"status":              model.EventFailed,
		"processing_attempts": next.ProcessingAttempts,
		"last_processed":      now,
		"locked":              nil,
		"lock_name":           nil,
	}
	return r.finalize(ctx, event.ID, workerID, updates)
}

func (r *EventRepository) finalize(ctx context.Context, eventID uuid.UUID, workerID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("id = ? AND lock_name = ?", eventID, workerID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

func (r *EventRepository) ListDeadLettered(ctx context.Context, tenantID *uuid.UUID, limit, offset int) ([]model.Event, int64, error) {
	var events []model.Event
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Event{}).Where("status = ?", model.EventFailed)
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("occurred ASC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error

	return events, total, err
}

func (r *EventRepository) CountByStatus(ctx context.Context) (map[model.EventStatus]int64, error) {
	type row struct {
		Status model.EventStatus
		Total  int64
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Select("status, count(*) as total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.EventStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
