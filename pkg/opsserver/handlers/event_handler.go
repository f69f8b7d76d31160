package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
)

type EventSource interface {
	ListDeadLettered(ctx context.Context, tenantID *uuid.UUID, limit, offset int) ([]model.Event, int64, error)
	CountByStatus(ctx context.Context) (map[model.EventStatus]int64, error)
}

// EventHandler exposes the queue's terminal states to operators. Dead letters
// and counts are reports over queryable state, never exceptions.
type EventHandler struct {
	events EventSource
	logger *zap.Logger
}

func NewEventHandler(events EventSource, logger *zap.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

type eventResponse struct {
	ID                 string  `json:"id"`
	TenantID           string  `json:"tenant_id"`
	ObjectType         string  `json:"object_type"`
	ObjectID           string  `json:"object_id"`
	Type               string  `json:"type"`
	Occurred           string  `json:"occurred"`
	Actor              string  `json:"actor"`
	Status             string  `json:"status"`
	ProcessingAttempts int     `json:"processing_attempts"`
	LastProcessed      *string `json:"last_processed,omitempty"`
	Processed          *string `json:"processed,omitempty"`
}

func (h *EventHandler) ListDeadLetters(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)
	offset := parseOffset(c.Query("offset"))

	var tenantID *uuid.UUID
	if raw := c.Query("tenant_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant_id"})
			return
		}
		tenantID = &parsed
	}

	events, total, err := h.events.ListDeadLettered(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list dead letters", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dead letters"})
		return
	}

	items := make([]eventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, eventResponse{
			ID:                 event.ID.String(),
			TenantID:           event.TenantID.String(),
			ObjectType:         string(event.ObjectType),
			ObjectID:           event.ObjectID.String(),
			Type:               string(event.Type),
			Occurred:           event.Occurred.UTC().Format(time.RFC3339Nano),
			Actor:              event.Actor,
			Status:             string(event.Status),
			ProcessingAttempts: event.ProcessingAttempts,
			LastProcessed:      formatTime(event.LastProcessed),
			Processed:          formatTime(event.Processed),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *EventHandler) Stats(c *gin.Context) {
	counts, err := h.events.CountByStatus(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to count events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queued":    counts[model.EventQueued],
		"processed": counts[model.EventProcessed],
		"failed":    counts[model.EventFailed],
	})
}
