package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/queue"
)

type AttemptSource interface {
	ListByEventID(ctx context.Context, eventID uuid.UUID, limit int) ([]queue.AttemptRecord, error)
}

// AttemptHandler exposes the per-attempt processing history of an event.
type AttemptHandler struct {
	attempts AttemptSource
	logger   *zap.Logger
}

func NewAttemptHandler(attempts AttemptSource, logger *zap.Logger) *AttemptHandler {
	return &AttemptHandler{attempts: attempts, logger: logger}
}

type attemptResponse struct {
	EventID    string `json:"event_id"`
	WorkerID   string `json:"worker_id"`
	Attempt    int    `json:"attempt"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

func (h *AttemptHandler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	limit := parseLimit(c.Query("limit"), 100)

	records, err := h.attempts.ListByEventID(c.Request.Context(), eventID, limit)
	if err != nil {
		h.logger.Error("failed to list event attempts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list event attempts"})
		return
	}

	items := make([]attemptResponse, 0, len(records))
	for _, record := range records {
		items = append(items, attemptResponse{
			EventID:    record.EventID.String(),
			WorkerID:   record.WorkerID,
			Attempt:    record.Attempt,
			Outcome:    record.Outcome,
			Error:      record.Error,
			DurationMs: record.Duration.Milliseconds(),
			Timestamp:  record.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
