package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
	"github.com/opsflow/opsflow/pkg/queue"
)

// AuditStore keeps the per-attempt processing history. The event table only
// holds current state; attempt rows are append-only and expire via TTL.
type AuditStore struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewAuditStore(addr, database, username, password string, logger *zap.Logger) (*AuditStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &AuditStore{conn: conn, logger: logger}, nil
}

func (s *AuditStore) RecordAttempts(ctx context.Context, records []queue.AttemptRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO operations_event_attempts")
	if err != nil {
		return err
	}

	for _, record := range records {
		err := batch.Append(
			record.EventID,
			record.TenantID,
			string(record.ObjectType),
			string(record.Type),
			record.WorkerID,
			int32(record.Attempt),
			record.Outcome,
			record.Error,
			record.Duration.Milliseconds(),
			record.Timestamp,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// ListByEventID returns the attempt history for one event, oldest first.
func (s *AuditStore) ListByEventID(ctx context.Context, eventID uuid.UUID, limit int) ([]queue.AttemptRecord, error) {
	query := `SELECT event_id, tenant_id, object_type, type, worker_id, attempt, outcome, error, duration_ms, timestamp
		FROM operations_event_attempts WHERE event_id = ? ORDER BY timestamp ASC, attempt ASC`
	args := []interface{}{eventID}

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []queue.AttemptRecord
	for rows.Next() {
		var (
			record     queue.AttemptRecord
			objectType string
			eventType  string
			attempt    int32
			durationMs int64
		)
		if err := rows.Scan(
			&record.EventID,
			&record.TenantID,
			&objectType,
			&eventType,
			&record.WorkerID,
			&attempt,
			&record.Outcome,
			&record.Error,
			&durationMs,
			&record.Timestamp,
		); err != nil {
			return nil, err
		}
		record.ObjectType = model.ObjectType(objectType)
		record.Type = model.EventType(eventType)
		record.Attempt = int(attempt)
		record.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, record)
	}

	return records, nil
}

func (s *AuditStore) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the attempt table if it does not exist.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS operations_event_attempts (
		event_id UUID,
		tenant_id UUID,
		object_type LowCardinality(String),
		type LowCardinality(String),
		worker_id LowCardinality(String),
		attempt Int32,
		outcome LowCardinality(String),
		error String Codec(ZSTD),
		duration_ms Int64 Codec(Delta, ZSTD),
		timestamp DateTime64(3),
		created_at DateTime DEFAULT now()
	)
	ENGINE = MergeTree()
	ORDER BY (event_id, timestamp)
	PARTITION BY toYYYYMMDD(created_at)
	TTL created_at + INTERVAL 30 DAY
	`
	return s.conn.Exec(ctx, query)
}
