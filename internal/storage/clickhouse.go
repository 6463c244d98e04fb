package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// CreateInvocationsTable is applied at startup so a fresh ClickHouse
// database needs no separate migration step.
const CreateInvocationsTable = `
	CREATE TABLE IF NOT EXISTS tool_invocations (
		request_id        String,
		timestamp         DateTime64(3),
		tool_name         LowCardinality(String),
		arguments_preview String,
		arguments_hash    String,
		arguments_size    UInt32,
		result_preview    String,
		status            LowCardinality(String),
		fault_kind        LowCardinality(String),
		error             String,
		latency_ms        Float32,
		client_id         String,
		transport         LowCardinality(String)
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (tool_name, timestamp)
	TTL toDateTime(timestamp) + INTERVAL 90 DAY
`

// ClickHouseWriter writes invocation events to ClickHouse asynchronously.
// Write() is non-blocking: events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *InvocationEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// OpenClickHouse parses dsn, connects and pings.
func OpenClickHouse(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ClickHouse Cloud only accepts TLS on its native port.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// NewClickHouseWriter creates the events table if needed and starts the
// background flush loop.
func NewClickHouseWriter(conn driver.Conn, logger *zap.Logger) (*ClickHouseWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Exec(ctx, CreateInvocationsTable); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *InvocationEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an invocation event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *InvocationEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*InvocationEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*InvocationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO tool_invocations (
			request_id, timestamp, tool_name,
			arguments_preview, arguments_hash, arguments_size,
			result_preview, status, fault_kind, error,
			latency_ms, client_id, transport
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.Timestamp,
			e.ToolName,
			e.ArgumentsPreview,
			e.ArgumentsHash,
			e.ArgumentsSize,
			e.ResultPreview,
			e.Status,
			e.FaultKind,
			e.Error,
			e.LatencyMs,
			e.ClientID,
			e.Transport,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is the default EventWriter when ClickHouse is not configured.
// It logs one structured line per invocation via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *InvocationEvent) {
	fields := []zap.Field{
		zap.String("request_id", event.RequestID),
		zap.String("tool", event.ToolName),
		zap.String("status", event.Status),
		zap.String("arguments", event.ArgumentsPreview),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("transport", event.Transport),
	}
	if event.ClientID != "" {
		fields = append(fields, zap.String("client_id", event.ClientID))
	}

	switch event.Status {
	case StatusOK:
		w.logger.Info("tool_invocation", append(fields, zap.String("result", event.ResultPreview))...)
	case StatusDomainError:
		w.logger.Info("tool_invocation", append(fields, zap.String("error", event.Error))...)
	default:
		w.logger.Warn("tool_invocation", append(fields,
			zap.String("fault_kind", event.FaultKind),
			zap.String("error", event.Error),
		)...)
	}
}

func (w *LogWriter) Close() {}
