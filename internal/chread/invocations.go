package chread

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse tool_invocations table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader wraps an open ClickHouse connection for read queries. The
// connection is shared with the event writer and owned by the caller.
func NewReader(conn driver.Conn, logger *zap.Logger) *Reader {
	return &Reader{conn: conn, logger: logger}
}

// InvocationRow represents a single row from the tool_invocations table.
type InvocationRow struct {
	RequestID        string
	Timestamp        time.Time
	ToolName         string
	ArgumentsPreview string
	ArgumentsHash    string
	ArgumentsSize    uint32
	ResultPreview    string
	Status           string
	FaultKind        string
	Error            string
	LatencyMs        float32
	ClientID         string
	Transport        string
}

const invocationColumns = "request_id, timestamp, tool_name, arguments_preview, arguments_hash, " +
	"arguments_size, result_preview, status, fault_kind, error, latency_ms, client_id, transport"

func (e *InvocationRow) scanTargets() []any {
	return []any{
		&e.RequestID, &e.Timestamp, &e.ToolName, &e.ArgumentsPreview, &e.ArgumentsHash,
		&e.ArgumentsSize, &e.ResultPreview, &e.Status, &e.FaultKind, &e.Error,
		&e.LatencyMs, &e.ClientID, &e.Transport,
	}
}

// ListInvocationsParams holds filters and pagination for invocation listing.
type ListInvocationsParams struct {
	ToolName  *string
	Status    *string
	ClientID  *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// where builds the filter clause and its named arguments.
func (p ListInvocationsParams) where() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if p.ToolName != nil {
		conditions = append(conditions, "tool_name = @tool_name")
		args = append(args, clickhouse.Named("tool_name", *p.ToolName))
	}
	if p.Status != nil {
		conditions = append(conditions, "status = @status")
		args = append(args, clickhouse.Named("status", *p.Status))
	}
	if p.ClientID != nil {
		conditions = append(conditions, "client_id = @client_id")
		args = append(args, clickhouse.Named("client_id", *p.ClientID))
	}
	if p.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *p.StartTime))
	}
	if p.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *p.EndTime))
	}

	return strings.Join(conditions, " AND "), args
}

// ListInvocations returns paginated, filtered invocations and the total count.
func (r *Reader) ListInvocations(ctx context.Context, params ListInvocationsParams) ([]InvocationRow, int, error) {
	where, args := params.where()
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM tool_invocations WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListInvocations count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM tool_invocations WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		invocationColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListInvocations query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []InvocationRow
	for rows.Next() {
		var e InvocationRow
		if err := rows.Scan(e.scanTargets()...); err != nil {
			return nil, 0, fmt.Errorf("ListInvocations scan: %w", err)
		}
		out = append(out, e)
	}

	return out, int(total), rows.Err()
}

// GetInvocation returns a single invocation by request ID, or nil if not found.
func (r *Reader) GetInvocation(ctx context.Context, requestID string) (*InvocationRow, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT "+invocationColumns+" FROM tool_invocations "+
			"WHERE request_id = @request_id LIMIT 1",
		clickhouse.Named("request_id", requestID),
	)
	if err != nil {
		return nil, fmt.Errorf("GetInvocation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var e InvocationRow
	if err := rows.Scan(e.scanTargets()...); err != nil {
		return nil, fmt.Errorf("GetInvocation scan: %w", err)
	}
	return &e, nil
}

// SummaryStats holds aggregate counts.
type SummaryStats struct {
	Total        int `json:"total"`
	OK           int `json:"ok"`
	DomainErrors int `json:"domain_errors"`
	Faults       int `json:"faults"`
}

// ToolUsage holds per-tool counts and latency.
type ToolUsage struct {
	ToolName     string  `json:"tool_name"`
	Count        int     `json:"count"`
	Faults       int     `json:"faults"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Stats holds all usage aggregations.
type Stats struct {
	Summary             SummaryStats       `json:"summary"`
	TopTools            []ToolUsage        `json:"top_tools"`
	InvocationsOverTime []TimeSeriesBucket `json:"invocations_over_time"`
	LatencyPercentiles  LatencyStats       `json:"latency_percentiles"`
}

// GetStats returns usage statistics over the given number of days.
func (r *Reader) GetStats(ctx context.Context, days int) (*Stats, error) {
	rangeStart := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	since := clickhouse.Named("range_start", rangeStart)

	result := &Stats{}

	var total, ok, domainErrors, faults uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(status = 'ok') as ok, "+
			"countIf(status = 'domain_error') as domain_errors, "+
			"countIf(status = 'fault') as faults "+
			"FROM tool_invocations WHERE timestamp >= @range_start",
		since,
	).Scan(&total, &ok, &domainErrors, &faults)
	if err != nil {
		return nil, fmt.Errorf("GetStats summary: %w", err)
	}
	result.Summary = SummaryStats{
		Total:        int(total),
		OK:           int(ok),
		DomainErrors: int(domainErrors),
		Faults:       int(faults),
	}

	toolRows, err := r.conn.Query(ctx,
		"SELECT tool_name, count() as count, countIf(status = 'fault') as faults, "+
			"avg(latency_ms) as avg_latency "+
			"FROM tool_invocations WHERE timestamp >= @range_start "+
			"GROUP BY tool_name ORDER BY count DESC LIMIT 20",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("GetStats top_tools: %w", err)
	}
	defer func() { _ = toolRows.Close() }()
	for toolRows.Next() {
		var name string
		var count, toolFaults uint64
		var avg float64
		if err := toolRows.Scan(&name, &count, &toolFaults, &avg); err != nil {
			return nil, fmt.Errorf("GetStats top_tools scan: %w", err)
		}
		result.TopTools = append(result.TopTools, ToolUsage{
			ToolName:     name,
			Count:        int(count),
			Faults:       int(toolFaults),
			AvgLatencyMs: safeFloat(avg),
		})
	}

	hourRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM tool_invocations WHERE timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("GetStats invocations_over_time: %w", err)
	}
	defer func() { _ = hourRows.Close() }()
	for hourRows.Next() {
		var hour time.Time
		var count uint64
		if err := hourRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetStats invocations_over_time scan: %w", err)
		}
		result.InvocationsOverTime = append(result.InvocationsOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) as p50, "+
			"quantile(0.95)(latency_ms) as p95, "+
			"quantile(0.99)(latency_ms) as p99 "+
			"FROM tool_invocations WHERE timestamp >= @range_start",
		since,
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetStats latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	if result.TopTools == nil {
		result.TopTools = []ToolUsage{}
	}
	if result.InvocationsOverTime == nil {
		result.InvocationsOverTime = []TimeSeriesBucket{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() and avg() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
