package chread

import (
	"math"
	"testing"
	"time"
)

func TestListInvocationsParams_Where(t *testing.T) {
	tool := "md5_hash"
	status := "fault"
	client := "c-1"
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		params   ListInvocationsParams
		want     string
		wantArgs int
	}{
		{"no filters", ListInvocationsParams{}, "1 = 1", 0},
		{"tool only", ListInvocationsParams{ToolName: &tool}, "1 = 1 AND tool_name = @tool_name", 1},
		{
			"all filters",
			ListInvocationsParams{ToolName: &tool, Status: &status, ClientID: &client, StartTime: &start, EndTime: &start},
			"1 = 1 AND tool_name = @tool_name AND status = @status AND client_id = @client_id AND timestamp >= @start_time AND timestamp <= @end_time",
			5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args := tt.params.where()
			if got != tt.want {
				t.Errorf("where() = %q, want %q", got, tt.want)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("expected %d args, got %d", tt.wantArgs, len(args))
			}
		})
	}
}

func TestSafeFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.5, 1.5},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		if got := safeFloat(tt.in); got != tt.want {
			t.Errorf("safeFloat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInvocationRow_ScanTargetsMatchColumns(t *testing.T) {
	var row InvocationRow
	cols := 1
	for _, c := range invocationColumns {
		if c == ',' {
			cols++
		}
	}
	if got := len(row.scanTargets()); got != cols {
		t.Errorf("scan targets (%d) do not match selected columns (%d)", got, cols)
	}
}
