package api

import (
	"time"

	"github.com/triage-ai/toolbox/internal/chread"
	"github.com/triage-ai/toolbox/internal/registry"
)

// --- GET / ---

// BannerResp identifies the service.
type BannerResp struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// --- POST /mcp/invoke ---

// InvokeReq is the JSON body for POST /mcp/invoke.
type InvokeReq struct {
	Name      string             `json:"name"`
	Arguments registry.Arguments `json:"arguments"`
}

// InvokeResp wraps a successful tool result.
type InvokeResp struct {
	Result registry.Result `json:"result"`
}

// --- Invocation history ---

// InvocationResp is one recorded tool invocation.
type InvocationResp struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	ToolName         string    `json:"tool_name"`
	ArgumentsPreview string    `json:"arguments_preview"`
	ArgumentsHash    string    `json:"arguments_hash"`
	ArgumentsSize    uint32    `json:"arguments_size"`
	ResultPreview    string    `json:"result_preview"`
	Status           string    `json:"status"`
	FaultKind        *string   `json:"fault_kind"`
	Error            *string   `json:"error"`
	LatencyMs        float32   `json:"latency_ms"`
	ClientID         *string   `json:"client_id"`
	Transport        string    `json:"transport"`
}

// InvocationListResp is a page of invocations.
type InvocationListResp struct {
	Invocations []InvocationResp `json:"invocations"`
	Total       int              `json:"total"`
	Page        int              `json:"page"`
	PageSize    int              `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

func invocationRowToResp(e chread.InvocationRow) InvocationResp {
	return InvocationResp{
		RequestID:        e.RequestID,
		Timestamp:        e.Timestamp,
		ToolName:         e.ToolName,
		ArgumentsPreview: e.ArgumentsPreview,
		ArgumentsHash:    e.ArgumentsHash,
		ArgumentsSize:    e.ArgumentsSize,
		ResultPreview:    e.ResultPreview,
		Status:           e.Status,
		FaultKind:        nullable(e.FaultKind),
		Error:            nullable(e.Error),
		LatencyMs:        e.LatencyMs,
		ClientID:         nullable(e.ClientID),
		Transport:        e.Transport,
	}
}

// nullable maps ClickHouse's empty-string defaults to JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
