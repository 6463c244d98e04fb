package storage

import "time"

// EventWriter is the interface for writing invocation events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *InvocationEvent)
	Close()
}

// Invocation outcomes recorded in InvocationEvent.Status.
const (
	StatusOK          = "ok"
	StatusDomainError = "domain_error"
	StatusFault       = "fault"
)

// InvocationEvent represents a single tool invocation to be persisted.
type InvocationEvent struct {
	RequestID        string
	Timestamp        time.Time
	ToolName         string
	ArgumentsPreview string // First 500 chars of the JSON arguments
	ArgumentsHash    string // Hex SHA256 of the full JSON arguments
	ArgumentsSize    uint32
	ResultPreview    string // First 500 chars of the JSON result
	Status           string // ok, domain_error or fault
	FaultKind        string
	Error            string
	LatencyMs        float32
	ClientID         string
	Transport        string // "http" or "grpc"
}

// PayloadPreviewLength is the max chars stored in the preview columns.
const PayloadPreviewLength = 500

// TruncatePayload returns the first N characters (runes) of a payload for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePayload(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}

// NopWriter discards events.
type NopWriter struct{}

func (NopWriter) Write(*InvocationEvent) {}
func (NopWriter) Close()                 {}
