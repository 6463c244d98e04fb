package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/toolbox/internal/registry"
	"github.com/triage-ai/toolbox/internal/storage"
)

// DefaultTimeout bounds a single handler run when none is configured.
const DefaultTimeout = 5 * time.Second

// Meta describes the caller of an invocation, for event records.
type Meta struct {
	RequestID string
	ClientID  string
	Transport string
}

// Dispatcher resolves tool names against a registry and runs handlers.
// It holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	writer   storage.EventWriter
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil writer discards events; a
// non-positive timeout uses DefaultTimeout.
func NewDispatcher(reg *registry.Registry, writer storage.EventWriter, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if writer == nil {
		writer = storage.NopWriter{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		registry: reg,
		writer:   writer,
		timeout:  timeout,
		logger:   logger,
	}
}

// List returns the descriptors of every registered tool in order.
func (d *Dispatcher) List() []registry.Descriptor {
	return d.registry.List()
}

// outcome holds a handler's return values, or the value it panicked with.
type outcome struct {
	result   registry.Result
	err      error
	panicked any
}

// Invoke runs the named tool. The returned error, when non-nil, is always
// a *Fault. Domain errors come back as a Result carrying "error".
func (d *Dispatcher) Invoke(ctx context.Context, name string, args registry.Arguments, meta Meta) (registry.Result, error) {
	start := time.Now()
	if meta.RequestID == "" {
		meta.RequestID = uuid.New().String()
	}

	result, encoded, fault := d.invoke(ctx, name, args)

	d.writeInvocationEvent(name, args, meta, encoded, result, fault, time.Since(start))

	if fault != nil {
		return nil, fault
	}
	return result, nil
}

func (d *Dispatcher) invoke(ctx context.Context, name string, args registry.Arguments) (registry.Result, []byte, *Fault) {
	tool, ok := d.registry.Resolve(name)
	if !ok {
		return nil, nil, &Fault{Kind: FaultNotFound, Message: fmt.Sprintf("Tool '%s' not found", name)}
	}

	if err := tool.Validate(args); err != nil {
		return nil, nil, &Fault{
			Kind:    FaultInvalidArguments,
			Message: fmt.Sprintf("Invalid arguments for tool '%s': %v", name, err),
		}
	}

	result, fault := d.run(ctx, tool, args)
	if fault != nil {
		return nil, nil, fault
	}

	// A result that cannot be serialized would otherwise fail after the
	// status line is written.
	encoded, err := json.Marshal(result)
	if err != nil {
		var me *json.MarshalerError
		if errors.As(err, &me) {
			err = me.Unwrap()
		}
		return nil, nil, &Fault{Kind: FaultInternal, Message: err.Error()}
	}
	return result, encoded, nil
}

// run calls the handler in its own goroutine so a deadline can cut it off.
// The channel is buffered, so a handler that finishes after the deadline
// never blocks.
func (d *Dispatcher) run(ctx context.Context, tool *registry.Tool, args registry.Arguments) (registry.Result, *Fault) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{panicked: r}
			}
		}()
		res, err := tool.Handler(ctx, args)
		ch <- outcome{result: res, err: err}
	}()

	select {
	case out := <-ch:
		switch {
		case out.panicked != nil:
			d.logger.Error("tool handler panicked",
				zap.String("tool", tool.Name),
				zap.Any("panic", out.panicked),
			)
			return nil, &Fault{Kind: FaultInternal, Message: fmt.Sprint(out.panicked)}
		case out.err != nil:
			return nil, &Fault{Kind: FaultInternal, Message: out.err.Error()}
		case out.result == nil:
			return registry.Result{}, nil
		}
		return out.result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			d.logger.Warn("tool handler timeout exceeded",
				zap.String("tool", tool.Name),
				zap.Duration("timeout", d.timeout),
			)
			return nil, &Fault{Kind: FaultInternal, Message: fmt.Sprintf("Tool '%s' timed out after %s", tool.Name, d.timeout)}
		}
		return nil, &Fault{Kind: FaultInternal, Message: "request cancelled"}
	}
}

// writeInvocationEvent builds an InvocationEvent and hands it to the
// writer. A misbehaving writer is logged and otherwise ignored.
func (d *Dispatcher) writeInvocationEvent(
	name string,
	args registry.Arguments,
	meta Meta,
	encoded []byte,
	result registry.Result,
	fault *Fault,
	latency time.Duration,
) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event writer panicked", zap.Any("panic", r))
		}
	}()

	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte(fmt.Sprintf("%v", args))
	}
	hash := sha256.Sum256(argsJSON)

	event := &storage.InvocationEvent{
		RequestID:        meta.RequestID,
		Timestamp:        time.Now(),
		ToolName:         name,
		ArgumentsPreview: storage.TruncatePayload(string(argsJSON), storage.PayloadPreviewLength),
		ArgumentsHash:    hex.EncodeToString(hash[:]),
		ArgumentsSize:    uint32(len(argsJSON)),
		ResultPreview:    storage.TruncatePayload(string(encoded), storage.PayloadPreviewLength),
		Status:           storage.StatusOK,
		LatencyMs:        float32(float64(latency) / float64(time.Millisecond)),
		ClientID:         meta.ClientID,
		Transport:        meta.Transport,
	}

	switch {
	case fault != nil:
		event.Status = storage.StatusFault
		event.FaultKind = fault.Kind.String()
		event.Error = fault.Message
	case result["error"] != nil:
		event.Status = storage.StatusDomainError
		event.Error = fmt.Sprint(result["error"])
	}

	d.logger.Debug("tool invoked",
		zap.String("request_id", event.RequestID),
		zap.String("tool", name),
		zap.String("status", event.Status),
		zap.String("arguments", event.ArgumentsPreview),
		zap.String("result", event.ResultPreview),
		zap.String("error", event.Error),
		zap.Duration("latency", latency),
	)

	d.writer.Write(event)
}
