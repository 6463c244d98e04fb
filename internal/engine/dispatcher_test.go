package engine

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/triage-ai/toolbox/internal/registry"
	"github.com/triage-ai/toolbox/internal/storage"
	"github.com/triage-ai/toolbox/internal/tools"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []*storage.InvocationEvent
}

func (w *recordingWriter) Write(e *storage.InvocationEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
}

func (w *recordingWriter) Close() {}

func (w *recordingWriter) last(t *testing.T) *storage.InvocationEvent {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.events) == 0 {
		t.Fatal("no event recorded")
	}
	return w.events[len(w.events)-1]
}

type panickingWriter struct{}

func (panickingWriter) Write(*storage.InvocationEvent) { panic("writer exploded") }
func (panickingWriter) Close()                         {}

func testTools() []registry.Tool {
	text := registry.Params(registry.Param{Name: "text", Type: "string", Required: true})
	return []registry.Tool{
		{
			Name:       "echo",
			Parameters: text,
			Handler: func(_ context.Context, args registry.Arguments) (registry.Result, error) {
				return registry.Result{"echo": args["text"]}, nil
			},
		},
		{
			Name: "domain_error",
			Handler: func(context.Context, registry.Arguments) (registry.Result, error) {
				return registry.Result{"error": "Total cannot be zero"}, nil
			},
		},
		{
			Name: "boom",
			Handler: func(context.Context, registry.Arguments) (registry.Result, error) {
				panic("something broke")
			},
		},
		{
			Name: "fails",
			Handler: func(context.Context, registry.Arguments) (registry.Result, error) {
				return nil, errors.New("division by zero")
			},
		},
		{
			Name: "slow",
			Handler: func(ctx context.Context, _ registry.Arguments) (registry.Result, error) {
				select {
				case <-time.After(time.Second):
					return registry.Result{"done": true}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
		{
			Name: "not_json",
			Handler: func(context.Context, registry.Arguments) (registry.Result, error) {
				return registry.Result{"value": math.Inf(1)}, nil
			},
		},
		{
			Name: "nil_result",
			Handler: func(context.Context, registry.Arguments) (registry.Result, error) {
				return nil, nil
			},
		},
	}
}

func newTestDispatcher(w storage.EventWriter) *Dispatcher {
	return NewDispatcher(registry.MustNew(testTools()), w, 50*time.Millisecond, zap.NewNop())
}

func TestInvoke_Success(t *testing.T) {
	w := &recordingWriter{}
	d := newTestDispatcher(w)

	res, err := d.Invoke(context.Background(), "echo", registry.Arguments{"text": "hi"}, Meta{Transport: "http", ClientID: "c1"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res["echo"] != "hi" {
		t.Errorf("unexpected result %v", res)
	}

	ev := w.last(t)
	if ev.Status != storage.StatusOK || ev.ToolName != "echo" || ev.Transport != "http" || ev.ClientID != "c1" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.RequestID == "" {
		t.Error("expected generated request id")
	}
	if ev.ArgumentsPreview != `{"text":"hi"}` || ev.ResultPreview != `{"echo":"hi"}` {
		t.Errorf("unexpected previews %q / %q", ev.ArgumentsPreview, ev.ResultPreview)
	}
	if len(ev.ArgumentsHash) != 64 {
		t.Errorf("expected hex sha256, got %q", ev.ArgumentsHash)
	}
}

func TestInvoke_KeepsRequestID(t *testing.T) {
	w := &recordingWriter{}
	d := newTestDispatcher(w)

	d.Invoke(context.Background(), "echo", registry.Arguments{"text": "x"}, Meta{RequestID: "req-1"})
	if got := w.last(t).RequestID; got != "req-1" {
		t.Errorf("expected req-1, got %s", got)
	}
}

func TestInvoke_DomainErrorIsSuccess(t *testing.T) {
	w := &recordingWriter{}
	d := newTestDispatcher(w)

	res, err := d.Invoke(context.Background(), "domain_error", nil, Meta{})
	if err != nil {
		t.Fatalf("domain errors must not be faults: %v", err)
	}
	if res["error"] != "Total cannot be zero" {
		t.Errorf("unexpected result %v", res)
	}
	if ev := w.last(t); ev.Status != storage.StatusDomainError || ev.Error != "Total cannot be zero" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestInvoke_Faults(t *testing.T) {
	tests := []struct {
		name       string
		tool       string
		args       registry.Arguments
		wantKind   FaultKind
		wantStatus int
		wantMsg    string
	}{
		{"unknown tool", "nope", nil, FaultNotFound, http.StatusNotFound, "Tool 'nope' not found"},
		{"missing argument", "echo", registry.Arguments{}, FaultInvalidArguments, http.StatusInternalServerError, "Invalid arguments for tool 'echo'"},
		{"wrong type", "echo", registry.Arguments{"text": 5}, FaultInvalidArguments, http.StatusInternalServerError, "Invalid arguments for tool 'echo'"},
		{"panic", "boom", nil, FaultInternal, http.StatusInternalServerError, "something broke"},
		{"returned error", "fails", nil, FaultInternal, http.StatusInternalServerError, "division by zero"},
		{"timeout", "slow", nil, FaultInternal, http.StatusInternalServerError, "Tool 'slow' timed out after 50ms"},
		{"unencodable result", "not_json", nil, FaultInternal, http.StatusInternalServerError, "unsupported value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recordingWriter{}
			d := newTestDispatcher(w)

			res, err := d.Invoke(context.Background(), tt.tool, tt.args, Meta{})
			if res != nil {
				t.Errorf("expected nil result on fault, got %v", res)
			}
			var f *Fault
			if !errors.As(err, &f) {
				t.Fatalf("expected *Fault, got %v", err)
			}
			if f.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, f.Kind)
			}
			if f.HTTPStatus() != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, f.HTTPStatus())
			}
			if !strings.Contains(f.Message, tt.wantMsg) {
				t.Errorf("expected message containing %q, got %q", tt.wantMsg, f.Message)
			}

			ev := w.last(t)
			if ev.Status != storage.StatusFault || ev.FaultKind != tt.wantKind.String() {
				t.Errorf("unexpected event %+v", ev)
			}
		})
	}
}

func TestInvoke_ExactNotFoundMessage(t *testing.T) {
	d := newTestDispatcher(nil)
	_, err := d.Invoke(context.Background(), "nope", nil, Meta{})
	if err == nil || err.Error() != "Tool 'nope' not found" {
		t.Errorf("expected exact not-found message, got %v", err)
	}
}

func TestInvoke_NilResultIsEmptyMapping(t *testing.T) {
	d := newTestDispatcher(nil)
	res, err := d.Invoke(context.Background(), "nil_result", nil, Meta{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res == nil || len(res) != 0 {
		t.Errorf("expected empty result, got %v", res)
	}
}

func TestInvoke_PanickingWriterDoesNotAffectResponse(t *testing.T) {
	d := newTestDispatcher(panickingWriter{})
	res, err := d.Invoke(context.Background(), "echo", registry.Arguments{"text": "ok"}, Meta{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res["echo"] != "ok" {
		t.Errorf("unexpected result %v", res)
	}
}

func TestInvoke_CancelledContext(t *testing.T) {
	d := newTestDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Invoke(ctx, "slow", nil, Meta{})
	if f := AsFault(err); f == nil || f.Kind != FaultInternal {
		t.Errorf("expected internal fault, got %v", err)
	}
}

func TestInvoke_ConcurrentCalls(t *testing.T) {
	d := NewDispatcher(registry.MustNew(tools.Catalog(nil)...), nil, time.Second, zap.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Invoke(context.Background(), "sha256_hash", registry.Arguments{"text": "hello"}, Meta{})
			if err != nil {
				errs <- err
				return
			}
			if res["hash"] != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
				errs <- errors.New("wrong hash")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestInvoke_ToolScenarios(t *testing.T) {
	d := NewDispatcher(registry.MustNew(tools.Catalog(nil)...), nil, time.Second, zap.NewNop())

	res, err := d.Invoke(context.Background(), "calculate_percentage", registry.Arguments{"value": 50, "total": 200}, Meta{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res["percentage"] != tools.Float(25) {
		t.Errorf("expected 25.0, got %v", res["percentage"])
	}

	if _, err := d.Invoke(context.Background(), "calculate_factorial", registry.Arguments{"number": "five"}, Meta{}); AsFault(err).Kind != FaultInvalidArguments {
		t.Errorf("expected invalid arguments fault, got %v", err)
	}
}

func TestInvoke_LogsInvocationSummary(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := NewDispatcher(registry.MustNew(testTools()), nil, time.Second, zap.New(core))

	if _, err := d.Invoke(context.Background(), "echo", registry.Arguments{"text": "hi"}, Meta{RequestID: "req-1"}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	entries := logs.FilterMessage("tool invoked").All()
	if len(entries) != 1 {
		t.Fatalf("expected one summary line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tool"] != "echo" || fields["request_id"] != "req-1" || fields["status"] != storage.StatusOK {
		t.Errorf("unexpected fields %v", fields)
	}
	if fields["arguments"] != `{"text":"hi"}` || fields["result"] != `{"echo":"hi"}` {
		t.Errorf("expected argument and result previews, got %v", fields)
	}
}

// stalledResolver blocks every query until the context ends.
type stalledResolver struct{}

func (stalledResolver) LookupIP(ctx context.Context, _, _ string) ([]net.IP, error) {
	<-ctx.Done()
	return nil, &net.DNSError{Err: ctx.Err().Error(), IsTimeout: true}
}

func (stalledResolver) LookupAddr(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, &net.DNSError{Err: ctx.Err().Error(), IsTimeout: true}
}

func TestInvoke_DNSTimeoutIsDomainError(t *testing.T) {
	w := &recordingWriter{}
	d := NewDispatcher(registry.MustNew(tools.Network(stalledResolver{})), w, 100*time.Millisecond, zap.NewNop())

	tests := []struct {
		tool string
		args registry.Arguments
	}{
		{"dns_lookup", registry.Arguments{"hostname": "slow.example"}},
		{"reverse_dns", registry.Arguments{"ip": "192.0.2.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			res, err := d.Invoke(context.Background(), tt.tool, tt.args, Meta{})
			if err != nil {
				t.Fatalf("resolver timeout must not be a fault, got %v", err)
			}
			if res["error"] != "[Errno -3] Temporary failure in name resolution" {
				t.Errorf("unexpected result %v", res)
			}
			if ev := w.last(t); ev.Status != storage.StatusDomainError {
				t.Errorf("expected domain_error event, got %s", ev.Status)
			}
		})
	}
}

func TestAsFault(t *testing.T) {
	if AsFault(nil) != nil {
		t.Error("nil error should give nil fault")
	}
	f := AsFault(errors.New("plain"))
	if f.Kind != FaultInternal || f.Message != "plain" {
		t.Errorf("unexpected fault %+v", f)
	}
	orig := &Fault{Kind: FaultNotFound, Message: "x"}
	if AsFault(orig) != orig {
		t.Error("expected the same fault back")
	}
}
