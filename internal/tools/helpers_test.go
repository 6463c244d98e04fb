package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/triage-ai/toolbox/internal/registry"
)

// call validates args against the tool's schema and runs its handler, the
// same path the dispatcher takes.
func call(t *testing.T, group []registry.Tool, name string, args registry.Arguments) registry.Result {
	t.Helper()
	reg, err := registry.New(group)
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}
	tool, ok := reg.Resolve(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	if err := tool.Validate(args); err != nil {
		t.Fatalf("%s: arguments rejected: %v", name, err)
	}
	res, err := tool.Handler(context.Background(), args)
	if err != nil {
		t.Fatalf("%s: handler failed: %v", name, err)
	}
	return res
}

// wire renders a result value as it would appear on the wire.
func wire(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %v: %v", v, err)
	}
	return string(b)
}

func num(s string) json.Number { return json.Number(s) }
