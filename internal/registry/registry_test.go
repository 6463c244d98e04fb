package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func echoHandler(_ context.Context, args Arguments) (Result, error) {
	return Result{"args": args}, nil
}

func textTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echo " + name,
		Parameters: Params(
			Param{Name: "text", Type: "string", Description: "input", Required: true},
		),
		Handler: echoHandler,
	}
}

func TestNew_KeepsGroupOrder(t *testing.T) {
	reg, err := New(
		[]Tool{textTool("b_first"), textTool("a_second")},
		[]Tool{textTool("c_third")},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	list := reg.List()
	want := []string{"b_first", "a_second", "c_third"}
	if len(list) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(list))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, list[i].Name)
		}
	}
	if reg.Len() != 3 {
		t.Errorf("expected Len 3, got %d", reg.Len())
	}
}

func TestNew_RejectsDuplicateAcrossGroups(t *testing.T) {
	_, err := New(
		[]Tool{textTool("md5_hash")},
		[]Tool{textTool("md5_hash")},
	)
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "md5_hash") {
		t.Errorf("error should name the tool, got %q", err.Error())
	}
}

func TestNew_RejectsInvalidTools(t *testing.T) {
	tests := []struct {
		name string
		tool Tool
	}{
		{"empty name", Tool{Handler: echoHandler}},
		{"nil handler", Tool{Name: "nothing"}},
		{"bad schema", Tool{Name: "bad", Handler: echoHandler, Parameters: Schema{"type": 42}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Tool{tt.tool})
			if !errors.Is(err, ErrInvalidTool) {
				t.Errorf("expected ErrInvalidTool, got %v", err)
			}
		})
	}
}

func TestMustNew_PanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustNew([]Tool{textTool("x"), textTool("x")})
}

func TestResolve(t *testing.T) {
	reg := MustNew([]Tool{textTool("only")})

	if _, ok := reg.Resolve("only"); !ok {
		t.Error("expected to resolve registered tool")
	}
	if _, ok := reg.Resolve("nope"); ok {
		t.Error("expected unknown tool to be missing")
	}
}

func TestList_ExcludesHandler(t *testing.T) {
	reg := MustNew([]Tool{textTool("only")})

	b, err := json.Marshal(reg.List())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(decoded))
	}
	for _, key := range []string{"name", "description", "parameters"} {
		if _, ok := decoded[0][key]; !ok {
			t.Errorf("descriptor missing %q", key)
		}
	}
	if len(decoded[0]) != 3 {
		t.Errorf("expected exactly 3 keys, got %v", decoded[0])
	}
}

func TestValidate(t *testing.T) {
	reg := MustNew([]Tool{
		textTool("text_tool"),
		{
			Name:    "ip_tool",
			Handler: echoHandler,
			Parameters: Params(
				Param{Name: "number", Type: "integer", Required: true},
				Param{Name: "version", Type: "integer", Enum: []any{4, 6}},
				Param{Name: "parts", Type: "array", Items: "string"},
			),
		},
	})
	text, _ := reg.Resolve("text_tool")
	ip, _ := reg.Resolve("ip_tool")

	tests := []struct {
		name    string
		tool    *Tool
		args    Arguments
		wantErr bool
	}{
		{"valid text", text, Arguments{"text": "hello"}, false},
		{"missing required", text, Arguments{}, true},
		{"nil args missing required", text, nil, true},
		{"wrong type", text, Arguments{"text": 12}, true},
		{"extra keys allowed", text, Arguments{"text": "a", "other": 1}, false},
		{"integer from json.Number", ip, Arguments{"number": json.Number("42")}, false},
		{"huge integer", ip, Arguments{"number": json.Number("42540766411282592856903984951653826561")}, false},
		{"float for integer", ip, Arguments{"number": 1.5}, true},
		{"enum ok", ip, Arguments{"number": 1, "version": 6}, false},
		{"enum violated", ip, Arguments{"number": 1, "version": 5}, true},
		{"array items ok", ip, Arguments{"number": 1, "parts": []any{"a", "b"}}, false},
		{"array items wrong", ip, Arguments{"number": 1, "parts": []any{"a", 2}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tool.Validate(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if err != nil && strings.Contains(err.Error(), "\n") {
				t.Errorf("expected single-line error, got %q", err.Error())
			}
		})
	}
}
