package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ErrDuplicateTool = errors.New("duplicate tool name")
	ErrInvalidTool   = errors.New("invalid tool definition")
)

// Registry is an immutable name -> Tool mapping built once at startup.
// It is safe for concurrent use because nothing mutates it after New.
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
}

// New concatenates the given tool groups in order and compiles every
// parameter schema. A name that appears twice is rejected rather than
// silently shadowing the earlier registration.
func New(groups ...[]Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Tool)}

	for _, group := range groups {
		for i := range group {
			t := group[i]
			if t.Name == "" {
				return nil, fmt.Errorf("%w: empty name", ErrInvalidTool)
			}
			if t.Handler == nil {
				return nil, fmt.Errorf("%w: %s has no handler", ErrInvalidTool, t.Name)
			}
			if _, exists := r.byName[t.Name]; exists {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
			}
			if t.Parameters == nil {
				t.Parameters = Params()
			}

			compiled, err := compileSchema(t.Name, t.Parameters)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTool, t.Name, err)
			}
			t.compiled = compiled

			r.tools = append(r.tools, &t)
			r.byName[t.Name] = &t
		}
	}

	return r, nil
}

// MustNew is New for process startup, where a bad catalog is fatal.
func MustNew(groups ...[]Tool) *Registry {
	r, err := New(groups...)
	if err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	return r
}

// List returns the descriptors of every tool in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Descriptor())
	}
	return out
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (*Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Validate checks args against the tool's parameter schema.
func (t *Tool) Validate(args Arguments) error {
	if t.compiled == nil {
		return nil
	}
	doc, err := Normalize(args)
	if err != nil {
		return err
	}
	if err := t.compiled.Validate(doc); err != nil {
		return errors.New(flattenValidationError(err))
	}
	return nil
}

// Normalize converts args to the plain JSON value shapes the schema
// validator expects (map[string]any, []any, json.Number). A nil mapping
// normalizes to an empty object.
func Normalize(args Arguments) (any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(map[string]any(args))
	if err != nil {
		return nil, fmt.Errorf("arguments are not JSON-encodable: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return doc, nil
}

func compileSchema(name string, schema Schema) (*jsonschema.Schema, error) {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("schema marshal error: %w", err)
	}

	schemaObj, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, fmt.Errorf("schema unmarshal error: %w", err)
	}

	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, schemaObj); err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	return c.Compile(url)
}

// flattenValidationError turns the validator's multi-line report into a
// single line: the header naming the schema URL is dropped.
func flattenValidationError(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	if len(lines) == 1 {
		return lines[0]
	}
	parts := make([]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "- ")
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "; ")
}
