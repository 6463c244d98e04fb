package registry

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Arguments is the named-argument mapping supplied with an invocation.
// Numbers arrive as json.Number so large integers keep their precision.
type Arguments map[string]any

// Result is the named-result mapping produced by a handler. Domain errors
// are reported as a Result carrying an "error" key.
type Result map[string]any

// Handler computes a tool's result. A returned error is a fault, not a
// domain error: handlers report expected failures inside the Result.
type Handler func(ctx context.Context, args Arguments) (Result, error)

// Schema is a JSON Schema object describing a tool's parameters.
type Schema map[string]any

// Tool is a named, schema-described unit of computation.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler

	compiled *jsonschema.Schema
}

// Descriptor is the public view of a Tool (handler excluded).
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Descriptor returns the listing view of the tool.
func (t *Tool) Descriptor() Descriptor {
	return Descriptor{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// Param declares a single tool parameter.
type Param struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean", "array"
	Description string
	Required    bool
	Items       string // element type for arrays
	Enum        []any
	Nullable    bool // also accept JSON null, read as absent
}

// Params builds an object Schema from parameter declarations. Property
// order in the declaration is not significant; "required" keeps it.
func Params(params ...Param) Schema {
	props := make(map[string]any, len(params))
	required := make([]any, 0, len(params))
	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Nullable {
			prop["type"] = []any{p.Type, "null"}
		}
		if p.Items != "" {
			prop["items"] = map[string]any{"type": p.Items}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := Schema{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
