package registry

import (
	"context"
	"encoding/json"
	"fmt"
)

// Defaulter is implemented by argument structs that carry default values
// for optional parameters. Defaults is called before decoding, so any key
// present in the mapping overrides it.
type Defaulter interface {
	Defaults()
}

// Bind decodes an argument mapping into a per-tool argument struct.
func Bind[T any](args Arguments) (T, error) {
	var v T
	if d, ok := any(&v).(Defaulter); ok {
		d.Defaults()
	}
	if len(args) == 0 {
		return v, nil
	}

	b, err := json.Marshal(map[string]any(args))
	if err != nil {
		return v, fmt.Errorf("Bind: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("Bind: %w", err)
	}
	return v, nil
}

// Typed adapts a handler over a typed argument struct to a Handler.
// Decoding failures surface as faults, matching an untyped handler that
// trips over an argument of the wrong type.
func Typed[T any](fn func(ctx context.Context, args T) (Result, error)) Handler {
	return func(ctx context.Context, args Arguments) (Result, error) {
		v, err := Bind[T](args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, v)
	}
}
