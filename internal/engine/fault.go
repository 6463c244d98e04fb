package engine

import (
	"errors"
	"net/http"
)

// FaultKind classifies an invocation failure that is not a domain error.
type FaultKind int

const (
	FaultNotFound FaultKind = iota + 1
	FaultInvalidArguments
	FaultInternal
)

// String returns the lowercase kind name (used for event storage).
func (k FaultKind) String() string {
	switch k {
	case FaultNotFound:
		return "not_found"
	case FaultInvalidArguments:
		return "invalid_arguments"
	case FaultInternal:
		return "internal"
	default:
		return "unspecified"
	}
}

// Fault is a transport-level invocation failure. Message is shown to the
// caller verbatim.
type Fault struct {
	Kind    FaultKind
	Message string
}

func (f *Fault) Error() string { return f.Message }

// HTTPStatus maps the fault to a response code. Argument problems are
// reported as 500 like any other fault raised while handling the call.
func (f *Fault) HTTPStatus() int {
	if f.Kind == FaultNotFound {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// AsFault unwraps err to a *Fault. Any other error is treated as internal.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: FaultInternal, Message: err.Error()}
}
