// Package models holds the data types shared across the gateway: the
// prompt graph, execution statistics, and the typed error the core uses
// to surface validation/IO/dispatch/execution/delivery failures.
package models

import "fmt"

// Node is one vertex of a Prompt graph. Inputs are heterogeneous: a scalar
// value or a [nodeId, outputIndex] edge pair (decoded as []any{string,
// float64} by encoding/json). Only a small closed set of ClassType values
// are inspected by the preprocessor; everything else passes through
// opaquely.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Prompt is the declarative computation graph submitted by a caller,
// keyed by string node id.
type Prompt map[string]Node

// Clone returns a deep-enough copy for preprocessing: node maps are
// copied so that input rewrites never mutate the caller's original value
// in place while sibling goroutines are still reading it.
func (p Prompt) Clone() Prompt {
	out := make(Prompt, len(p))
	for id, n := range p {
		inputs := make(map[string]any, len(n.Inputs))
		for k, v := range n.Inputs {
			inputs[k] = v
		}
		out[id] = Node{ClassType: n.ClassType, Inputs: inputs, Meta: n.Meta}
	}
	return out
}

// StringInput returns the named input as a string, reporting ok=false if
// the key is absent or not a string.
func (n Node) StringInput(key string) (string, bool) {
	v, found := n.Inputs[key]
	if !found {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// BoolInput returns the named input as a bool, reporting ok=false if the
// key is absent or not a bool.
func (n Node) BoolInput(key string) (bool, bool) {
	v, found := n.Inputs[key]
	if !found {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// IsEdge reports whether an input value is a [nodeId, outputIndex] edge
// reference rather than a scalar.
func IsEdge(v any) bool {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return false
	}
	_, idOK := arr[0].(string)
	return idOK
}

// NodeStats tracks the wall-clock window the Engine reported executing a
// single node.
type NodeStats struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// ExecutionStats accumulates timing for one prompt's full lifecycle.
// TotalMs is filled in last and is expected to be >= the sum of the phase
// fields (see spec §8, "Stats additivity").
type ExecutionStats struct {
	Start          int64                `json:"start"`
	End            int64                `json:"end,omitempty"`
	Duration       int64                `json:"duration,omitempty"`
	QueuedAt       int64                `json:"queued_at,omitempty"`
	DispatchedAt   int64                `json:"dispatched_at,omitempty"`
	PerNode        map[string]NodeStats `json:"per_node,omitempty"`
	PreprocessMs   int64                `json:"preprocess_ms"`
	EngineMs       int64                `json:"engine_ms"`
	PostprocessMs  int64                `json:"postprocess_ms"`
	UploadMs       int64                `json:"upload_ms"`
	TotalMs        int64                `json:"total_ms"`
}

// GatewayError is the typed error the HTTP surface inspects to choose a
// status code. Code is one of the error kinds from spec §7; Location is a
// JSON-pointer to the offending node/input when applicable.
type GatewayError struct {
	Code     string
	Location string
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Location)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewValidationError builds a GatewayError with code "validation".
func NewValidationError(location, message string, err error) *GatewayError {
	return &GatewayError{Code: "validation", Location: location, Message: message, Err: err}
}

// NewPreprocessError builds a GatewayError with code "preprocess_io".
func NewPreprocessError(location, message string, err error) *GatewayError {
	return &GatewayError{Code: "preprocess_io", Location: location, Message: message, Err: err}
}

// NewDispatchError builds a GatewayError with code "dispatch_failed".
func NewDispatchError(message string, err error) *GatewayError {
	return &GatewayError{Code: "dispatch_failed", Message: message, Err: err}
}

// NewExecutionError builds a GatewayError with code "execution_failed".
func NewExecutionError(message string, err error) *GatewayError {
	return &GatewayError{Code: "execution_failed", Message: message, Err: err}
}

// NewDeliveryError builds a GatewayError with code "delivery_failed".
func NewDeliveryError(message string, err error) *GatewayError {
	return &GatewayError{Code: "delivery_failed", Message: message, Err: err}
}
