package catalog

import "errors"

// ErrUnknownTool is returned when a name outside the fixed catalog is
// requested. A configuration or programmer error; never retried.
var ErrUnknownTool = errors.New("unknown tool")

// ExecutionError wraps a backing-store failure for a specific tool. The
// failure is surfaced to the immediate caller and not retried by the
// gateway itself.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return "executing " + e.Tool + ": " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
