package policy

import "errors"

// Store is the single access-control entry point. Every component must call
// Enforce before any side-effecting or data-access operation.
type Store interface {
	// IsAllowed reports whether the role may invoke the named tool.
	// Unknown roles and unknown tools are both denied.
	IsAllowed(role, toolName string) bool

	// Enforce returns an error wrapping ErrPermissionDenied when the role
	// may not invoke the tool.
	Enforce(role, toolName string) error

	// Reload re-reads the policy source. The mapping is otherwise
	// read-only for the process lifetime.
	Reload() error
}

// ErrPermissionDenied is returned when a role lacks a tool. Denials fail
// closed and are never retried.
var ErrPermissionDenied = errors.New("permission denied")
