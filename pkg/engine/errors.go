package engine

import "fmt"

// ErrorKind classifies node execution failures.
type ErrorKind string

const (
	// ErrKindBlockRuntime covers errors returned by a block's Run function,
	// panics recovered from it, and input or output contract violations
	// detected at dispatch time.
	ErrKindBlockRuntime ErrorKind = "block_runtime"
	// ErrKindTimeout marks a node that exceeded the per-node timeout.
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindNestedFailure marks a subgraph or macro node whose nested run
	// did not succeed. The node's result carries the nested report.
	ErrKindNestedFailure ErrorKind = "nested_failure"
)

// ExecutionError is a node-scoped failure. It is recorded in the run report
// and propagated to the node's transitive dependents as a skip; it never
// aborts the run on its own.
type ExecutionError struct {
	NodeID string
	Kind   ErrorKind
	Cause  error
}

func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] node %q failed", e.Kind, e.NodeID)
	}
	return fmt.Sprintf("[%s] node %q: %v", e.Kind, e.NodeID, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates a node-scoped failure of the given kind.
func NewExecutionError(nodeID string, kind ErrorKind, cause error) *ExecutionError {
	return &ExecutionError{NodeID: nodeID, Kind: kind, Cause: cause}
}

// SchedulerError reports an internal consistency failure: a state the
// scheduler's own invariants rule out, such as a cycle surviving validation
// or a node resolving differently between validation and execution. It is
// always fatal for the run and indicates a bug, not a user error.
type SchedulerError struct {
	RunID string
	Err   error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler internal error (run %s): %v", e.RunID, e.Err)
}

func (e *SchedulerError) Unwrap() error {
	return e.Err
}
