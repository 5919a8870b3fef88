package engine

// Status is the lifecycle state of a node within one run. Transitions are
// monotonic: Pending -> Running -> {Succeeded, Failed}, or Pending -> Skipped.
// A node never re-enters an earlier state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// rank orders statuses for the monotonicity check. Terminal states share the
// highest rank; moving between them is still rejected by Terminal().
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return 2
	}
	return -1
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// SkipReason explains why a node was skipped without being dispatched.
type SkipReason string

const (
	// SkipUpstreamFailed marks transitive dependents of a failed node.
	SkipUpstreamFailed SkipReason = "upstream_failed"
	// SkipCancelled marks nodes undispatched when the run was cancelled.
	SkipCancelled SkipReason = "cancelled"
	// SkipTimedOut marks nodes undispatched when the run deadline passed.
	SkipTimedOut SkipReason = "timed_out"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	// RunSucceeded means every node succeeded.
	RunSucceeded RunStatus = "succeeded"
	// RunPartiallyFailed means at least one node failed; independent branches
	// still ran to completion. The caller decides whether this is fatal.
	RunPartiallyFailed RunStatus = "partially_failed"
	// RunCancelled means the run was cancelled at a level boundary.
	RunCancelled RunStatus = "cancelled"
	// RunTimedOut means the run deadline expired at a level boundary.
	RunTimedOut RunStatus = "timed_out"
)
