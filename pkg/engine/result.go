package engine

import "time"

// NodeResult records the outcome of one node within a run.
type NodeResult struct {
	NodeID     string         `json:"nodeId"`
	Status     Status         `json:"status"`
	SkipReason SkipReason     `json:"skipReason,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`

	// Err is the structured failure for programmatic inspection. It is not
	// serialized; Error carries the message instead.
	Err error `json:"-"`

	// Nested is the report of the inner run for subgraph and macro nodes.
	Nested *Report `json:"nested,omitempty"`
}

// Report is the full outcome of a run: one result per node plus the overall
// status. It is deterministic for a given graph, inputs, and block behavior.
type Report struct {
	RunID           string                `json:"runId"`
	GraphID         string                `json:"graphId"`
	Status          RunStatus             `json:"status"`
	NodeResults     map[string]NodeResult `json:"nodeResults"`
	LevelsCompleted int                   `json:"levelsCompleted"`
	StartedAt       time.Time             `json:"startedAt"`
	Duration        time.Duration         `json:"duration"`
}

// Failed returns the results of all failed nodes.
func (r *Report) Failed() []NodeResult {
	var out []NodeResult
	for _, nr := range r.NodeResults {
		if nr.Status == StatusFailed {
			out = append(out, nr)
		}
	}
	return out
}

// Result returns the result for a node, if present.
func (r *Report) Result(nodeID string) (NodeResult, bool) {
	nr, ok := r.NodeResults[nodeID]
	return nr, ok
}

// OutputValue returns a graph-level output by binding name, read from the
// bound node's published outputs.
func (r *Report) OutputValue(node, port string) (any, bool) {
	nr, ok := r.NodeResults[node]
	if !ok || nr.Outputs == nil {
		return nil, false
	}
	v, ok := nr.Outputs[port]
	return v, ok
}
