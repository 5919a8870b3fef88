package engine

import (
	"fmt"
	"sync"
)

type outputKey struct {
	node string
	port string
}

// OutputStore holds node output values for one run, keyed by (node, port).
// Each key is written at most once, by the goroutine executing that node;
// readers only observe values published before their level started, so the
// level barrier plus the write lock gives a consistent view without any
// per-value synchronization.
type OutputStore struct {
	mu     sync.RWMutex
	values map[outputKey]any
}

// NewOutputStore creates an empty store.
func NewOutputStore() *OutputStore {
	return &OutputStore{values: make(map[outputKey]any)}
}

// Write publishes a value for a node output port. Writing the same key twice
// is an internal consistency violation and returns an error.
func (s *OutputStore) Write(node, port string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := outputKey{node: node, port: port}
	if _, exists := s.values[k]; exists {
		return fmt.Errorf("output %s.%s written twice", node, port)
	}
	s.values[k] = value
	return nil
}

// Read returns the value published for a node output port, if any.
func (s *OutputStore) Read(node, port string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[outputKey{node: node, port: port}]
	return v, ok
}

// NodeOutputs returns a copy of every published output of one node,
// keyed by port name.
func (s *OutputStore) NodeOutputs(node string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	for k, v := range s.values {
		if k.node == node {
			out[k.port] = v
		}
	}
	return out
}

// statusStore tracks per-node lifecycle state with monotonic transitions.
type statusStore struct {
	mu       sync.Mutex
	statuses map[string]Status
	reasons  map[string]SkipReason
}

func newStatusStore(nodeIDs []string) *statusStore {
	s := &statusStore{
		statuses: make(map[string]Status, len(nodeIDs)),
		reasons:  make(map[string]SkipReason),
	}
	for _, id := range nodeIDs {
		s.statuses[id] = StatusPending
	}
	return s
}

func (s *statusStore) get(node string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[node]
}

func (s *statusStore) skipReason(node string) SkipReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reasons[node]
}

// set transitions a node to the given status. Backward transitions are
// rejected so that a late writer can never overwrite a terminal state.
func (s *statusStore) set(node string, next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.statuses[node]
	if cur.Terminal() || next.rank() <= cur.rank() {
		return fmt.Errorf("invalid status transition for node %q: %s -> %s", node, cur, next)
	}
	s.statuses[node] = next
	return nil
}

// markSkipped moves a node from Pending to Skipped with the given reason.
// Nodes already running or terminal are left untouched.
func (s *statusStore) markSkipped(node string, reason SkipReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[node] != StatusPending {
		return false
	}
	s.statuses[node] = StatusSkipped
	s.reasons[node] = reason
	return true
}

// pending returns the IDs of all nodes still in the Pending state.
func (s *statusStore) pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, st := range s.statuses {
		if st == StatusPending {
			ids = append(ids, id)
		}
	}
	return ids
}

// resultStore collects per-node results as workers finish.
type resultStore struct {
	mu      sync.Mutex
	results map[string]NodeResult
}

func newResultStore() *resultStore {
	return &resultStore{results: make(map[string]NodeResult)}
}

func (s *resultStore) put(r NodeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.NodeID] = r
}

func (s *resultStore) has(node string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.results[node]
	return ok
}

func (s *resultStore) snapshot() map[string]NodeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]NodeResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}
