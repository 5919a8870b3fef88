package engine

import (
	"time"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
)

// DefaultMaxDepth bounds recursive subgraph and macro nesting.
const DefaultMaxDepth = 32

// Options configures a single run. The zero value is usable: parallelism is
// taken from the environment-aware concurrency config, no deadlines apply,
// and nesting depth is bounded by DefaultMaxDepth.
type Options struct {
	// MaxParallelism caps concurrently running nodes within a level. Zero
	// or negative selects the container-aware default.
	MaxParallelism int

	// RunDeadline bounds the whole run, checked at level boundaries. A run
	// that exceeds it finishes the in-flight level, skips the rest, and
	// reports RunTimedOut. Zero disables the deadline.
	RunDeadline time.Duration

	// NodeTimeout bounds each node execution. A node exceeding it is
	// reported Failed with a timeout error; its goroutine is not killed
	// and may run to completion in the background. Zero disables it.
	NodeTimeout time.Duration

	// MaxDepth bounds subgraph and macro nesting. Zero selects
	// DefaultMaxDepth.
	MaxDepth int
}

func (o Options) normalized() Options {
	if o.MaxParallelism <= 0 {
		o.MaxParallelism = concurrency.LoadConfig().MaxParallelism
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}
