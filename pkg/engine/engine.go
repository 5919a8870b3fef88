// Package engine executes dataflow graphs deterministically: nodes are
// grouped into dependency levels, each level runs in parallel under a
// concurrency limit, and a strict barrier separates levels. Failures skip
// transitive dependents while independent branches continue, and subgraph
// and macro nodes recurse through the same scheduler.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/internal/reporting"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
	"github.com/wehubfusion/Daedalus/pkg/schedule"
)

// Engine schedules and executes graphs. It is stateless across runs and safe
// for concurrent use; all per-run state lives in the run itself.
type Engine struct {
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics MetricsCollector
}

// New creates an engine. A nil logger disables logging.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:  logger,
		tracer:  otel.Tracer("daedalus/engine"),
		metrics: NewMetricsCollector(),
	}
}

// WithMetrics replaces the engine's metrics collector.
func (e *Engine) WithMetrics(collector MetricsCollector) *Engine {
	if collector != nil {
		e.metrics = collector
	}
	return e
}

// Metrics returns a snapshot of engine activity across runs.
func (e *Engine) Metrics() Metrics {
	return e.metrics.GetMetrics()
}

// runState carries everything one run (or one nested run) needs. Nested runs
// share the parent's limiter and deadline but get fresh stores and plans.
type runState struct {
	runID    string
	spec     *graph.GraphSpec
	reg      registry.View
	defs     map[string]registry.ResolvedDefinition
	deps     *schedule.DependencyGraph
	plan     *schedule.LevelPlan
	outputs  *OutputStore
	statuses *statusStore
	results  *resultStore
	inputs   map[string]any
	limiter  *concurrency.Limiter
	opts     Options
	depth    int
	deadline time.Time

	fatal chan error
}

// reportFatal records the first internal consistency failure of the run.
// Later calls are dropped; the coordinator aborts at the next barrier.
func (rs *runState) reportFatal(err error) {
	select {
	case rs.fatal <- err:
	default:
	}
}

func (rs *runState) fatalErr() error {
	select {
	case err := <-rs.fatal:
		return err
	default:
		return nil
	}
}

// Execute validates and runs a graph, returning the run report. Per-node
// failures do not produce an error here; they are carried in the report with
// status RunPartiallyFailed. A non-nil error means the run did not produce a
// meaningful report: validation failed, or the scheduler hit an internal
// consistency violation.
func (e *Engine) Execute(ctx context.Context, spec *graph.GraphSpec, reg registry.View, inputs map[string]any, opts Options) (*Report, error) {
	if spec == nil {
		return nil, fmt.Errorf("graph spec is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	opts = opts.normalized()

	if err := Validate(spec, reg, opts.MaxDepth); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	var deadline time.Time
	if opts.RunDeadline > 0 {
		deadline = time.Now().Add(opts.RunDeadline)
	}

	rs := &runState{
		runID:    runID,
		spec:     spec,
		reg:      reg,
		inputs:   inputs,
		limiter:  concurrency.NewLimiter(opts.MaxParallelism),
		opts:     opts,
		deadline: deadline,
		fatal:    make(chan error, 1),
	}

	e.logger.Info("starting run",
		zap.String("run_id", runID),
		zap.String("graph_id", spec.ID),
		zap.Int("nodes", len(spec.Nodes)),
		zap.Int("max_parallelism", opts.MaxParallelism))

	report, err := e.run(ctx, rs)
	if err != nil {
		reporting.CaptureInternalError(err, runID)
		e.logger.Error("run aborted",
			zap.String("run_id", runID),
			zap.String("graph_id", spec.ID),
			zap.Error(err))
		return nil, err
	}

	e.metrics.RecordRunCompleted()
	e.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("graph_id", spec.ID),
		zap.String("status", string(report.Status)),
		zap.Int("levels_completed", report.LevelsCompleted),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// run executes one graph at one nesting depth. It is also the entry point
// for nested subgraph and macro runs, which arrive with a pre-populated
// runState sharing the parent's limiter.
func (e *Engine) run(ctx context.Context, rs *runState) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "engine.run",
		trace.WithAttributes(
			attribute.String("run.id", rs.runID),
			attribute.String("graph.id", rs.spec.ID),
			attribute.Int("graph.depth", rs.depth),
		))
	defer span.End()

	started := time.Now()

	defs := make(map[string]registry.ResolvedDefinition, len(rs.spec.Nodes))
	for _, node := range rs.spec.Nodes {
		def, err := rs.reg.Resolve(node)
		if err != nil {
			// Validation already resolved every node; a miss here means the
			// registry changed underneath the run.
			return nil, &SchedulerError{RunID: rs.runID, Err: fmt.Errorf("node %q: %w", node.ID, err)}
		}
		defs[node.ID] = def
	}
	rs.defs = defs

	rs.deps = schedule.BuildDependencies(rs.spec)
	plan, err := schedule.BuildLevels(rs.deps)
	if err != nil {
		return nil, &SchedulerError{RunID: rs.runID, Err: err}
	}
	rs.plan = plan
	rs.outputs = NewOutputStore()
	rs.statuses = newStatusStore(rs.deps.Nodes())
	rs.results = newResultStore()

	var interrupted RunStatus
	levelsCompleted := 0

	for i, level := range plan.Levels {
		if ctx.Err() != nil {
			interrupted = RunCancelled
			break
		}
		if !rs.deadline.IsZero() && time.Now().After(rs.deadline) {
			interrupted = RunTimedOut
			break
		}

		e.executeLevel(ctx, rs, i, level)
		levelsCompleted++

		if err := rs.fatalErr(); err != nil {
			return nil, &SchedulerError{RunID: rs.runID, Err: err}
		}
	}

	if interrupted == "" && ctx.Err() != nil && len(rs.statuses.pending()) > 0 {
		// Cancelled during the final level with nodes left undispatched
		// (their limiter acquire was cut short). If instead every node
		// reached a terminal state, the run is complete and reports its
		// true outcome.
		interrupted = RunCancelled
	}
	if interrupted != "" {
		reason := SkipCancelled
		if interrupted == RunTimedOut {
			reason = SkipTimedOut
		}
		for _, id := range rs.statuses.pending() {
			rs.statuses.markSkipped(id, reason)
		}
		span.SetStatus(codes.Error, string(interrupted))
	}

	report := e.buildReport(rs, interrupted, started, levelsCompleted)
	span.SetAttributes(attribute.String("run.status", string(report.Status)))
	return report, nil
}

// executeLevel dispatches every runnable node of one level, waits for all of
// them, then propagates failures: transitive dependents of each failed node
// are skipped before the next level starts.
func (e *Engine) executeLevel(ctx context.Context, rs *runState, index int, level []string) {
	ctx, span := e.tracer.Start(ctx, "engine.level",
		trace.WithAttributes(
			attribute.Int("level.index", index),
			attribute.Int("level.size", len(level)),
		))
	defer span.End()

	var wg sync.WaitGroup
	for _, id := range level {
		if rs.statuses.get(id) != StatusPending {
			continue
		}
		node := rs.spec.Node(id)
		if node == nil {
			rs.reportFatal(fmt.Errorf("scheduled node %q not present in graph %q", id, rs.spec.ID))
			continue
		}

		wg.Add(1)
		go func(node *graph.NodeSpec) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					reporting.CapturePanic(r, rs.runID, node.ID)
					e.recordFailure(rs, node.ID, NewExecutionError(node.ID, ErrKindBlockRuntime,
						fmt.Errorf("panic: %v", r)), 0, nil)
				}
			}()

			if err := rs.limiter.Acquire(ctx); err != nil {
				// Cancelled while waiting for a slot. The node stays Pending
				// and is skipped when the coordinator observes cancellation.
				return
			}
			defer rs.limiter.Release()

			e.executeNode(ctx, rs, node)
		}(node)
	}
	wg.Wait()

	for _, id := range level {
		if rs.statuses.get(id) != StatusFailed {
			continue
		}
		for _, dep := range rs.deps.TransitiveDependents(id) {
			if rs.statuses.markSkipped(dep, SkipUpstreamFailed) {
				e.metrics.RecordNodeSkipped()
				e.logger.Debug("skipping dependent of failed node",
					zap.String("run_id", rs.runID),
					zap.String("node_id", dep),
					zap.String("failed_upstream", id))
			}
		}
	}
}

// buildReport assembles the final report from the run's stores. Nodes
// without a recorded result (skipped, or never dispatched) get a synthetic
// entry from their status.
func (e *Engine) buildReport(rs *runState, interrupted RunStatus, started time.Time, levelsCompleted int) *Report {
	results := rs.results.snapshot()
	anyFailed := false
	for _, node := range rs.spec.Nodes {
		if nr, ok := results[node.ID]; ok {
			if nr.Status == StatusFailed {
				anyFailed = true
			}
			continue
		}
		results[node.ID] = NodeResult{
			NodeID:     node.ID,
			Status:     rs.statuses.get(node.ID),
			SkipReason: rs.statuses.skipReason(node.ID),
		}
	}

	status := RunSucceeded
	switch {
	case interrupted != "":
		status = interrupted
	case anyFailed:
		status = RunPartiallyFailed
	}

	return &Report{
		RunID:           rs.runID,
		GraphID:         rs.spec.ID,
		Status:          status,
		NodeResults:     results,
		LevelsCompleted: levelsCompleted,
		StartedAt:       started,
		Duration:        time.Since(started),
	}
}
