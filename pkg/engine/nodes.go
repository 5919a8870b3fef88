package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/internal/reporting"
	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

// executeNode runs one node to a terminal state: it gathers inputs, dispatches
// on the resolved kind, publishes outputs, and records the result.
func (e *Engine) executeNode(ctx context.Context, rs *runState, node *graph.NodeSpec) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.node",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.kind", string(node.Kind)),
			attribute.String("node.ref", node.Ref),
		))
	defer span.End()

	if err := rs.statuses.set(node.ID, StatusRunning); err != nil {
		rs.reportFatal(err)
		return
	}
	e.logger.Debug("executing node",
		zap.String("run_id", rs.runID),
		zap.String("node_id", node.ID),
		zap.String("kind", string(node.Kind)),
		zap.String("ref", node.Ref))

	def := rs.defs[node.ID]
	inputs, err := e.gatherInputs(rs, node, def)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.recordFailure(rs, node.ID, err, time.Since(started), nil)
		return
	}

	var (
		outputs map[string]any
		nested  *Report
		execErr error
	)
	switch def.Kind {
	case graph.NodeKindBlock:
		outputs, execErr = e.executeBlock(ctx, rs, node, def.Block, inputs)
	case graph.NodeKindSubgraph:
		outputs, nested, execErr = e.runNested(ctx, rs, node, def.Graph, inputs)
	case graph.NodeKindMacro:
		outputs, nested, execErr = e.executeMacro(ctx, rs, node, def.Macro, inputs)
	default:
		execErr = NewExecutionError(node.ID, ErrKindBlockRuntime,
			fmt.Errorf("unresolvable node kind %q", def.Kind))
	}

	elapsed := time.Since(started)
	if execErr != nil {
		span.SetStatus(codes.Error, execErr.Error())
		e.recordFailure(rs, node.ID, execErr, elapsed, nested)
		return
	}

	for port, v := range outputs {
		if werr := rs.outputs.Write(node.ID, port, v); werr != nil {
			rs.reportFatal(werr)
			e.recordFailure(rs, node.ID,
				NewExecutionError(node.ID, ErrKindBlockRuntime, werr), elapsed, nested)
			return
		}
	}
	e.recordSuccess(rs, node.ID, outputs, elapsed, nested)
}

func (e *Engine) recordSuccess(rs *runState, nodeID string, outputs map[string]any, dur time.Duration, nested *Report) {
	if err := rs.statuses.set(nodeID, StatusSucceeded); err != nil {
		rs.reportFatal(err)
		return
	}
	rs.results.put(NodeResult{
		NodeID:   nodeID,
		Status:   StatusSucceeded,
		Outputs:  outputs,
		Duration: dur,
		Nested:   nested,
	})
	e.metrics.RecordNodeSucceeded(dur.Nanoseconds())
}

func (e *Engine) recordFailure(rs *runState, nodeID string, err error, dur time.Duration, nested *Report) {
	if serr := rs.statuses.set(nodeID, StatusFailed); serr != nil {
		rs.reportFatal(serr)
		return
	}
	rs.results.put(NodeResult{
		NodeID:   nodeID,
		Status:   StatusFailed,
		Error:    err.Error(),
		Err:      err,
		Duration: dur,
		Nested:   nested,
	})
	e.metrics.RecordNodeFailed()
	e.logger.Warn("node failed",
		zap.String("run_id", rs.runID),
		zap.String("node_id", nodeID),
		zap.Error(err))
}

// gatherInputs resolves each declared input port, in priority order: an
// incoming edge, a graph-level input binding, then the port's default. A
// required port with no source fails the node before dispatch.
func (e *Engine) gatherInputs(rs *runState, node *graph.NodeSpec, def registry.ResolvedDefinition) (map[string]any, error) {
	inputs := make(map[string]any)
	edges := rs.spec.InputsTo(node.ID)
	bindings := rs.spec.InputBindingsFor(node.ID)

	for _, port := range def.InputPorts() {
		if edge := edgeFor(edges, port.Name); edge != nil {
			v, ok := rs.outputs.Read(edge.From.Node, edge.From.Port)
			if !ok {
				// The source node succeeded (this node was not skipped) yet
				// declared no value on the port it feeds from.
				return nil, NewExecutionError(node.ID, ErrKindBlockRuntime,
					fmt.Errorf("input %q: upstream %s.%s produced no value",
						port.Name, edge.From.Node, edge.From.Port))
			}
			inputs[port.Name] = v
			continue
		}
		if b := bindingFor(bindings, port.Name); b != nil {
			if v, ok := rs.inputs[b.Name]; ok {
				inputs[port.Name] = v
				continue
			}
		}
		if port.Optional {
			if port.Default != nil {
				inputs[port.Name] = port.Default
			}
			continue
		}
		return nil, NewExecutionError(node.ID, ErrKindBlockRuntime,
			fmt.Errorf("required input %q has no incoming edge, binding, or default", port.Name))
	}
	return inputs, nil
}

func edgeFor(edges []graph.EdgeSpec, port string) *graph.EdgeSpec {
	for i := range edges {
		if edges[i].To.Port == port {
			return &edges[i]
		}
	}
	return nil
}

func bindingFor(bindings []graph.PortBinding, port string) *graph.PortBinding {
	for i := range bindings {
		if bindings[i].Port == port {
			return &bindings[i]
		}
	}
	return nil
}

// executeBlock invokes a block callable, bounded by the per-node timeout.
// Timeout is non-preemptive: the callable's goroutine is left to finish in
// the background and its late result is dropped.
func (e *Engine) executeBlock(ctx context.Context, rs *runState, node *graph.NodeSpec, def *registry.BlockDefinition, inputs map[string]any) (map[string]any, error) {
	bctx := ctx
	var timeout <-chan time.Time
	if rs.opts.NodeTimeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, rs.opts.NodeTimeout)
		defer cancel()
		timer := time.NewTimer(rs.opts.NodeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	type outcome struct {
		outputs map[string]any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				reporting.CapturePanic(r, rs.runID, node.ID)
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := def.Run(bctx, inputs, node.Config)
		done <- outcome{outputs: out, err: err}
	}()

	// Run cancellation is observed at level boundaries, not here: a block
	// that finishes keeps its result, and a cooperative block sees bctx and
	// may return early on its own. Only the node timeout cuts the wait short.
	select {
	case res := <-done:
		if res.err != nil {
			return nil, NewExecutionError(node.ID, ErrKindBlockRuntime, res.err)
		}
		if err := checkOutputs(node.ID, def.Outputs, res.outputs); err != nil {
			return nil, err
		}
		return res.outputs, nil
	case <-timeout:
		return nil, NewExecutionError(node.ID, ErrKindTimeout,
			fmt.Errorf("block %q exceeded node timeout %s", def.Ref, rs.opts.NodeTimeout))
	}
}

// checkOutputs rejects output ports the definition never declared. Declared
// ports may be omitted; downstream consumers observe the missing value.
func checkOutputs(nodeID string, decls []graph.PortDecl, outputs map[string]any) error {
	for port := range outputs {
		declared := false
		for _, d := range decls {
			if d.Name == port {
				declared = true
				break
			}
		}
		if !declared {
			return NewExecutionError(nodeID, ErrKindBlockRuntime,
				fmt.Errorf("undeclared output port %q", port))
		}
	}
	return nil
}

// runNested executes a nested graph for a subgraph node (or an expanded macro
// fragment), sharing the parent's limiter and deadline. The gathered input
// map is keyed by the nested graph's input names, so it passes through as-is.
func (e *Engine) runNested(ctx context.Context, rs *runState, node *graph.NodeSpec, spec *graph.GraphSpec, inputs map[string]any) (map[string]any, *Report, error) {
	if rs.depth+1 >= rs.opts.MaxDepth {
		return nil, nil, NewExecutionError(node.ID, ErrKindNestedFailure, &graph.ValidationError{
			Kind:   graph.KindMaxDepthExceeded,
			Graph:  spec.ID,
			Node:   node.ID,
			Detail: fmt.Sprintf("nesting depth %d exceeds limit %d", rs.depth+1, rs.opts.MaxDepth),
		})
	}

	nrs := &runState{
		runID:    rs.runID,
		spec:     spec,
		reg:      rs.reg,
		inputs:   inputs,
		limiter:  rs.limiter,
		opts:     rs.opts,
		depth:    rs.depth + 1,
		deadline: rs.deadline,
		fatal:    make(chan error, 1),
	}

	// While the nested graph runs, this node is a coordinator rather than a
	// worker: its slot goes back to the shared limiter so nested nodes can
	// acquire it, and is taken again before returning. Without this handoff
	// a subgraph node would deadlock waiting on a slot its own parent holds.
	rs.limiter.Release()
	nreport, err := e.run(ctx, nrs)
	if aerr := rs.limiter.Acquire(context.Background()); aerr != nil {
		rs.reportFatal(aerr)
	}
	if err != nil {
		// Escalate nested scheduler failures to the enclosing run.
		rs.reportFatal(err)
		return nil, nil, NewExecutionError(node.ID, ErrKindNestedFailure, err)
	}

	if nreport.Status != RunSucceeded {
		return nil, nreport, NewExecutionError(node.ID, ErrKindNestedFailure, nestedCause(spec, nreport))
	}

	outputs := make(map[string]any, len(spec.Outputs))
	for _, b := range spec.Outputs {
		if v, ok := nreport.OutputValue(b.Node, b.Port); ok {
			outputs[b.Name] = v
		}
	}
	return outputs, nreport, nil
}

// nestedCause summarizes a failed nested run, naming the first failed node in
// deterministic order so error chains are stable across runs.
func nestedCause(spec *graph.GraphSpec, report *Report) error {
	failed := report.Failed()
	if len(failed) == 0 {
		return fmt.Errorf("nested graph %q finished with status %s", spec.ID, report.Status)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].NodeID < failed[j].NodeID })
	first := failed[0]
	if first.Err != nil {
		return fmt.Errorf("nested graph %q: %w", spec.ID, first.Err)
	}
	return fmt.Errorf("nested graph %q: node %q: %s", spec.ID, first.NodeID, first.Error)
}

// executeMacro expands the template exactly once, validates the fragment
// against the remaining depth budget, and runs it as a nested graph.
func (e *Engine) executeMacro(ctx context.Context, rs *runState, node *graph.NodeSpec, tpl *registry.MacroTemplate, inputs map[string]any) (map[string]any, *Report, error) {
	fragment, err := tpl.Expand(node.Config)
	if err != nil {
		return nil, nil, NewExecutionError(node.ID, ErrKindBlockRuntime,
			fmt.Errorf("macro %q expansion: %w", tpl.Ref, err))
	}
	if fragment == nil {
		return nil, nil, NewExecutionError(node.ID, ErrKindBlockRuntime,
			fmt.Errorf("macro %q expanded to a nil fragment", tpl.Ref))
	}

	if err := validateGraph(fragment, rs.reg, rs.depth+1, rs.opts.MaxDepth); err != nil {
		return nil, nil, NewExecutionError(node.ID, ErrKindNestedFailure, err)
	}
	return e.runNested(ctx, rs, node, fragment, inputs)
}
