// Package runner executes a subset of a workflow in dependency order.
//
// A run validates the subset, sorts it topologically, resets the nodes it is about
// to execute and then runs them one at a time. The first failure aborts the run.
// Nodes never execute concurrently: each one may consume what the previous ones
// produced earlier in the same run.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/graph"
	"go.uber.org/zap"
)

// Document is the part of the workflow document a run reads and writes.
type Document interface {
	Snapshot() workflow.Graph
	UpdateNodeData(id string, fn func(workflow.NodeData) workflow.NodeData) error
}

// Outcome is what an executor hands back for a successful node: the node's new
// payload and the output downstream nodes will see during this run.
type Outcome struct {
	Data   workflow.NodeData
	Output graph.Output
}

// Executor runs one node type.
type Executor interface {
	Execute(ctx context.Context, node workflow.Node, in graph.Inputs) (Outcome, error)
}

// State is the phase of a run.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Progress is reported when a node starts and when it finishes.
type Progress struct {
	Completed int
	Total     int
	// Current is the display name of the node being processed.
	Current string
}

// ProgressFunc receives progress updates. It runs on the run's goroutine.
type ProgressFunc func(Progress)

// Result summarizes a run. It is returned alongside the error when a run fails.
type Result struct {
	State     State
	Completed int
	Total     int
	// Order is the ids of the executable nodes in the order they were scheduled.
	Order []string
	// Cycle is set when the subset contained a dependency cycle.
	Cycle *graph.CycleWarning
}

// AllScope is the scope key used by RunAll.
const AllScope = "*"

// Runner executes runs against one document.
type Runner struct {
	doc       Document
	executors map[workflow.NodeType]Executor
	log       *zap.SugaredLogger

	mu       sync.Mutex
	inFlight map[string]bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Runner) { r.log = l }
}

// New returns a Runner that dispatches each node to the executor registered for its type.
func New(doc Document, executors map[workflow.NodeType]Executor, opts ...Option) *Runner {
	r := &Runner{
		doc:       doc,
		executors: executors,
		log:       zap.NewNop().Sugar(),
		inFlight:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunGroup runs every child of a group. The group id is the in-flight scope.
func (r *Runner) RunGroup(ctx context.Context, groupID string, onProgress ProgressFunc) (*Result, error) {
	children := graph.GroupChildren(groupID, r.doc.Snapshot().Nodes)
	return r.Run(ctx, groupID, graph.IDs(children), onProgress)
}

// RunAll runs the whole document.
func (r *Runner) RunAll(ctx context.Context, onProgress ProgressFunc) (*Result, error) {
	return r.Run(ctx, AllScope, graph.IDs(r.doc.Snapshot().Nodes), onProgress)
}

// Running reports whether a run holds scope.
func (r *Runner) Running(scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight[scope]
}

// Run executes the nodes named by nodeIDs. Only one run per scope may be in flight;
// a second call fails with ErrRunInFlight. Cancelling ctx stops the run: the node in
// progress is marked failed with the context error and later nodes stay idle.
func (r *Runner) Run(ctx context.Context, scope string, nodeIDs []string, onProgress ProgressFunc) (*Result, error) {
	if !r.acquire(scope) {
		return nil, errors.Wrapf(ErrRunInFlight, "scope %q", scope)
	}
	defer r.release(scope)

	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	res := &Result{State: StateValidating}
	log := r.log.With("scope", scope)

	snap := r.doc.Snapshot()
	subset := graph.Select(nodeIDs, snap.Nodes)
	if len(subset) == 0 {
		res.State = StateFailed
		return res, ErrNoNodes
	}
	edges := graph.RelevantEdges(subset, snap.Edges)

	if v := graph.ValidatePrompts(subset); !v.Valid {
		for _, id := range v.MissingIDs {
			r.setStatus(id, workflow.StatusError, MissingPrompt)
		}
		res.State = StateFailed
		log.Warnw("run rejected", "missing_prompt", v.MissingIDs)
		return res, &MissingPromptError{Names: v.Missing, IDs: v.MissingIDs}
	}

	sorted := graph.TopologicalSort(subset, edges)
	if sorted.Cycle != nil {
		res.Cycle = sorted.Cycle
		log.Warnw("dependency cycle in run subset",
			"nodes", sorted.Cycle.NodeIDs,
			"components", sorted.Cycle.Components)
	}
	order := graph.ExecutableNodes(sorted.Order)
	if len(order) == 0 {
		res.State = StateFailed
		return res, ErrNoExecutableNodes
	}
	res.Order = graph.IDs(order)
	res.Total = len(order)

	for _, n := range order {
		r.setStatus(n.ID, workflow.StatusIdle, "")
	}

	res.State = StateRunning
	log.Infow("run started", "nodes", len(subset), "executable", res.Total)
	started := time.Now()

	outputs := graph.Outputs{}
	for i, planned := range order {
		if err := ctx.Err(); err != nil {
			res.State = StateFailed
			log.Warnw("run cancelled", "completed", res.Completed, "total", res.Total)
			return res, errors.Wrap(err, "run cancelled")
		}

		name := planned.DisplayName()
		onProgress(Progress{Completed: i, Total: res.Total, Current: name})

		out, err := r.execute(ctx, planned.ID, edges, outputs, log)
		if err != nil {
			r.setStatus(planned.ID, workflow.StatusError, err.Error())
			onProgress(Progress{Completed: i + 1, Total: res.Total, Current: name})
			res.State = StateFailed
			log.Errorw("run failed", "node", planned.ID, "name", name, "error", err)
			return res, &NodeError{NodeID: planned.ID, NodeName: name, Err: err}
		}

		outputs[planned.ID] = out
		res.Completed = i + 1
		onProgress(Progress{Completed: i + 1, Total: res.Total, Current: name})
	}

	res.State = StateCompleted
	log.Infow("run completed", "nodes", res.Completed, "duration", time.Since(started))
	return res, nil
}

// execute runs one node against the latest document state and commits its outcome.
func (r *Runner) execute(ctx context.Context, id string, edges []workflow.Edge, outputs graph.Outputs, log *zap.SugaredLogger) (graph.Output, error) {
	r.setStatus(id, workflow.StatusProcessing, "")

	snap := r.doc.Snapshot()
	node, ok := snap.Node(id)
	if !ok {
		return graph.Output{}, errors.Wrapf(workflow.ErrNodeNotFound, "id %q", id)
	}
	exec, ok := r.executors[node.Type]
	if !ok {
		return graph.Output{}, errors.Wrapf(ErrNoExecutor, "%s", node.Type)
	}

	in := graph.AggregateInputs(id, snap.Nodes, edges, outputs)
	log.Infow("node started", "node", id, "name", node.DisplayName(), "type", node.Type,
		"images", len(in.Images), "texts", len(in.Texts))
	start := time.Now()

	outcome, err := exec.Execute(ctx, node, in)
	if err != nil {
		return graph.Output{}, err
	}

	err = r.doc.UpdateNodeData(id, func(cur workflow.NodeData) workflow.NodeData {
		data := outcome.Data
		if data == nil {
			data = cur
		}
		return workflow.WithStatus(data, workflow.StatusCompleted, "")
	})
	if err != nil {
		return graph.Output{}, errors.Wrap(err, "store result")
	}
	log.Infow("node completed", "node", id, "name", node.DisplayName(), "type", node.Type,
		"duration", time.Since(start))
	return outcome.Output, nil
}

func (r *Runner) setStatus(id string, s workflow.Status, msg string) {
	err := r.doc.UpdateNodeData(id, func(d workflow.NodeData) workflow.NodeData {
		return workflow.WithStatus(d, s, msg)
	})
	if err != nil {
		r.log.Warnw("could not update node status", "node", id, "status", s, "error", err)
	}
}

func (r *Runner) acquire(scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[scope] {
		return false
	}
	r.inFlight[scope] = true
	return true
}

func (r *Runner) release(scope string) {
	r.mu.Lock()
	delete(r.inFlight, scope)
	r.mu.Unlock()
}
