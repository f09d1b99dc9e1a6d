// Package workspace ties documents, runners and a workflow.Store together. It keeps
// every opened workflow in memory and writes each committed change back to the store.
package workspace

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/document"
	"github.com/meikuraledutech/workflow/provider"
	"github.com/meikuraledutech/workflow/runner"
	"go.uber.org/zap"
)

var (
	ErrWorkflowExists = errors.New("workspace: workflow already exists")
	ErrNotTextNode    = errors.New("workspace: prompt from image needs a text node")
)

// PromptAnalyzer fills a text node's prompt from an image.
type PromptAnalyzer interface {
	PromptFromImage(ctx context.Context, node workflow.Node, imageURL string) (*workflow.TextData, provider.Analysis, error)
}

// Workspace serves open workflow documents. It is safe for concurrent use.
type Workspace struct {
	store     workflow.Store
	executors map[workflow.NodeType]runner.Executor
	analyzer  PromptAnalyzer
	newID     func() string
	docOpts   []document.Option
	log       *zap.SugaredLogger

	mu   sync.Mutex
	open map[string]*entry
}

type entry struct {
	doc    *document.Document
	run    *runner.Runner
	cancel func()

	saveMu sync.Mutex
	saved  int
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger for the workspace and every document and runner it opens.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(w *Workspace) { w.log = l }
}

// WithIDGenerator replaces uuid.NewString for workflow ids.
func WithIDGenerator(fn func() string) Option {
	return func(w *Workspace) { w.newID = fn }
}

// WithDocumentOptions passes extra options to every document the workspace opens.
func WithDocumentOptions(opts ...document.Option) Option {
	return func(w *Workspace) { w.docOpts = append(w.docOpts, opts...) }
}

// WithPromptAnalyzer enables PromptFromImage.
func WithPromptAnalyzer(a PromptAnalyzer) Option {
	return func(w *Workspace) { w.analyzer = a }
}

// New creates a Workspace over store. executors are shared by every runner.
func New(store workflow.Store, executors map[workflow.NodeType]runner.Executor, opts ...Option) *Workspace {
	w := &Workspace{
		store:     store,
		executors: executors,
		newID:     uuid.NewString,
		log:       zap.NewNop().Sugar(),
		open:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create stores a new empty workflow and opens it. An empty id is generated.
func (w *Workspace) Create(ctx context.Context, id string) (string, *document.Document, error) {
	if id == "" {
		id = w.newID()
	}
	existing, err := w.store.GetWorkflow(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if existing != nil {
		return "", nil, errors.Wrapf(ErrWorkflowExists, "workflow %q", id)
	}
	if err := w.store.SaveWorkflow(ctx, id, workflow.Graph{Nodes: []workflow.Node{}, Edges: []workflow.Edge{}}); err != nil {
		return "", nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.register(id, workflow.Graph{})
	w.log.Infow("workflow created", "workflow", id)
	return id, e.doc, nil
}

// Open returns the document for id, loading it from the store on first use.
func (w *Workspace) Open(ctx context.Context, id string) (*document.Document, error) {
	e, err := w.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.doc, nil
}

// Runner returns the runner bound to the workflow's document.
func (w *Workspace) Runner(ctx context.Context, id string) (*runner.Runner, error) {
	e, err := w.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.run, nil
}

// Run executes the whole workflow, or one group when groupID is set.
func (w *Workspace) Run(ctx context.Context, id, groupID string, onProgress runner.ProgressFunc) (*runner.Result, error) {
	e, err := w.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if groupID != "" {
		return e.run.RunGroup(ctx, groupID, onProgress)
	}
	return e.run.RunAll(ctx, onProgress)
}

// PromptFromImage analyzes an image and stores the suggested prompt on the text node.
// An empty imageURL uses the node's first connected image.
func (w *Workspace) PromptFromImage(ctx context.Context, id, nodeID, imageURL string) (provider.Analysis, error) {
	if w.analyzer == nil {
		return provider.Analysis{}, errors.Mark(errors.New("image analysis is not configured"), provider.ErrNotConfigured)
	}
	doc, err := w.Open(ctx, id)
	if err != nil {
		return provider.Analysis{}, err
	}
	node, ok := doc.Snapshot().Node(nodeID)
	if !ok {
		return provider.Analysis{}, errors.Wrapf(workflow.ErrNodeNotFound, "node %q", nodeID)
	}
	if node.Type != workflow.NodeTypeText {
		return provider.Analysis{}, ErrNotTextNode
	}

	data, analysis, err := w.analyzer.PromptFromImage(ctx, node, imageURL)
	if err != nil {
		return provider.Analysis{}, err
	}
	err = doc.UpdateNodeData(nodeID, func(cur workflow.NodeData) workflow.NodeData {
		t := cur.Clone().(*workflow.TextData)
		t.Prompt = data.Prompt
		t.SelectedAction = data.SelectedAction
		return t
	})
	return analysis, err
}

// Delete closes and removes a workflow.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	g, err := w.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}

	w.mu.Lock()
	e, cached := w.open[id]
	if cached {
		e.cancel()
		delete(w.open, id)
	}
	w.mu.Unlock()

	if g == nil && !cached {
		return errors.Wrapf(workflow.ErrWorkflowNotFound, "workflow %q", id)
	}
	if err := w.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	w.log.Infow("workflow deleted", "workflow", id)
	return nil
}

// List returns the ids of every stored workflow.
func (w *Workspace) List(ctx context.Context) ([]string, error) {
	return w.store.ListWorkflows(ctx)
}

func (w *Workspace) entry(ctx context.Context, id string) (*entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.open[id]; ok {
		return e, nil
	}

	g, err := w.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.Wrapf(workflow.ErrWorkflowNotFound, "workflow %q", id)
	}
	w.log.Debugw("workflow loaded", "workflow", id, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return w.register(id, *g), nil
}

// register opens a document over g. Callers hold w.mu.
func (w *Workspace) register(id string, g workflow.Graph) *entry {
	log := w.log.With("workflow", id)
	opts := append([]document.Option{document.WithLogger(log)}, w.docOpts...)
	doc := document.FromGraph(g, opts...)

	e := &entry{doc: doc, run: runner.New(doc, w.executors, runner.WithLogger(log))}
	e.cancel = doc.Subscribe(func(ev document.Event) { w.persist(id, e, ev) })
	w.open[id] = e
	return e
}

// persist writes a committed change to the store. Events may arrive out of order
// from concurrent mutations, so older versions than the last saved one are skipped.
func (w *Workspace) persist(id string, e *entry, ev document.Event) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	if ev.Version <= e.saved {
		return
	}
	if err := w.store.SaveWorkflow(context.Background(), id, ev.Graph); err != nil {
		w.log.Errorw("persist workflow failed", "workflow", id, "event", ev.Kind, "version", ev.Version, "error", err)
		return
	}
	e.saved = ev.Version
}
