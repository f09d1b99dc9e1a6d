// Package document holds the authoritative in-memory workflow document.
//
// A Document owns one workflow.Graph. Every mutation goes through a single
// lock-protected path that restores the parent-before-child ordering, refreshes
// the derived connection views on executable nodes and then notifies
// subscribers with a snapshot of the committed state.
package document

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/graph"
	"go.uber.org/zap"
)

var (
	ErrDuplicateID  = errors.New("document: id already exists")
	ErrInvalidEdge  = errors.New("document: groups cannot be connected")
	ErrInvalidNode  = errors.New("document: node data does not match node type")
	ErrInvalidGroup = errors.New("document: parent must be a top-level group")
)

// Document is a workflow graph plus its mutation operations. It is safe for concurrent use.
type Document struct {
	mu      sync.Mutex
	g       workflow.Graph
	version int

	subs    map[int]func(Event)
	nextSub int

	newID func() string
	now   func() time.Time
	log   *zap.SugaredLogger
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used for change tracing.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *Document) { d.log = l }
}

// WithIDGenerator replaces uuid.NewString as the source of new node and edge ids.
func WithIDGenerator(fn func() string) Option {
	return func(d *Document) { d.newID = fn }
}

// WithClock sets the clock used to stamp exports.
func WithClock(fn func() time.Time) Option {
	return func(d *Document) { d.now = fn }
}

// New returns an empty document.
func New(opts ...Option) *Document {
	d := &Document{
		subs:  make(map[int]func(Event)),
		newID: uuid.NewString,
		now:   time.Now,
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromGraph returns a document seeded with a copy of g. No event is emitted.
func FromGraph(g workflow.Graph, opts ...Option) *Document {
	d := New(opts...)
	d.g = g.Clone()
	d.normalize()
	return d
}

// Snapshot returns a deep copy of the current graph.
func (d *Document) Snapshot() workflow.Graph {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.g.Clone()
}

// Version counts committed mutations since the document was created.
func (d *Document) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Subscribe registers fn to receive every committed change. fn runs on the mutating
// goroutine after the document lock is released. The returned func unsubscribes.
func (d *Document) Subscribe(fn func(Event)) (cancel func()) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

// mutation edits g in place and reports the affected ids. Returning changed=false
// leaves the document untouched and suppresses the event.
type mutation func(g *workflow.Graph) (ids []string, changed bool, err error)

// apply is the single update path. fn runs against a working copy so a failed or
// no-op mutation never leaks partial edits.
func (d *Document) apply(kind EventKind, fn mutation) ([]string, bool, error) {
	d.mu.Lock()
	work := d.g.Clone()
	ids, changed, err := fn(&work)
	if err != nil || !changed {
		d.mu.Unlock()
		return nil, false, err
	}
	d.g = work
	d.normalize()
	d.version++
	ev := Event{Kind: kind, IDs: ids, Version: d.version, Graph: d.g.Clone()}
	subs := make([]func(Event), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	d.log.Debugw("document changed", "kind", kind, "version", ev.Version, "ids", ids)
	for _, fn := range subs {
		fn(ev)
	}
	return ids, true, nil
}

// normalize restores the ordering invariant and recomputes derived connection views.
func (d *Document) normalize() {
	d.g.Nodes = SortParentsFirst(d.g.Nodes)
	for i, n := range d.g.Nodes {
		if !n.Type.Executable() {
			continue
		}
		in := graph.AggregateInputs(n.ID, d.g.Nodes, d.g.Edges, nil)
		d.g.Nodes[i].Data = workflow.WithConnections(n.Data, in.Images, in.Texts)
	}
}

// AddNode appends n, selects it and deselects every other node. An empty id is
// replaced by a generated one and nil data by the initial payload for the type.
// A parent, when set, must be an existing top-level group, and the node is then
// constrained to it.
func (d *Document) AddNode(n workflow.Node) (string, error) {
	if !n.Type.Valid() {
		return "", errors.Newf("document: unknown node type %q", n.Type)
	}
	n = n.Clone()
	if n.ID == "" {
		n.ID = d.newID()
	}
	if n.Data == nil {
		data, err := workflow.NewData(n.Type)
		if err != nil {
			return "", err
		}
		n.Data = data
	}
	if n.Data.Kind() != n.Type {
		return "", errors.Wrapf(ErrInvalidNode, "%s node with %s data", n.Type, n.Data.Kind())
	}

	_, _, err := d.apply(EventNodeAdded, func(g *workflow.Graph) ([]string, bool, error) {
		if _, ok := g.Node(n.ID); ok {
			return nil, false, errors.Wrapf(ErrDuplicateID, "id %q", n.ID)
		}
		if n.ParentID != "" {
			if err := checkParent(g, n.ParentID); err != nil {
				return nil, false, err
			}
			if n.Type.Container() {
				return nil, false, errors.Wrap(ErrInvalidGroup, "groups cannot be nested")
			}
			n.Extent = workflow.ExtentParent
		} else {
			n.Extent = ""
		}
		deselectAll(g)
		n.Selected = true
		g.Nodes = append(g.Nodes, n)
		return []string{n.ID}, true, nil
	})
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

// UpdateNode applies fn to a copy of the node and commits the result. Identity and
// containment (id, type, parent, extent) cannot be changed this way.
func (d *Document) UpdateNode(id string, fn func(n *workflow.Node)) error {
	_, _, err := d.apply(EventNodeUpdated, func(g *workflow.Graph) ([]string, bool, error) {
		i := indexOf(g, id)
		if i < 0 {
			return nil, false, errors.Wrapf(workflow.ErrNodeNotFound, "id %q", id)
		}
		orig := g.Nodes[i]
		n := orig.Clone()
		fn(&n)
		n.ID, n.Type, n.ParentID, n.Extent = orig.ID, orig.Type, orig.ParentID, orig.Extent
		if n.Data == nil || n.Data.Kind() != n.Type {
			return nil, false, errors.Wrapf(ErrInvalidNode, "id %q", id)
		}
		g.Nodes[i] = n
		return []string{id}, true, nil
	})
	return err
}

// UpdateNodeData replaces the payload of a node with fn's result. This is the path
// execution uses to write statuses and generated content.
func (d *Document) UpdateNodeData(id string, fn func(workflow.NodeData) workflow.NodeData) error {
	_, _, err := d.apply(EventNodeDataChanged, func(g *workflow.Graph) ([]string, bool, error) {
		i := indexOf(g, id)
		if i < 0 {
			return nil, false, errors.Wrapf(workflow.ErrNodeNotFound, "id %q", id)
		}
		data := fn(g.Nodes[i].Data)
		if data == nil || data.Kind() != g.Nodes[i].Type {
			return nil, false, errors.Wrapf(ErrInvalidNode, "id %q", id)
		}
		g.Nodes[i].Data = data
		return []string{id}, true, nil
	})
	return err
}

// DeleteNode removes a node, every child when it is a group, and every edge touching
// a removed node. It reports false when the node does not exist.
func (d *Document) DeleteNode(id string) bool {
	_, ok, _ := d.apply(EventNodeDeleted, func(g *workflow.Graph) ([]string, bool, error) {
		i := indexOf(g, id)
		if i < 0 {
			return nil, false, nil
		}
		gone := map[string]bool{id: true}
		if g.Nodes[i].Type.Container() {
			for _, c := range graph.GroupChildren(id, g.Nodes) {
				gone[c.ID] = true
			}
		}
		removed := removeNodes(g, gone)
		return removed, true, nil
	})
	return ok
}

// Clear removes every node and edge.
func (d *Document) Clear() {
	d.apply(EventCleared, func(g *workflow.Graph) ([]string, bool, error) {
		ids := graph.IDs(g.Nodes)
		g.Nodes, g.Edges = nil, nil
		return ids, true, nil
	})
}

// Select marks exactly the given nodes as selected.
func (d *Document) Select(ids []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	d.apply(EventSelectionChanged, func(g *workflow.Graph) ([]string, bool, error) {
		var picked []string
		for i := range g.Nodes {
			g.Nodes[i].Selected = want[g.Nodes[i].ID]
			if g.Nodes[i].Selected {
				picked = append(picked, g.Nodes[i].ID)
			}
		}
		return picked, true, nil
	})
}

// SelectedIDs returns the ids of selected nodes in document order.
func (d *Document) SelectedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for _, n := range d.g.Nodes {
		if n.Selected {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Export serializes the document as a portable workflow file.
func (d *Document) Export() ([]byte, error) {
	return workflow.MarshalExport(d.Snapshot(), d.now())
}

// Import replaces the whole document with the contents of an export file. A payload
// that fails to parse, violates containment or holds an edge Connect would refuse
// leaves the document unchanged.
func (d *Document) Import(b []byte) error {
	g, err := workflow.UnmarshalExport(b)
	if err != nil {
		return err
	}
	if err := checkContainment(g); err != nil {
		return err
	}
	for i, e := range g.Edges {
		checked, err := checkEdge(&g, e)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "Invalid workflow file: edge %q", e.ID), workflow.ErrInvalidWorkflowFile)
		}
		g.Edges[i] = checked
	}
	for i := range g.Nodes {
		if g.Nodes[i].ParentID != "" {
			g.Nodes[i].Extent = workflow.ExtentParent
		}
	}
	_, _, err = d.apply(EventImported, func(work *workflow.Graph) ([]string, bool, error) {
		*work = g
		return graph.IDs(g.Nodes), true, nil
	})
	return err
}

func indexOf(g *workflow.Graph, id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func deselectAll(g *workflow.Graph) {
	for i := range g.Nodes {
		g.Nodes[i].Selected = false
	}
}

// removeNodes drops the nodes in gone and every edge touching them, returning the
// removed node ids in document order.
func removeNodes(g *workflow.Graph, gone map[string]bool) []string {
	var removed []string
	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if gone[n.ID] {
			removed = append(removed, n.ID)
			continue
		}
		nodes = append(nodes, n)
	}
	g.Nodes = nodes

	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if gone[e.Source] || gone[e.Target] {
			continue
		}
		edges = append(edges, e)
	}
	g.Edges = edges
	return removed
}

func checkParent(g *workflow.Graph, parentID string) error {
	p, ok := g.Node(parentID)
	if !ok {
		return errors.Wrapf(workflow.ErrNodeNotFound, "parent %q", parentID)
	}
	if !p.Type.Container() || p.ParentID != "" {
		return errors.Wrapf(ErrInvalidGroup, "parent %q", parentID)
	}
	return nil
}

// checkContainment verifies every parent reference of an imported graph.
func checkContainment(g workflow.Graph) error {
	for _, n := range g.Nodes {
		if n.ParentID == "" {
			continue
		}
		err := checkParent(&g, n.ParentID)
		if err == nil && n.Type.Container() {
			err = errors.Wrap(ErrInvalidGroup, "groups cannot be nested")
		}
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "Invalid workflow file: node %q", n.ID), workflow.ErrInvalidWorkflowFile)
		}
	}
	return nil
}
