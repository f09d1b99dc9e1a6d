package document

import (
	"github.com/cockroachdb/errors"
	"github.com/meikuraledutech/workflow"
)

// Connect adds a directed edge. Self loops fail with workflow.ErrSelfLoop and unknown
// endpoints with workflow.ErrNodeNotFound. Connecting a pair that is already connected
// is a no-op returning the existing edge id. Text and image targets expose a single
// input port, so their target handle is always normalized to workflow.HandleInput.
func (d *Document) Connect(e workflow.Edge) (string, error) {
	var id string
	_, _, err := d.apply(EventEdgeAdded, func(g *workflow.Graph) ([]string, bool, error) {
		checked, err := checkEdge(g, e)
		if err != nil {
			return nil, false, err
		}
		if existing, ok := findPair(g.Edges, e.Source, e.Target); ok {
			id = existing
			return nil, false, nil
		}
		if checked.ID == "" {
			checked.ID = d.newID()
		} else if edgeIndex(g.Edges, checked.ID) >= 0 {
			return nil, false, errors.Wrapf(ErrDuplicateID, "edge %q", checked.ID)
		}
		g.Edges = append(g.Edges, checked)
		id = checked.ID
		return []string{checked.ID}, true, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Disconnect removes an edge. It reports false when the edge does not exist.
func (d *Document) Disconnect(edgeID string) bool {
	_, ok, _ := d.apply(EventEdgeRemoved, func(g *workflow.Graph) ([]string, bool, error) {
		i := edgeIndex(g.Edges, edgeID)
		if i < 0 {
			return nil, false, nil
		}
		g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
		return []string{edgeID}, true, nil
	})
	return ok
}

func edgeIndex(edges []workflow.Edge, id string) int {
	for i, e := range edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func outputHandle(t workflow.NodeType) string {
	if t == workflow.NodeTypeText {
		return workflow.HandleText
	}
	return workflow.HandleImage
}

// checkEdge applies the connection rules to e against the nodes of g and returns e
// with its handles normalized. Duplicate pairs are left to the caller.
func checkEdge(g *workflow.Graph, e workflow.Edge) (workflow.Edge, error) {
	if e.Source == e.Target {
		return e, errors.Wrapf(workflow.ErrSelfLoop, "node %q", e.Source)
	}
	src, ok := g.Node(e.Source)
	if !ok {
		return e, errors.Wrapf(workflow.ErrNodeNotFound, "source %q", e.Source)
	}
	dst, ok := g.Node(e.Target)
	if !ok {
		return e, errors.Wrapf(workflow.ErrNodeNotFound, "target %q", e.Target)
	}
	if src.Type.Container() || dst.Type.Container() {
		return e, ErrInvalidEdge
	}
	if dst.Type.LeafInput() {
		return e, errors.Wrapf(ErrInvalidEdge, "source node %q takes no inputs", dst.ID)
	}
	if e.SourceHandle == "" {
		e.SourceHandle = outputHandle(src.Type)
	}
	e.TargetHandle = workflow.HandleInput
	return e, nil
}

// findPair returns the id of the edge already running from source to target.
func findPair(edges []workflow.Edge, source, target string) (string, bool) {
	for _, e := range edges {
		if e.Source == source && e.Target == target {
			return e.ID, true
		}
	}
	return "", false
}
