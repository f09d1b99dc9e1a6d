package workflow

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// ExportVersion is the version written into every export file.
const ExportVersion = "1.0"

// Export is the portable file format of a workflow.
type Export struct {
	Nodes      []Node `json:"nodes"`
	Edges      []Edge `json:"edges"`
	ExportedAt string `json:"exportedAt"`
	Version    string `json:"version"`
}

// MarshalExport encodes g as an export file stamped with now.
func MarshalExport(g Graph, now time.Time) ([]byte, error) {
	exp := Export{
		Nodes:      g.Nodes,
		Edges:      g.Edges,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Version:    ExportVersion,
	}
	if exp.Nodes == nil {
		exp.Nodes = []Node{}
	}
	if exp.Edges == nil {
		exp.Edges = []Edge{}
	}
	out, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "workflow: encode export")
	}
	return out, nil
}

// UnmarshalExport decodes an export file. Any payload that is not valid JSON or lacks
// the nodes/edges arrays is rejected with ErrInvalidWorkflowFile, as are edges that
// could never have been drawn: self loops, repeated pairs and edges into a source
// node. Target handles are normalized to HandleInput.
func UnmarshalExport(b []byte) (Graph, error) {
	var wire struct {
		Nodes *[]Node `json:"nodes"`
		Edges *[]Edge `json:"edges"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return Graph{}, errors.Mark(errors.Wrap(err, ErrInvalidWorkflowFile.Error()), ErrInvalidWorkflowFile)
	}
	if wire.Nodes == nil || wire.Edges == nil {
		return Graph{}, errors.WithHint(ErrInvalidWorkflowFile, "expected an object with nodes and edges arrays")
	}
	g := Graph{Nodes: *wire.Nodes, Edges: *wire.Edges}
	types := make(map[string]NodeType, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return Graph{}, errors.WithHint(ErrInvalidWorkflowFile, "node without id")
		}
		if _, dup := types[n.ID]; dup {
			return Graph{}, errors.WithHintf(ErrInvalidWorkflowFile, "duplicate node id %q", n.ID)
		}
		types[n.ID] = n.Type
	}

	type pair struct{ source, target string }
	pairs := make(map[pair]bool, len(g.Edges))
	for i, e := range g.Edges {
		_, okSrc := types[e.Source]
		dst, okDst := types[e.Target]
		switch {
		case !okSrc || !okDst:
			return Graph{}, errors.WithHintf(ErrInvalidWorkflowFile, "edge %q references a missing node", e.ID)
		case e.Source == e.Target:
			return Graph{}, errors.WithHintf(ErrInvalidWorkflowFile, "edge %q connects node %q to itself", e.ID, e.Source)
		case pairs[pair{e.Source, e.Target}]:
			return Graph{}, errors.WithHintf(ErrInvalidWorkflowFile, "edge %q repeats %q -> %q", e.ID, e.Source, e.Target)
		case dst.LeafInput():
			return Graph{}, errors.WithHintf(ErrInvalidWorkflowFile, "edge %q targets source node %q", e.ID, e.Target)
		}
		pairs[pair{e.Source, e.Target}] = true
		g.Edges[i].TargetHandle = HandleInput
	}
	return g, nil
}
