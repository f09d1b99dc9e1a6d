package workflow

import "encoding/json"

// NodeType is the closed set of node kinds a workflow can hold.
type NodeType string

const (
	NodeTypeSource NodeType = "source"
	NodeTypeText   NodeType = "text"
	NodeTypeImage  NodeType = "image"
	NodeTypeGroup  NodeType = "group"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeSource, NodeTypeText, NodeTypeImage, NodeTypeGroup:
		return true
	}
	return false
}

// Executable reports whether nodes of this type are run by the orchestrator.
func (t NodeType) Executable() bool { return t == NodeTypeText || t == NodeTypeImage }

// Container reports whether nodes of this type hold children.
func (t NodeType) Container() bool { return t == NodeTypeGroup }

// LeafInput reports whether nodes of this type only feed data downstream.
func (t NodeType) LeafInput() bool { return t == NodeTypeSource }

// Status is the execution state of an executable node.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Handles name the ports an edge attaches to.
const (
	HandleInput = "input"
	HandleImage = "image"
	HandleText  = "text"
)

// ExtentParent marks a node as constrained to its parent's bounds.
const ExtentParent = "parent"

// Position is a 2D coordinate. It is relative to the parent when the node has one.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node represents a vertex in the workflow graph.
// Size is the explicit size (set on groups); Measured is the rendered size reported by the canvas.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	ParentID string   `json:"parentId,omitempty"`
	Extent   string   `json:"extent,omitempty"`
	Size     *Size    `json:"size,omitempty"`
	Measured *Size    `json:"measured,omitempty"`
	Selected bool     `json:"selected,omitempty"`
	Data     NodeData `json:"data"`
}

// Edge represents a directed, handle-qualified connection between two nodes.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Graph is a snapshot of a workflow's nodes and edges.
// Nodes are ordered so that every parent precedes its children.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// DisplayName returns the user-facing name of the node, falling back to its id.
func (n Node) DisplayName() string {
	if name := LabelOf(n.Data); name != "" {
		return name
	}
	return n.ID
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	if n.Size != nil {
		s := *n.Size
		c.Size = &s
	}
	if n.Measured != nil {
		m := *n.Measured
		c.Measured = &m
	}
	if n.Data != nil {
		c.Data = n.Data.Clone()
	}
	return c
}

// UnmarshalJSON decodes the node, choosing the data variant from the type tag.
func (n *Node) UnmarshalJSON(b []byte) error {
	type plain Node
	var wire struct {
		plain
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	data, err := DecodeData(wire.Type, wire.Data)
	if err != nil {
		return err
	}
	*n = Node(wire.plain)
	n.Data = data
	return nil
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	c := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		c.Nodes[i] = n.Clone()
	}
	copy(c.Edges, g.Edges)
	return c
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
