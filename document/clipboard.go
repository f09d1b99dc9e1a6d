package document

import (
	"math"

	"github.com/meikuraledutech/workflow"
)

// Clipboard holds copied nodes and the edges running between them. Nodes are stored
// parent first; a node copied without its group is stored with an absolute position.
type Clipboard struct {
	Nodes []workflow.Node `json:"nodes"`
	Edges []workflow.Edge `json:"edges"`
}

// Empty reports whether the clipboard holds nothing.
func (c Clipboard) Empty() bool { return len(c.Nodes) == 0 }

// Copy captures the named nodes, the children of any named group, and the edges
// whose endpoints were both captured.
func (d *Document) Copy(ids []string) Clipboard {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyNodes(&d.g, ids)
}

// Paste inserts a fresh copy of the clipboard: new ids, top-level nodes offset by
// DuplicateOffset, generated content and execution state reset. The pasted nodes
// become the selection. It returns the new ids in clipboard order.
//
// Clipboards may come from clients, so paste is forgiving: a repeated id keeps its
// first node, a child keeps its parent only when the parent is a pasted group, groups
// always land at the top level, and edges that Connect would refuse are dropped.
func (d *Document) Paste(c Clipboard) []string {
	if c.Empty() {
		return nil
	}
	ids, _, _ := d.apply(EventPasted, func(g *workflow.Graph) ([]string, bool, error) {
		ids := d.paste(g, c)
		return ids, len(ids) > 0, nil
	})
	return ids
}

// Duplicate copies one node (with its children when it is a group) and pastes it
// next to the original. A grouped child is copied inside its own group. It returns
// the id of the new node.
func (d *Document) Duplicate(id string) (string, bool) {
	var newID string
	_, ok, _ := d.apply(EventPasted, func(g *workflow.Graph) ([]string, bool, error) {
		i := indexOf(g, id)
		if i < 0 {
			return nil, false, nil
		}
		if n := g.Nodes[i]; n.ParentID != "" && !n.Type.Container() {
			newID = d.duplicateChild(g, i)
			return []string{newID, n.ParentID}, true, nil
		}
		c := copyNodes(g, []string{id})
		ids := d.paste(g, c)
		if len(ids) == 0 {
			return nil, false, nil
		}
		newID = ids[0]
		return ids, true, nil
	})
	return newID, ok
}

// duplicateChild clones the grouped node at i inside the same group, growing the
// group right and down when the copy would overflow it.
func (d *Document) duplicateChild(g *workflow.Graph, i int) string {
	cp := g.Nodes[i].Clone()
	cp.ID = d.newID()
	cp.Extent = workflow.ExtentParent
	cp.Position.X += DuplicateOffset
	cp.Position.Y += DuplicateOffset
	cp.Data = workflow.ResetGenerated(cp.Data)

	if gi := indexOf(g, cp.ParentID); gi >= 0 {
		size, s := nodeSize(g.Nodes[gi]), nodeSize(cp)
		w := math.Max(size.Width, cp.Position.X+s.Width+GroupPadding)
		h := math.Max(size.Height, cp.Position.Y+s.Height+GroupPadding)
		if w != size.Width || h != size.Height {
			g.Nodes[gi].Size = &workflow.Size{Width: w, Height: h}
		}
	}

	deselectAll(g)
	cp.Selected = true
	g.Nodes = append(g.Nodes, cp)
	return cp.ID
}

func copyNodes(g *workflow.Graph, ids []string) Clipboard {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, n := range g.Nodes {
		if n.ParentID != "" && want[n.ParentID] {
			want[n.ID] = true
		}
	}

	var c Clipboard
	for _, n := range g.Nodes {
		if !want[n.ID] {
			continue
		}
		cp := n.Clone()
		if cp.ParentID != "" && !want[cp.ParentID] {
			cp.Position = absolutePosition(g, n)
			cp.ParentID = ""
			cp.Extent = ""
		}
		cp.Selected = false
		c.Nodes = append(c.Nodes, cp)
	}
	for _, e := range g.Edges {
		if want[e.Source] && want[e.Target] {
			c.Edges = append(c.Edges, e)
		}
	}
	return c
}

func (d *Document) paste(g *workflow.Graph, c Clipboard) []string {
	byID := make(map[string]workflow.Node, len(c.Nodes))
	nodes := make([]workflow.Node, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID == "" || n.Data == nil || n.Data.Kind() != n.Type {
			continue
		}
		if _, dup := byID[n.ID]; dup {
			continue
		}
		byID[n.ID] = n
		nodes = append(nodes, n)
	}
	remap := make(map[string]string, len(nodes))
	for _, n := range nodes {
		remap[n.ID] = d.newID()
	}

	deselectAll(g)
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		cp := n.Clone()
		cp.ID = remap[n.ID]
		if p, ok := byID[n.ParentID]; ok && p.Type.Container() && !n.Type.Container() {
			cp.ParentID = remap[p.ID]
			cp.Extent = workflow.ExtentParent
		} else {
			cp.Position = clipboardPosition(byID, n)
			cp.Position.X += DuplicateOffset
			cp.Position.Y += DuplicateOffset
			cp.ParentID = ""
			cp.Extent = ""
		}
		cp.Data = workflow.ResetGenerated(cp.Data)
		cp.Selected = true
		g.Nodes = append(g.Nodes, cp)
		ids = append(ids, cp.ID)
	}

	for _, e := range c.Edges {
		src, ok1 := remap[e.Source]
		dst, ok2 := remap[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		e.Source, e.Target = src, dst
		checked, err := checkEdge(g, e)
		if err != nil {
			d.log.Debugw("dropping pasted edge", "source", src, "target", dst, "error", err)
			continue
		}
		if _, dup := findPair(g.Edges, src, dst); dup {
			continue
		}
		checked.ID = d.newID()
		g.Edges = append(g.Edges, checked)
	}
	return ids
}

// clipboardPosition resolves n against the chain of its ancestors inside the
// clipboard. A parent that was not copied contributes nothing.
func clipboardPosition(byID map[string]workflow.Node, n workflow.Node) workflow.Position {
	pos := n.Position
	seen := map[string]bool{n.ID: true}
	for p, ok := byID[n.ParentID]; ok && !seen[p.ID]; p, ok = byID[p.ParentID] {
		seen[p.ID] = true
		pos.X += p.Position.X
		pos.Y += p.Position.Y
	}
	return pos
}
