package document

import (
	"math"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/graph"
)

// Layout constants, in canvas units.
const (
	GroupPadding      = 40.0
	GroupHeaderHeight = 40.0
	DuplicateOffset   = 50.0
	DefaultNodeWidth  = 300.0
	DefaultNodeHeight = 200.0
)

// DefaultGroupName is the name given to groups created by Group.
const DefaultGroupName = "Group"

// Group wraps at least two top-level nodes in a new group sized to contain them.
// Ids that already belong to a group, are groups themselves or do not exist are
// skipped; when fewer than two remain the call is a no-op returning false.
func (d *Document) Group(ids []string) (string, bool) {
	var groupID string
	_, ok, _ := d.apply(EventGrouped, func(g *workflow.Graph) ([]string, bool, error) {
		members := freeNodes(g, ids, "")
		if len(members) < 2 {
			return nil, false, nil
		}

		box := bounds(g, members)
		origin := workflow.Position{
			X: box.minX - GroupPadding,
			Y: box.minY - GroupPadding - GroupHeaderHeight,
		}
		groupID = d.newID()
		group := workflow.Node{
			ID:       groupID,
			Type:     workflow.NodeTypeGroup,
			Position: origin,
			Size: &workflow.Size{
				Width:  box.maxX - box.minX + 2*GroupPadding,
				Height: box.maxY - box.minY + 2*GroupPadding + GroupHeaderHeight,
			},
			Selected: true,
			Data:     &workflow.GroupData{Name: DefaultGroupName},
		}

		deselectAll(g)
		touched := []string{groupID}
		for _, i := range members {
			n := &g.Nodes[i]
			n.Position.X -= origin.X
			n.Position.Y -= origin.Y
			n.ParentID = groupID
			n.Extent = workflow.ExtentParent
			touched = append(touched, n.ID)
		}
		g.Nodes = append(g.Nodes, group)
		return touched, true, nil
	})
	return groupID, ok
}

// Ungroup dissolves a group: children get absolute positions back, lose their parent
// and become the selection, and the group node is removed. It reports false when
// groupID is not a group.
func (d *Document) Ungroup(groupID string) bool {
	_, ok, _ := d.apply(EventUngrouped, func(g *workflow.Graph) ([]string, bool, error) {
		gi := indexOf(g, groupID)
		if gi < 0 || !g.Nodes[gi].Type.Container() {
			return nil, false, nil
		}
		origin := g.Nodes[gi].Position

		var freed []string
		for i := range g.Nodes {
			n := &g.Nodes[i]
			n.Selected = false
			if n.ParentID != groupID {
				continue
			}
			n.Position.X += origin.X
			n.Position.Y += origin.Y
			n.ParentID = ""
			n.Extent = ""
			n.Selected = true
			freed = append(freed, n.ID)
		}
		removeNodes(g, map[string]bool{groupID: true})
		return freed, true, nil
	})
	return ok
}

// AddToGroup moves top-level nodes into an existing group, growing the group to fit.
// When the group has to grow up or left its origin moves, and existing children are
// shifted so their absolute positions stay put. It reports false when groupID is not
// a group or no id names a free node.
func (d *Document) AddToGroup(groupID string, ids []string) bool {
	_, ok, _ := d.apply(EventAddedToGroup, func(g *workflow.Graph) ([]string, bool, error) {
		gi := indexOf(g, groupID)
		if gi < 0 || !g.Nodes[gi].Type.Container() {
			return nil, false, nil
		}
		members := freeNodes(g, ids, groupID)
		if len(members) == 0 {
			return nil, false, nil
		}

		grp := g.Nodes[gi]
		size := nodeSize(grp)
		box := bounds(g, members)

		origin := workflow.Position{
			X: math.Min(grp.Position.X, box.minX-GroupPadding),
			Y: math.Min(grp.Position.Y, box.minY-GroupPadding-GroupHeaderHeight),
		}
		right := math.Max(grp.Position.X+size.Width, box.maxX+GroupPadding)
		bottom := math.Max(grp.Position.Y+size.Height, box.maxY+GroupPadding)
		shiftX := grp.Position.X - origin.X
		shiftY := grp.Position.Y - origin.Y

		if shiftX != 0 || shiftY != 0 {
			for i := range g.Nodes {
				if g.Nodes[i].ParentID == groupID {
					g.Nodes[i].Position.X += shiftX
					g.Nodes[i].Position.Y += shiftY
				}
			}
		}
		g.Nodes[gi].Position = origin
		g.Nodes[gi].Size = &workflow.Size{Width: right - origin.X, Height: bottom - origin.Y}

		touched := []string{groupID}
		for _, i := range members {
			n := &g.Nodes[i]
			n.Position.X -= origin.X
			n.Position.Y -= origin.Y
			n.ParentID = groupID
			n.Extent = workflow.ExtentParent
			touched = append(touched, n.ID)
		}
		return touched, true, nil
	})
	return ok
}

// GroupChildren returns the current children of a group in document order.
func (d *Document) GroupChildren(groupID string) []workflow.Node {
	g := d.Snapshot()
	return graph.GroupChildren(groupID, g.Nodes)
}

// freeNodes returns the indexes of the nodes named by ids that are top-level,
// non-group nodes other than skip. Duplicates are collapsed.
func freeNodes(g *workflow.Graph, ids []string, skip string) []int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []int
	for i, n := range g.Nodes {
		if !want[n.ID] || n.ID == skip || n.ParentID != "" || n.Type.Container() {
			continue
		}
		out = append(out, i)
	}
	return out
}

type rect struct {
	minX, minY, maxX, maxY float64
}

// bounds is the bounding box of the given top-level nodes.
func bounds(g *workflow.Graph, idx []int) rect {
	b := rect{
		minX: math.Inf(1), minY: math.Inf(1),
		maxX: math.Inf(-1), maxY: math.Inf(-1),
	}
	for _, i := range idx {
		n := g.Nodes[i]
		s := nodeSize(n)
		b.minX = math.Min(b.minX, n.Position.X)
		b.minY = math.Min(b.minY, n.Position.Y)
		b.maxX = math.Max(b.maxX, n.Position.X+s.Width)
		b.maxY = math.Max(b.maxY, n.Position.Y+s.Height)
	}
	return b
}

// nodeSize prefers the explicit size, then the measured size, then the defaults.
func nodeSize(n workflow.Node) workflow.Size {
	switch {
	case n.Size != nil:
		return *n.Size
	case n.Measured != nil:
		return *n.Measured
	}
	return workflow.Size{Width: DefaultNodeWidth, Height: DefaultNodeHeight}
}

// absolutePosition resolves a node's position against its parent, if any.
func absolutePosition(g *workflow.Graph, n workflow.Node) workflow.Position {
	if n.ParentID == "" {
		return n.Position
	}
	p, ok := g.Node(n.ParentID)
	if !ok {
		return n.Position
	}
	return workflow.Position{X: p.Position.X + n.Position.X, Y: p.Position.Y + n.Position.Y}
}
