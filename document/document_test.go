package document

import (
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/meikuraledutech/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestDoc(t *testing.T) *Document {
	t.Helper()
	n := 0
	return New(
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

func mustAdd(t *testing.T, d *Document, n workflow.Node) string {
	t.Helper()
	id, err := d.AddNode(n)
	require.NoError(t, err)
	return id
}

func node(t *testing.T, d *Document, id string) workflow.Node {
	t.Helper()
	n, ok := d.Snapshot().Node(id)
	require.True(t, ok, "node %s", id)
	return n
}

func TestAddNode(t *testing.T) {
	d := newTestDoc(t)

	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
	b := mustAdd(t, d, workflow.Node{ID: "custom", Type: workflow.NodeTypeImage})

	assert.Equal(t, "id-1", a)
	assert.Equal(t, "custom", b)
	assert.Equal(t, []string{"custom"}, d.SelectedIDs(), "new node is the only selection")
	assert.Equal(t, workflow.StatusIdle, workflow.StatusOf(node(t, d, a).Data))

	t.Run("duplicate id", func(t *testing.T) {
		_, err := d.AddNode(workflow.Node{ID: "custom", Type: workflow.NodeTypeText})
		assert.True(t, errors.Is(err, ErrDuplicateID))
	})

	t.Run("data must match type", func(t *testing.T) {
		_, err := d.AddNode(workflow.Node{Type: workflow.NodeTypeText, Data: &workflow.ImageData{}})
		assert.True(t, errors.Is(err, ErrInvalidNode))
	})

	t.Run("parent must be a group", func(t *testing.T) {
		_, err := d.AddNode(workflow.Node{Type: workflow.NodeTypeText, ParentID: a})
		assert.True(t, errors.Is(err, ErrInvalidGroup))

		_, err = d.AddNode(workflow.Node{Type: workflow.NodeTypeText, ParentID: "nope"})
		assert.True(t, errors.Is(err, workflow.ErrNodeNotFound))
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := d.AddNode(workflow.Node{Type: "video"})
		assert.Error(t, err)
	})
}

func TestAddNodeKeepsParentsFirst(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 0, Y: 0}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 500, Y: 0}})
	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)

	c := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeImage, ParentID: gid})
	snap := d.Snapshot()
	pos := map[string]int{}
	for i, n := range snap.Nodes {
		pos[n.ID] = i
	}
	for _, child := range []string{a, b, c} {
		assert.Less(t, pos[gid], pos[child])
	}
	assert.Equal(t, workflow.ExtentParent, node(t, d, c).Extent, "a child added to a group is constrained to it")

	free := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Extent: workflow.ExtentParent})
	assert.Empty(t, node(t, d, free).Extent)
}

func TestUpdateNodeData(t *testing.T) {
	d := newTestDoc(t)
	id := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})

	require.NoError(t, d.UpdateNodeData(id, func(nd workflow.NodeData) workflow.NodeData {
		return workflow.WithStatus(nd, workflow.StatusError, "boom")
	}))
	assert.Equal(t, "boom", workflow.ErrorOf(node(t, d, id).Data))

	err := d.UpdateNodeData(id, func(workflow.NodeData) workflow.NodeData { return &workflow.GroupData{} })
	assert.True(t, errors.Is(err, ErrInvalidNode))

	err = d.UpdateNodeData("missing", func(nd workflow.NodeData) workflow.NodeData { return nd })
	assert.True(t, errors.Is(err, workflow.ErrNodeNotFound))
}

func TestUpdateNodeCannotChangeIdentity(t *testing.T) {
	d := newTestDoc(t)
	id := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})

	require.NoError(t, d.UpdateNode(id, func(n *workflow.Node) {
		n.ID = "other"
		n.Type = workflow.NodeTypeImage
		n.Position = workflow.Position{X: 7, Y: 8}
		n.Data.(*workflow.TextData).Prompt = "hello"
	}))
	n := node(t, d, id)
	assert.Equal(t, workflow.NodeTypeText, n.Type)
	assert.Equal(t, workflow.Position{X: 7, Y: 8}, n.Position)
	assert.Equal(t, "hello", workflow.PromptOf(n.Data))
}

func TestDeleteNodeCascades(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 400}})
	c := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeImage, Position: workflow.Position{X: 800}})
	_, err := d.Connect(workflow.Edge{Source: a, Target: b})
	require.NoError(t, err)
	_, err = d.Connect(workflow.Edge{Source: b, Target: c})
	require.NoError(t, err)

	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)
	require.True(t, d.DeleteNode(gid))

	snap := d.Snapshot()
	assert.Equal(t, []string{c}, nodeIDs(snap.Nodes))
	assert.Empty(t, snap.Edges)
	assert.Empty(t, d.SelectedIDs())
	assert.False(t, d.DeleteNode(gid), "second delete is a no-op")
}

func TestConnect(t *testing.T) {
	d := newTestDoc(t)
	src := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeSource, Data: &workflow.SourceData{
		Image: &workflow.ImageRef{ID: "up", URL: "https://cdn/up.png"},
	}})
	txt := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
	grp := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeGroup})

	id, err := d.Connect(workflow.Edge{Source: src, Target: txt, TargetHandle: "whatever"})
	require.NoError(t, err)

	snap := d.Snapshot()
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, workflow.HandleInput, snap.Edges[0].TargetHandle)
	assert.Equal(t, workflow.HandleImage, snap.Edges[0].SourceHandle)

	t.Run("connected views follow edges", func(t *testing.T) {
		td := node(t, d, txt).Data.(*workflow.TextData)
		assert.Equal(t, []workflow.ImageInput{{ID: src, URL: "https://cdn/up.png"}}, td.ConnectedSourceImages)
	})

	t.Run("duplicate pair is a no-op", func(t *testing.T) {
		again, err := d.Connect(workflow.Edge{Source: src, Target: txt})
		require.NoError(t, err)
		assert.Equal(t, id, again)
		assert.Len(t, d.Snapshot().Edges, 1)
	})

	t.Run("self loop", func(t *testing.T) {
		_, err := d.Connect(workflow.Edge{Source: txt, Target: txt})
		assert.True(t, errors.Is(err, workflow.ErrSelfLoop))
	})

	t.Run("missing endpoint", func(t *testing.T) {
		_, err := d.Connect(workflow.Edge{Source: "ghost", Target: txt})
		assert.True(t, errors.Is(err, workflow.ErrNodeNotFound))
	})

	t.Run("groups and sources as targets", func(t *testing.T) {
		_, err := d.Connect(workflow.Edge{Source: txt, Target: grp})
		assert.True(t, errors.Is(err, ErrInvalidEdge))
		_, err = d.Connect(workflow.Edge{Source: txt, Target: src})
		assert.True(t, errors.Is(err, ErrInvalidEdge))
	})

	t.Run("disconnect clears views", func(t *testing.T) {
		require.True(t, d.Disconnect(id))
		assert.False(t, d.Disconnect(id))
		td := node(t, d, txt).Data.(*workflow.TextData)
		assert.Empty(t, td.ConnectedSourceImages)
	})
}

func TestGroupGeometry(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 100, Y: 100}, Measured: &workflow.Size{Width: 200, Height: 100}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeImage, Position: workflow.Position{X: 400, Y: 300}})

	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)

	g := node(t, d, gid)
	assert.Equal(t, workflow.Position{X: 60, Y: 20}, g.Position)
	assert.Equal(t, &workflow.Size{Width: 680, Height: 520}, g.Size)
	assert.Equal(t, DefaultGroupName, g.DisplayName())
	assert.Equal(t, []string{gid}, d.SelectedIDs())

	na, nb := node(t, d, a), node(t, d, b)
	assert.Equal(t, workflow.Position{X: 40, Y: 80}, na.Position)
	assert.Equal(t, workflow.Position{X: 340, Y: 280}, nb.Position)
	assert.Equal(t, gid, na.ParentID)
	assert.Equal(t, workflow.ExtentParent, nb.Extent)
	assert.Len(t, d.GroupChildren(gid), 2)
}

func TestGroupNeedsTwoFreeNodes(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
	c := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)

	before := d.Version()
	_, ok = d.Group([]string{a, c})
	assert.False(t, ok, "a is already grouped, only c is free")
	_, ok = d.Group([]string{c, "ghost"})
	assert.False(t, ok)
	_, ok = d.Group([]string{gid, c})
	assert.False(t, ok, "groups cannot be nested")
	assert.Equal(t, before, d.Version(), "no-ops do not commit")
}

func TestGroupUngroupRoundTrip(t *testing.T) {
	d := newTestDoc(t)
	start := map[string]workflow.Position{}
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 12.5, Y: -40.25}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeSource, Position: workflow.Position{X: -310.1, Y: 220.7}, Measured: &workflow.Size{Width: 120, Height: 80}})
	start[a] = node(t, d, a).Position
	start[b] = node(t, d, b).Position

	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)
	require.True(t, d.Ungroup(gid))

	for id, want := range start {
		n := node(t, d, id)
		assert.InDelta(t, want.X, n.Position.X, 1e-9)
		assert.InDelta(t, want.Y, n.Position.Y, 1e-9)
		assert.Empty(t, n.ParentID)
		assert.Empty(t, n.Extent)
	}
	_, exists := d.Snapshot().Node(gid)
	assert.False(t, exists)
	assert.ElementsMatch(t, []string{a, b}, d.SelectedIDs())
	assert.False(t, d.Ungroup(gid))
	assert.False(t, d.Ungroup(a), "not a group")
}

func TestAddToGroupGrowsUpAndLeft(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 100, Y: 100}, Measured: &workflow.Size{Width: 200, Height: 100}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeImage, Position: workflow.Position{X: 400, Y: 300}})
	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)

	c := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 0, Y: 0}})
	require.True(t, d.AddToGroup(gid, []string{c, a, "ghost"}))

	g := node(t, d, gid)
	assert.Equal(t, workflow.Position{X: -40, Y: -80}, g.Position)
	assert.Equal(t, &workflow.Size{Width: 780, Height: 620}, g.Size)

	na, nc := node(t, d, a), node(t, d, c)
	assert.Equal(t, workflow.Position{X: 140, Y: 180}, na.Position, "existing child keeps its absolute position")
	assert.Equal(t, workflow.Position{X: 40, Y: 80}, nc.Position)
	assert.Equal(t, gid, nc.ParentID)

	assert.False(t, d.AddToGroup(gid, []string{a}), "already a member")
	assert.False(t, d.AddToGroup(a, []string{c}), "not a group")
}

func TestAddToGroupInsideBoundsKeepsOrigin(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 0, Y: 0}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 1000, Y: 1000}})
	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)
	before := node(t, d, gid)

	c := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeImage, Position: workflow.Position{X: 500, Y: 500}})
	require.True(t, d.AddToGroup(gid, []string{c}))

	after := node(t, d, gid)
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.Size, after.Size)
	assert.Equal(t, workflow.Position{X: 40, Y: 80}, node(t, d, a).Position)
	assert.Equal(t, workflow.Position{X: 540, Y: 580}, node(t, d, c).Position)
}

func TestDuplicateResetsGeneration(t *testing.T) {
	d := newTestDoc(t)
	img := mustAdd(t, d, workflow.Node{
		Type:     workflow.NodeTypeImage,
		Position: workflow.Position{X: 10, Y: 20},
		Data: &workflow.ImageData{
			Prompt:                 "draw",
			Model:                  "bfl:2@1",
			GeneratedImage:         &workflow.GeneratedImage{URL: "https://cdn/out.png", Key: "out.png"},
			GeneratedImageMetadata: &workflow.ImageMetadata{Width: 1024, Height: 768},
			Status:                 workflow.StatusCompleted,
		},
	})

	dup, ok := d.Duplicate(img)
	require.True(t, ok)
	assert.NotEqual(t, img, dup)

	n := node(t, d, dup)
	data := n.Data.(*workflow.ImageData)
	assert.Nil(t, data.GeneratedImage)
	assert.Nil(t, data.GeneratedImageMetadata)
	assert.Equal(t, workflow.StatusIdle, data.Status)
	assert.Equal(t, "draw", data.Prompt)
	assert.Equal(t, workflow.Position{X: 10 + DuplicateOffset, Y: 20 + DuplicateOffset}, n.Position)
	assert.Equal(t, []string{dup}, d.SelectedIDs())

	orig := node(t, d, img).Data.(*workflow.ImageData)
	assert.NotNil(t, orig.GeneratedImage, "original keeps its result")

	_, ok = d.Duplicate("ghost")
	assert.False(t, ok)
}

func TestDuplicateGroupKeepsStructure(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Data: &workflow.TextData{Prompt: "p", Content: "old"}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeImage, Position: workflow.Position{X: 400}})
	_, err := d.Connect(workflow.Edge{Source: a, Target: b})
	require.NoError(t, err)
	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)
	oldGroup := node(t, d, gid)

	newGroup, ok := d.Duplicate(gid)
	require.True(t, ok)

	ng := node(t, d, newGroup)
	assert.Equal(t, oldGroup.Position.X+DuplicateOffset, ng.Position.X)
	kids := d.GroupChildren(newGroup)
	require.Len(t, kids, 2)
	assert.Equal(t, node(t, d, a).Position, kids[0].Position, "children stay relative to the new group")
	assert.Empty(t, kids[0].Data.(*workflow.TextData).Content)

	snap := d.Snapshot()
	require.Len(t, snap.Edges, 2)
	copied := snap.Edges[1]
	assert.Equal(t, kids[0].ID, copied.Source)
	assert.Equal(t, kids[1].ID, copied.Target)
}

func TestDuplicateGroupedChildStaysInGroup(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 100, Y: 100}, Measured: &workflow.Size{Width: 200, Height: 100}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeImage, Position: workflow.Position{X: 400, Y: 300}})
	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)

	t.Run("fits inside the group", func(t *testing.T) {
		dup, ok := d.Duplicate(a)
		require.True(t, ok)
		n := node(t, d, dup)
		assert.Equal(t, gid, n.ParentID)
		assert.Equal(t, workflow.ExtentParent, n.Extent)
		assert.Equal(t, workflow.Position{X: 90, Y: 130}, n.Position)
		assert.Equal(t, &workflow.Size{Width: 680, Height: 520}, node(t, d, gid).Size)
		assert.Equal(t, []string{dup}, d.SelectedIDs())
	})

	t.Run("group grows to fit", func(t *testing.T) {
		dup, ok := d.Duplicate(b)
		require.True(t, ok)
		n := node(t, d, dup)
		assert.Equal(t, gid, n.ParentID)
		assert.Equal(t, workflow.Position{X: 390, Y: 330}, n.Position)
		assert.Equal(t, workflow.Position{X: 60, Y: 20}, node(t, d, gid).Position)
		assert.Equal(t, &workflow.Size{Width: 730, Height: 570}, node(t, d, gid).Size)
	})

	assert.Len(t, d.GroupChildren(gid), 4)
}

func TestCopyPaste(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 0, Y: 0}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 400, Y: 0}})
	c := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Position: workflow.Position{X: 800, Y: 0}})
	_, err := d.Connect(workflow.Edge{Source: a, Target: b})
	require.NoError(t, err)
	_, err = d.Connect(workflow.Edge{Source: b, Target: c})
	require.NoError(t, err)
	gid, ok := d.Group([]string{a, b})
	require.True(t, ok)
	groupPos := node(t, d, gid).Position

	t.Run("child copied alone becomes top-level", func(t *testing.T) {
		clip := d.Copy([]string{b})
		require.Len(t, clip.Nodes, 1)
		assert.Empty(t, clip.Nodes[0].ParentID)
		assert.Equal(t, workflow.Position{X: 400, Y: 0}, clip.Nodes[0].Position)
		assert.Empty(t, clip.Edges)

		ids := d.Paste(clip)
		require.Len(t, ids, 1)
		assert.Equal(t, workflow.Position{X: 450, Y: 50}, node(t, d, ids[0]).Position)
	})

	t.Run("edges between copied nodes survive", func(t *testing.T) {
		clip := d.Copy([]string{b, c})
		require.Len(t, clip.Edges, 1)
		before := len(d.Snapshot().Edges)

		ids := d.Paste(clip)
		require.Len(t, ids, 2)
		snap := d.Snapshot()
		require.Len(t, snap.Edges, before+1)
		last := snap.Edges[len(snap.Edges)-1]
		assert.Equal(t, ids[0], last.Source)
		assert.Equal(t, ids[1], last.Target)
		assert.ElementsMatch(t, ids, d.SelectedIDs())
	})

	t.Run("group copy includes children", func(t *testing.T) {
		clip := d.Copy([]string{gid})
		require.Len(t, clip.Nodes, 3)
		assert.Equal(t, groupPos, clip.Nodes[0].Position)
	})

	assert.Nil(t, d.Paste(Clipboard{}))
}

func TestPasteSanitizesClipboard(t *testing.T) {
	text := func() workflow.NodeData { return &workflow.TextData{Prompt: "p"} }

	t.Run("repeated ids keep the first node", func(t *testing.T) {
		d := newTestDoc(t)
		ids := d.Paste(Clipboard{Nodes: []workflow.Node{
			{ID: "x", Type: workflow.NodeTypeText, Data: text()},
			{ID: "x", Type: workflow.NodeTypeImage, Data: &workflow.ImageData{}},
		}})
		require.Len(t, ids, 1)
		assert.Equal(t, workflow.NodeTypeText, node(t, d, ids[0]).Type)
		assert.Len(t, d.Snapshot().Nodes, 1)
	})

	t.Run("parent that is not a group is dropped", func(t *testing.T) {
		d := newTestDoc(t)
		ids := d.Paste(Clipboard{
			Nodes: []workflow.Node{
				{ID: "p", Type: workflow.NodeTypeText, Position: workflow.Position{X: 100, Y: 100}, Data: text()},
				{ID: "k", Type: workflow.NodeTypeImage, ParentID: "p", Extent: workflow.ExtentParent, Position: workflow.Position{X: 10, Y: 20}, Data: &workflow.ImageData{}},
			},
			Edges: []workflow.Edge{
				{ID: "loop", Source: "k", Target: "k"},
				{ID: "e1", Source: "p", Target: "k", TargetHandle: "prompt"},
				{ID: "e2", Source: "p", Target: "k"},
			},
		})
		require.Len(t, ids, 2)
		k := node(t, d, ids[1])
		assert.Empty(t, k.ParentID)
		assert.Empty(t, k.Extent)
		assert.Equal(t, workflow.Position{X: 160, Y: 170}, k.Position)

		edges := d.Snapshot().Edges
		require.Len(t, edges, 1)
		assert.Equal(t, ids[0], edges[0].Source)
		assert.Equal(t, ids[1], edges[0].Target)
		assert.Equal(t, workflow.HandleInput, edges[0].TargetHandle)
		assert.Equal(t, workflow.HandleText, edges[0].SourceHandle)
		assert.NotEqual(t, "e1", edges[0].ID)
	})

	t.Run("nested groups are flattened", func(t *testing.T) {
		d := newTestDoc(t)
		ids := d.Paste(Clipboard{Nodes: []workflow.Node{
			{ID: "g1", Type: workflow.NodeTypeGroup, Data: &workflow.GroupData{}},
			{ID: "g2", Type: workflow.NodeTypeGroup, ParentID: "g1", Extent: workflow.ExtentParent, Position: workflow.Position{X: 20, Y: 60}, Data: &workflow.GroupData{}},
			{ID: "c", Type: workflow.NodeTypeText, ParentID: "g2", Position: workflow.Position{X: 5, Y: 5}, Data: text()},
		}})
		require.Len(t, ids, 3)
		g2 := node(t, d, ids[1])
		assert.Empty(t, g2.ParentID)
		assert.Empty(t, g2.Extent)
		assert.Equal(t, workflow.Position{X: 70, Y: 110}, g2.Position)

		c := node(t, d, ids[2])
		assert.Equal(t, ids[1], c.ParentID)
		assert.Equal(t, workflow.ExtentParent, c.Extent)
		assert.Equal(t, workflow.Position{X: 5, Y: 5}, c.Position)
	})

	t.Run("edges Connect would refuse are dropped", func(t *testing.T) {
		d := newTestDoc(t)
		ids := d.Paste(Clipboard{
			Nodes: []workflow.Node{
				{ID: "t", Type: workflow.NodeTypeText, Data: text()},
				{ID: "s", Type: workflow.NodeTypeSource, Data: &workflow.SourceData{}},
				{ID: "g", Type: workflow.NodeTypeGroup, Data: &workflow.GroupData{}},
			},
			Edges: []workflow.Edge{
				{Source: "t", Target: "s"},
				{Source: "t", Target: "g"},
				{Source: "s", Target: "t"},
				{Source: "t", Target: "ghost"},
			},
		})
		require.Len(t, ids, 3)
		edges := d.Snapshot().Edges
		require.Len(t, edges, 1)
		assert.Equal(t, ids[1], edges[0].Source)
		assert.Equal(t, ids[0], edges[0].Target)
		assert.Equal(t, workflow.HandleImage, edges[0].SourceHandle)
	})

	t.Run("nothing usable is a no-op", func(t *testing.T) {
		d := newTestDoc(t)
		mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
		version := d.Version()
		ids := d.Paste(Clipboard{Nodes: []workflow.Node{
			{ID: "", Type: workflow.NodeTypeText, Data: text()},
			{ID: "m", Type: workflow.NodeTypeText, Data: &workflow.ImageData{}},
		}})
		assert.Empty(t, ids)
		assert.Equal(t, version, d.Version())
		assert.Len(t, d.SelectedIDs(), 1, "selection untouched")
	})
}

func TestClearAndSelect(t *testing.T) {
	d := newTestDoc(t)
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})

	d.Select([]string{a, b, "ghost"})
	assert.Equal(t, []string{a, b}, d.SelectedIDs())

	d.Clear()
	snap := d.Snapshot()
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Edges)
}

func TestExportImport(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	d := New(WithClock(func() time.Time { return now }))
	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText, Data: &workflow.TextData{Prompt: "p"}})
	b := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeImage, Position: workflow.Position{X: 400}})
	_, err := d.Connect(workflow.Edge{Source: a, Target: b})
	require.NoError(t, err)
	_, ok := d.Group([]string{a, b})
	require.True(t, ok)

	out, err := d.Export()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"exportedAt": "2026-10-19T09:30:00Z"`)
	assert.Contains(t, string(out), `"version": "1.0"`)

	other := New()
	require.NoError(t, other.Import(out))
	assert.Equal(t, d.Snapshot(), other.Snapshot())

	t.Run("children listed before their group are reordered", func(t *testing.T) {
		payload := `{"nodes":[
			{"id":"c","type":"text","parentId":"g","data":{"prompt":"x"}},
			{"id":"g","type":"group","data":{"name":"G"}}
		],"edges":[]}`
		fresh := New()
		require.NoError(t, fresh.Import([]byte(payload)))
		assert.Equal(t, []string{"g", "c"}, nodeIDs(fresh.Snapshot().Nodes))
		assert.Equal(t, workflow.ExtentParent, node(t, fresh, "c").Extent)
	})

	t.Run("edge handles are normalized", func(t *testing.T) {
		payload := `{"nodes":[
			{"id":"a","type":"text","data":{"prompt":"x"}},
			{"id":"b","type":"image","data":{"prompt":"y"}}
		],"edges":[{"id":"e","source":"a","target":"b","targetHandle":"prompt"}]}`
		fresh := New()
		require.NoError(t, fresh.Import([]byte(payload)))
		edges := fresh.Snapshot().Edges
		require.Len(t, edges, 1)
		assert.Equal(t, workflow.HandleInput, edges[0].TargetHandle)
		assert.Equal(t, workflow.HandleText, edges[0].SourceHandle)
	})

	t.Run("bad payloads leave the document alone", func(t *testing.T) {
		before := d.Snapshot()
		for _, payload := range []string{
			`{"nodes":`,
			`{"nodes":[{"id":"c","type":"text","parentId":"ghost"}],"edges":[]}`,
			`{"nodes":[{"id":"g","type":"group"},{"id":"h","type":"group","parentId":"g"}],"edges":[]}`,
			`{"nodes":[{"id":"a","type":"text"}],"edges":[{"id":"e","source":"a","target":"a"}]}`,
			`{"nodes":[{"id":"a","type":"text"},{"id":"s","type":"source"}],"edges":[{"id":"e","source":"a","target":"s"}]}`,
			`{"nodes":[{"id":"a","type":"text"},{"id":"b","type":"image"}],"edges":[` +
				`{"id":"e1","source":"a","target":"b"},{"id":"e2","source":"a","target":"b"}]}`,
			`{"nodes":[{"id":"a","type":"text"},{"id":"g","type":"group"}],"edges":[{"id":"e","source":"a","target":"g"}]}`,
		} {
			err := d.Import([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, workflow.ErrInvalidWorkflowFile))
			assert.Contains(t, err.Error(), "Invalid workflow file")
		}
		assert.Equal(t, before, d.Snapshot())
	})
}

func TestSubscribe(t *testing.T) {
	d := newTestDoc(t)
	var got []Event
	cancel := d.Subscribe(func(ev Event) { got = append(got, ev) })

	a := mustAdd(t, d, workflow.Node{Type: workflow.NodeTypeText})
	d.Group([]string{a}) // no-op, no event
	require.NoError(t, d.UpdateNodeData(a, func(nd workflow.NodeData) workflow.NodeData {
		return workflow.WithStatus(nd, workflow.StatusProcessing, "")
	}))

	require.Len(t, got, 2)
	assert.Equal(t, EventNodeAdded, got[0].Kind)
	assert.Equal(t, []string{a}, got[0].IDs)
	assert.Equal(t, EventNodeDataChanged, got[1].Kind)
	assert.Equal(t, 2, got[1].Version)
	assert.Equal(t, workflow.StatusProcessing, workflow.StatusOf(got[1].Graph.Nodes[0].Data))

	got[1].Graph.Nodes[0].Data = nil
	assert.NotNil(t, node(t, d, a).Data, "event snapshot is a copy")

	cancel()
	cancel()
	d.Clear()
	assert.Len(t, got, 2)
}

func TestSortParentsFirst(t *testing.T) {
	in := []workflow.Node{
		{ID: "c1", ParentID: "g1"},
		{ID: "x"},
		{ID: "c2", ParentID: "g2"},
		{ID: "g1"},
		{ID: "orphan", ParentID: "gone"},
		{ID: "g2"},
		{ID: "c3", ParentID: "g1"},
	}
	out := SortParentsFirst(in)
	assert.Equal(t, []string{"x", "g1", "c1", "orphan", "g2", "c2", "c3"}, nodeIDs(out))

	loop := []workflow.Node{{ID: "a", ParentID: "b"}, {ID: "b", ParentID: "a"}}
	assert.Equal(t, []string{"a", "b"}, nodeIDs(SortParentsFirst(loop)))
}

func nodeIDs(nodes []workflow.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
