package graph

import (
	"testing"

	"github.com/meikuraledutech/workflow"
	"github.com/stretchr/testify/assert"
)

func TestRelevantEdges(t *testing.T) {
	nodes := []workflow.Node{textNode("b", "p"), textNode("c", "p")}
	edges := []workflow.Edge{edge("a", "b"), edge("b", "c"), edge("c", "d"), edge("x", "y")}

	got := RelevantEdges(nodes, edges)
	assert.Equal(t, []workflow.Edge{edge("a", "b"), edge("b", "c")}, got)
	assert.Equal(t, got, RelevantEdges(nodes, got), "filtering twice changes nothing")
}

func TestAggregateInputsPrefersSameRunOutput(t *testing.T) {
	nodes := []workflow.Node{
		{ID: "src", Type: workflow.NodeTypeSource, Data: &workflow.SourceData{Image: &workflow.ImageRef{ID: "u1", URL: "https://cdn/src.png"}}},
		{ID: "img", Type: workflow.NodeTypeImage, Data: &workflow.ImageData{Prompt: "p", GeneratedImage: &workflow.GeneratedImage{URL: "https://cdn/stale.png"}}},
		{ID: "txt", Type: workflow.NodeTypeText, Data: &workflow.TextData{Prompt: "p", Content: "persisted"}},
		textNode("sink", "p"),
	}
	edges := []workflow.Edge{edge("src", "sink"), edge("img", "sink"), edge("txt", "sink")}

	t.Run("persisted data", func(t *testing.T) {
		in := AggregateInputs("sink", nodes, edges, nil)
		assert.Equal(t, []workflow.ImageInput{
			{ID: "src", URL: "https://cdn/src.png"},
			{ID: "img", URL: "https://cdn/stale.png"},
		}, in.Images)
		assert.Equal(t, []workflow.TextInput{{ID: "txt", Content: "persisted"}}, in.Texts)
	})

	t.Run("fresh output wins", func(t *testing.T) {
		outputs := Outputs{
			"img": {ImageURL: "https://cdn/fresh.png"},
			"txt": {Text: "fresh"},
		}
		in := AggregateInputs("sink", nodes, edges, outputs)
		assert.Equal(t, []string{"https://cdn/src.png", "https://cdn/fresh.png"}, in.ImageURLs())
		assert.Equal(t, []workflow.TextInput{{ID: "txt", Content: "fresh"}}, in.Texts)
	})
}

func TestAggregateInputsSkipsEmptyAndDuplicates(t *testing.T) {
	nodes := []workflow.Node{
		{ID: "empty-src", Type: workflow.NodeTypeSource, Data: &workflow.SourceData{}},
		{ID: "blank", Type: workflow.NodeTypeText, Data: &workflow.TextData{Content: "   "}},
		{ID: "g", Type: workflow.NodeTypeGroup, Data: &workflow.GroupData{Name: "G"}},
		{ID: "txt", Type: workflow.NodeTypeText, Data: &workflow.TextData{Content: "hello"}},
		textNode("sink", "p"),
	}
	edges := []workflow.Edge{
		edge("empty-src", "sink"),
		edge("blank", "sink"),
		edge("g", "sink"),
		{ID: "e1", Source: "txt", Target: "sink", TargetHandle: workflow.HandleText},
		{ID: "e2", Source: "txt", Target: "sink", TargetHandle: workflow.HandleInput},
		edge("missing", "sink"),
	}

	in := AggregateInputs("sink", nodes, edges, nil)
	assert.Empty(t, in.Images)
	assert.Equal(t, []workflow.TextInput{{ID: "txt", Content: "hello"}}, in.Texts)
	assert.Empty(t, in.ImageURLs())
}

func TestValidatePrompts(t *testing.T) {
	nodes := []workflow.Node{
		{ID: "s", Type: workflow.NodeTypeSource, Data: &workflow.SourceData{}},
		{ID: "g", Type: workflow.NodeTypeGroup, Data: &workflow.GroupData{}},
		{ID: "t1", Type: workflow.NodeTypeText, Data: &workflow.TextData{Label: "Writer", Prompt: "  "}},
		{ID: "i1", Type: workflow.NodeTypeImage, Data: &workflow.ImageData{Prompt: ""}},
		textNode("ok", "fine"),
	}

	v := ValidatePrompts(nodes)
	assert.False(t, v.Valid)
	assert.Equal(t, []string{"Writer", "i1"}, v.Missing)
	assert.Equal(t, []string{"t1", "i1"}, v.MissingIDs)

	assert.True(t, ValidatePrompts(nodes[:2]).Valid)
	assert.True(t, ValidatePrompts(nil).Valid)
}

func TestSubsetHelpers(t *testing.T) {
	nodes := []workflow.Node{
		{ID: "g", Type: workflow.NodeTypeGroup, Data: &workflow.GroupData{}},
		{ID: "s", Type: workflow.NodeTypeSource, ParentID: "g", Data: &workflow.SourceData{}},
		{ID: "a", Type: workflow.NodeTypeText, ParentID: "g", Data: &workflow.TextData{}},
		{ID: "b", Type: workflow.NodeTypeImage, Data: &workflow.ImageData{}},
	}

	assert.Equal(t, []string{"s", "a"}, IDs(GroupChildren("g", nodes)))
	assert.Equal(t, []string{"a", "b"}, IDs(ExecutableNodes(nodes)))
	assert.Equal(t, []string{"g", "b"}, IDs(Select([]string{"b", "nope", "g"}, nodes)))
	assert.Empty(t, GroupChildren("b", nodes))
}
