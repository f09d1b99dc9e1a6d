package graph

import (
	"strings"

	"github.com/meikuraledutech/workflow"
)

// Output is what a node produced earlier in the current run.
type Output struct {
	Text     string
	ImageURL string
}

// Outputs maps node id to its same-run output.
type Outputs map[string]Output

// Inputs is the upstream data visible to one node.
type Inputs struct {
	Images []workflow.ImageInput
	Texts  []workflow.TextInput
}

// RelevantEdges returns every edge whose target lies in nodes, wherever its source is.
// Edges coming from outside the subset let a group consume inputs produced elsewhere.
func RelevantEdges(nodes []workflow.Node, edges []workflow.Edge) []workflow.Edge {
	in := idSet(nodes)
	out := make([]workflow.Edge, 0, len(edges))
	for _, e := range edges {
		if in[e.Target] {
			out = append(out, e)
		}
	}
	return out
}

// AggregateInputs collects the images and texts flowing into nodeID. For each upstream
// node a same-run output in outputs wins over the node's persisted data. Upstream
// nodes contribute at most one entry each.
func AggregateInputs(nodeID string, nodes []workflow.Node, edges []workflow.Edge, outputs Outputs) Inputs {
	byID := make(map[string]workflow.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var in Inputs
	seen := make(map[string]bool)
	for _, e := range edges {
		if e.Target != nodeID || seen[e.Source] {
			continue
		}
		seen[e.Source] = true

		if out, ok := outputs[e.Source]; ok {
			if out.ImageURL != "" {
				in.Images = append(in.Images, workflow.ImageInput{ID: e.Source, URL: out.ImageURL})
			}
			if strings.TrimSpace(out.Text) != "" {
				in.Texts = append(in.Texts, workflow.TextInput{ID: e.Source, Content: out.Text})
			}
			continue
		}

		up, ok := byID[e.Source]
		if !ok {
			continue
		}
		switch d := up.Data.(type) {
		case *workflow.SourceData:
			if d.Image != nil && d.Image.URL != "" {
				in.Images = append(in.Images, workflow.ImageInput{ID: up.ID, URL: d.Image.URL})
			}
		case *workflow.ImageData:
			if d.GeneratedImage != nil && d.GeneratedImage.URL != "" {
				in.Images = append(in.Images, workflow.ImageInput{ID: up.ID, URL: d.GeneratedImage.URL})
			}
		case *workflow.TextData:
			if strings.TrimSpace(d.Content) != "" {
				in.Texts = append(in.Texts, workflow.TextInput{ID: up.ID, Content: d.Content})
			}
		case *workflow.GroupData:
		}
	}
	return in
}

// ImageURLs returns the URLs of in.Images in order.
func (in Inputs) ImageURLs() []string {
	urls := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		urls = append(urls, img.URL)
	}
	return urls
}

func idSet(nodes []workflow.Node) map[string]bool {
	set := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		set[n.ID] = true
	}
	return set
}
