package graph

import (
	"strings"

	"github.com/meikuraledutech/workflow"
)

// PromptValidation reports which executable nodes lack a prompt.
type PromptValidation struct {
	Valid bool
	// Missing holds display names; MissingIDs the matching node ids.
	Missing    []string
	MissingIDs []string
}

// ValidatePrompts flags every text or image node whose prompt is empty or whitespace.
// Source and group nodes are exempt.
func ValidatePrompts(nodes []workflow.Node) PromptValidation {
	v := PromptValidation{Valid: true}
	for _, n := range nodes {
		if !n.Type.Executable() {
			continue
		}
		if strings.TrimSpace(workflow.PromptOf(n.Data)) == "" {
			v.Valid = false
			v.Missing = append(v.Missing, n.DisplayName())
			v.MissingIDs = append(v.MissingIDs, n.ID)
		}
	}
	return v
}

// GroupChildren returns the nodes whose parent is groupID, in input order.
func GroupChildren(groupID string, nodes []workflow.Node) []workflow.Node {
	var out []workflow.Node
	for _, n := range nodes {
		if n.ParentID == groupID {
			out = append(out, n)
		}
	}
	return out
}

// ExecutableNodes filters nodes down to text and image nodes.
func ExecutableNodes(nodes []workflow.Node) []workflow.Node {
	var out []workflow.Node
	for _, n := range nodes {
		if n.Type.Executable() {
			out = append(out, n)
		}
	}
	return out
}

// Select returns the nodes whose ids appear in ids, keeping node order.
// Unknown ids are ignored.
func Select(ids []string, nodes []workflow.Node) []workflow.Node {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []workflow.Node
	for _, n := range nodes {
		if want[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

// IDs returns the ids of nodes in order.
func IDs(nodes []workflow.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
