package document

import "github.com/meikuraledutech/workflow"

// SortParentsFirst returns nodes reordered so that every parent precedes its
// children. Nodes keep their relative order otherwise; a child that appears before
// its parent is held back and emitted right after the parent. Children of unknown
// parents are left where they are.
func SortParentsFirst(nodes []workflow.Node) []workflow.Node {
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}

	out := make([]workflow.Node, 0, len(nodes))
	emitted := make(map[string]bool, len(nodes))
	waiting := make(map[string][]workflow.Node)

	var emit func(n workflow.Node)
	emit = func(n workflow.Node) {
		out = append(out, n)
		emitted[n.ID] = true
		kids := waiting[n.ID]
		delete(waiting, n.ID)
		for _, k := range kids {
			emit(k)
		}
	}

	for _, n := range nodes {
		if n.ParentID == "" || !present[n.ParentID] || emitted[n.ParentID] {
			emit(n)
			continue
		}
		waiting[n.ParentID] = append(waiting[n.ParentID], n)
	}

	// Parent chains that loop back on themselves never get released.
	if len(out) < len(nodes) {
		for _, n := range nodes {
			if !emitted[n.ID] {
				out = append(out, n)
				emitted[n.ID] = true
			}
		}
	}
	return out
}
