package document

import "github.com/meikuraledutech/workflow"

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventNodeAdded        EventKind = "node_added"
	EventNodeUpdated      EventKind = "node_updated"
	EventNodeDataChanged  EventKind = "node_data_changed"
	EventNodeDeleted      EventKind = "node_deleted"
	EventEdgeAdded        EventKind = "edge_added"
	EventEdgeRemoved      EventKind = "edge_removed"
	EventGrouped          EventKind = "grouped"
	EventUngrouped        EventKind = "ungrouped"
	EventAddedToGroup     EventKind = "added_to_group"
	EventPasted           EventKind = "pasted"
	EventCleared          EventKind = "cleared"
	EventImported         EventKind = "imported"
	EventSelectionChanged EventKind = "selection_changed"
)

// Event describes one committed change.
type Event struct {
	Kind EventKind
	// IDs are the nodes or edges the change touched.
	IDs []string
	// Version increases by one with every commit.
	Version int
	// Graph is a snapshot of the document after the change. Subscribers own it.
	Graph workflow.Graph
}
