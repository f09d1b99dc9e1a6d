package runner

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrNoNodes           = errors.New("no nodes to execute")
	ErrNoExecutableNodes = errors.New("no executable nodes")
	ErrRunInFlight       = errors.New("a run is already in progress for this scope")
	ErrNoExecutor        = errors.New("no executor registered for node type")
)

// MissingPrompt is the message written to nodes that fail prompt validation.
const MissingPrompt = "Missing prompt"

// MissingPromptError is returned when validation finds executable nodes without a
// prompt. Nothing was executed.
type MissingPromptError struct {
	Names []string
	IDs   []string
}

func (e *MissingPromptError) Error() string {
	return fmt.Sprintf("missing prompt: %s", strings.Join(e.Names, ", "))
}

// NodeError reports the node that aborted a run.
type NodeError struct {
	NodeID   string
	NodeName string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q failed: %s", e.NodeName, e.Err.Error())
}

func (e *NodeError) Unwrap() error { return e.Err }
