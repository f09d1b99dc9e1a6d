package workflow

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	ErrWorkflowNotFound    = errors.New("workflow: not found")
	ErrNodeNotFound        = errors.New("workflow: node not found")
	ErrEdgeNotFound        = errors.New("workflow: edge not found")
	ErrSelfLoop            = errors.New("workflow: edge source and target must differ")
	ErrInvalidWorkflowFile = errors.New("Invalid workflow file")
)

// Store defines the contract for persisting and retrieving workflows.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Workflows (whole-graph replace semantics)
	SaveWorkflow(ctx context.Context, workflowID string, g Graph) error
	GetWorkflow(ctx context.Context, workflowID string) (*Graph, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error
	ListWorkflows(ctx context.Context) ([]string, error)
}
