// Package memstore keeps workflows in process memory. It backs tests, the example
// program and servers started without a database.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/meikuraledutech/workflow"
)

// Store implements workflow.Store with a map of deep-copied graphs.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]workflow.Graph
}

// New returns an empty Store.
func New() *Store {
	return &Store{workflows: make(map[string]workflow.Graph)}
}

// CreateSchema is a no-op.
func (s *Store) CreateSchema(context.Context) error { return nil }

// DropSchema forgets every workflow.
func (s *Store) DropSchema(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows = make(map[string]workflow.Graph)
	return nil
}

// SaveWorkflow replaces the stored graph for workflowID.
func (s *Store) SaveWorkflow(ctx context.Context, workflowID string, g workflow.Graph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[workflowID] = g.Clone()
	return nil
}

// GetWorkflow returns a copy of the stored graph.
// Returns nil, nil if the workflow does not exist.
func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.workflows[workflowID]
	if !ok {
		return nil, nil
	}
	c := g.Clone()
	return &c, nil
}

// DeleteWorkflow removes a workflow. No error if it doesn't exist.
func (s *Store) DeleteWorkflow(ctx context.Context, workflowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, workflowID)
	return nil
}

// ListWorkflows returns the stored workflow ids in ascending order.
func (s *Store) ListWorkflows(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.workflows))
	for id := range s.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ workflow.Store = (*Store)(nil)
