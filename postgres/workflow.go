package postgres

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/meikuraledutech/workflow"
)

// SaveWorkflow replaces the stored graph for workflowID in one transaction.
// Node and edge order is kept through the seq column.
func (s *PGStore) SaveWorkflow(ctx context.Context, workflowID string, g workflow.Graph) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "workflow: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO workflows (id) VALUES ($1)
		 ON CONFLICT (id) DO UPDATE SET updated_at = NOW()`, workflowID); err != nil {
		return errors.Wrap(err, "workflow: upsert workflow")
	}

	// Replace semantics.
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, workflowID); err != nil {
		return errors.Wrap(err, "workflow: delete edges")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, workflowID); err != nil {
		return errors.Wrap(err, "workflow: delete nodes")
	}

	batch := &pgx.Batch{}
	for i, n := range g.Nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return errors.Wrapf(err, "workflow: encode node %s", n.ID)
		}
		var parent *string
		if n.ParentID != "" {
			parent = &n.ParentID
		}
		batch.Queue(
			`INSERT INTO workflow_nodes (workflow_id, id, seq, type, parent_id, data) VALUES ($1, $2, $3, $4, $5, $6)`,
			workflowID, n.ID, i, string(n.Type), parent, data,
		)
	}
	for i, e := range g.Edges {
		data, err := json.Marshal(e)
		if err != nil {
			return errors.Wrapf(err, "workflow: encode edge %s", e.ID)
		}
		batch.Queue(
			`INSERT INTO workflow_edges (workflow_id, id, seq, source, target, data) VALUES ($1, $2, $3, $4, $5, $6)`,
			workflowID, e.ID, i, e.Source, e.Target, data,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "workflow: insert graph")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "workflow: commit")
	}
	return nil
}

// GetWorkflow retrieves a full graph by workflow id.
// Returns nil, nil if the workflow does not exist.
func (s *PGStore) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Graph, error) {
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM workflows WHERE id = $1)`, workflowID).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "workflow: lookup")
	}
	if !exists {
		return nil, nil
	}

	g := &workflow.Graph{Nodes: []workflow.Node{}, Edges: []workflow.Edge{}}

	rows, err := s.db.Query(ctx,
		`SELECT data FROM workflow_nodes WHERE workflow_id = $1 ORDER BY seq`, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, "workflow: query nodes")
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "workflow: scan node")
		}
		var n workflow.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, errors.Wrap(err, "workflow: decode node")
		}
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "workflow: rows nodes")
	}

	rows, err = s.db.Query(ctx,
		`SELECT data FROM workflow_edges WHERE workflow_id = $1 ORDER BY seq`, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, "workflow: query edges")
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "workflow: scan edge")
		}
		var e workflow.Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.Wrap(err, "workflow: decode edge")
		}
		g.Edges = append(g.Edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "workflow: rows edges")
	}

	return g, nil
}

// DeleteWorkflow removes a workflow with its nodes and edges.
// No error if the workflow doesn't exist.
func (s *PGStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, workflowID); err != nil {
		return errors.Wrap(err, "workflow: delete")
	}
	return nil
}

// ListWorkflows returns every stored workflow id in ascending order.
func (s *PGStore) ListWorkflows(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM workflows ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "workflow: list")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "workflow: scan ids")
	}
	return ids, nil
}
