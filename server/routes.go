package main

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/document"
	"github.com/meikuraledutech/workflow/provider"
	"github.com/meikuraledutech/workflow/runner"
	"github.com/meikuraledutech/workflow/workspace"
	"go.uber.org/zap"
)

type idsBody struct {
	NodeIDs []string `json:"nodeIds"`
}

type nodePatch struct {
	Position *workflow.Position `json:"position"`
	Size     *workflow.Size     `json:"size"`
	Measured *workflow.Size     `json:"measured"`
	Data     json.RawMessage    `json:"data"`
}

type runResponse struct {
	State     runner.State `json:"state"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Order     []string     `json:"order"`
	Cycle     []string     `json:"cycle,omitempty"`
	Error     string       `json:"error,omitempty"`
	NodeID    string       `json:"nodeId,omitempty"`
	NodeIDs   []string     `json:"nodeIds,omitempty"`
}

type api struct {
	ws  *workspace.Workspace
	log *zap.SugaredLogger
}

func routes(app *fiber.App, ws *workspace.Workspace, log *zap.SugaredLogger) {
	a := &api{ws: ws, log: log}

	// ── Workflows ─────────────────────────────────────────────────────
	app.Post("/workflows", a.createWorkflow)
	app.Get("/workflows", a.listWorkflows)
	app.Get("/workflows/:id", a.getWorkflow)
	app.Delete("/workflows/:id", a.deleteWorkflow)
	app.Get("/workflows/:id/export", a.exportWorkflow)
	app.Post("/workflows/:id/import", a.importWorkflow)

	// ── Nodes ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/nodes", a.addNode)
	app.Delete("/workflows/:id/nodes", a.clear)
	app.Patch("/workflows/:id/nodes/:nodeId", a.updateNode)
	app.Delete("/workflows/:id/nodes/:nodeId", a.deleteNode)
	app.Post("/workflows/:id/nodes/:nodeId/duplicate", a.duplicateNode)
	app.Post("/workflows/:id/nodes/:nodeId/prompt-from-image", a.promptFromImage)
	app.Put("/workflows/:id/selection", a.selectNodes)

	// ── Edges ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/edges", a.connect)
	app.Delete("/workflows/:id/edges/:edgeId", a.disconnect)

	// ── Groups ────────────────────────────────────────────────────────
	app.Post("/workflows/:id/groups", a.group)
	app.Delete("/workflows/:id/groups/:groupId", a.ungroup)
	app.Post("/workflows/:id/groups/:groupId/nodes", a.addToGroup)
	app.Post("/workflows/:id/groups/:groupId/run", a.run)

	// ── Clipboard ─────────────────────────────────────────────────────
	app.Post("/workflows/:id/copy", a.copyNodes)
	app.Post("/workflows/:id/paste", a.paste)

	// ── Execution ─────────────────────────────────────────────────────
	app.Post("/workflows/:id/run", a.run)
}

func (a *api) createWorkflow(c fiber.Ctx) error {
	var body struct {
		ID string `json:"id"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
	}
	id, _, err := a.ws.Create(c.Context(), body.ID)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

func (a *api) listWorkflows(c fiber.Ctx) error {
	ids, err := a.ws.List(c.Context())
	if err != nil {
		return a.fail(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(fiber.Map{"workflows": ids})
}

func (a *api) getWorkflow(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	g := doc.Snapshot()
	return c.JSON(fiber.Map{"id": c.Params("id"), "version": doc.Version(), "nodes": g.Nodes, "edges": g.Edges})
}

func (a *api) deleteWorkflow(c fiber.Ctx) error {
	if err := a.ws.Delete(c.Context(), c.Params("id")); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(204)
}

func (a *api) exportWorkflow(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	b, err := doc.Export()
	if err != nil {
		return a.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", c.Params("id")+".json"))
	return c.Send(b)
}

func (a *api) importWorkflow(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	if err := doc.Import(c.Body()); err != nil {
		return a.fail(c, err)
	}
	return c.JSON(fiber.Map{"version": doc.Version()})
}

func (a *api) addNode(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	var node workflow.Node
	if err := c.Bind().JSON(&node); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	id, err := doc.AddNode(node)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

func (a *api) updateNode(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	var patch nodePatch
	if err := c.Bind().JSON(&patch); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	nodeID := c.Params("nodeId")
	cur, ok := doc.Snapshot().Node(nodeID)
	if !ok {
		return a.fail(c, errors.Wrapf(workflow.ErrNodeNotFound, "id %q", nodeID))
	}

	if patch.Position != nil || patch.Size != nil || patch.Measured != nil {
		err := doc.UpdateNode(nodeID, func(n *workflow.Node) {
			if patch.Position != nil {
				n.Position = *patch.Position
			}
			if patch.Size != nil {
				n.Size = patch.Size
			}
			if patch.Measured != nil {
				n.Measured = patch.Measured
			}
		})
		if err != nil {
			return a.fail(c, err)
		}
	}
	if len(patch.Data) > 0 {
		data, err := workflow.DecodeData(cur.Type, patch.Data)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		if err := doc.UpdateNodeData(nodeID, func(workflow.NodeData) workflow.NodeData { return data }); err != nil {
			return a.fail(c, err)
		}
	}
	updated, _ := doc.Snapshot().Node(nodeID)
	return c.JSON(updated)
}

func (a *api) deleteNode(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	if !doc.DeleteNode(c.Params("nodeId")) {
		return c.Status(404).JSON(fiber.Map{"error": "node not found"})
	}
	return c.SendStatus(204)
}

func (a *api) clear(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	doc.Clear()
	return c.SendStatus(204)
}

func (a *api) duplicateNode(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	id, ok := doc.Duplicate(c.Params("nodeId"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "node not found"})
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

func (a *api) promptFromImage(c fiber.Ctx) error {
	var body struct {
		ImageURL string `json:"imageUrl"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
	}
	analysis, err := a.ws.PromptFromImage(c.Context(), c.Params("id"), c.Params("nodeId"), body.ImageURL)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(analysis)
}

func (a *api) selectNodes(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	var body idsBody
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	doc.Select(body.NodeIDs)
	return c.JSON(fiber.Map{"selected": doc.SelectedIDs()})
}

func (a *api) connect(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	var edge workflow.Edge
	if err := c.Bind().JSON(&edge); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	id, err := doc.Connect(edge)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

func (a *api) disconnect(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	if !doc.Disconnect(c.Params("edgeId")) {
		return c.Status(404).JSON(fiber.Map{"error": "edge not found"})
	}
	return c.SendStatus(204)
}

func (a *api) group(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	var body idsBody
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	id, ok := doc.Group(body.NodeIDs)
	if !ok {
		return c.Status(422).JSON(fiber.Map{"error": "select at least two ungrouped nodes"})
	}
	return c.Status(201).JSON(fiber.Map{"id": id})
}

func (a *api) ungroup(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	if !doc.Ungroup(c.Params("groupId")) {
		return c.Status(404).JSON(fiber.Map{"error": "group not found"})
	}
	return c.SendStatus(204)
}

func (a *api) addToGroup(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	var body idsBody
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	if !doc.AddToGroup(c.Params("groupId"), body.NodeIDs) {
		return c.Status(422).JSON(fiber.Map{"error": "nothing to add to group"})
	}
	return c.SendStatus(204)
}

func (a *api) copyNodes(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	var body idsBody
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	return c.JSON(doc.Copy(body.NodeIDs))
}

func (a *api) paste(c fiber.Ctx) error {
	doc, err := a.ws.Open(c.Context(), c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}
	var clip document.Clipboard
	if err := c.Bind().JSON(&clip); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ids := doc.Paste(clip)
	if ids == nil {
		ids = []string{}
	}
	return c.Status(201).JSON(fiber.Map{"ids": ids})
}

// run serves both the whole-workflow and the per-group run routes.
func (a *api) run(c fiber.Ctx) error {
	res, err := a.ws.Run(c.Context(), c.Params("id"), c.Params("groupId"), nil)
	if res == nil {
		if err != nil {
			return a.fail(c, err)
		}
		return c.SendStatus(204)
	}

	out := runResponse{State: res.State, Completed: res.Completed, Total: res.Total, Order: res.Order}
	if res.Cycle != nil {
		out.Cycle = res.Cycle.NodeIDs
	}
	if err == nil {
		return c.JSON(out)
	}
	out.Error = err.Error()
	var nodeErr *runner.NodeError
	var missing *runner.MissingPromptError
	switch {
	case errors.As(err, &nodeErr):
		out.NodeID = nodeErr.NodeID
	case errors.As(err, &missing):
		out.NodeIDs = missing.IDs
	}
	return c.Status(status(err)).JSON(out)
}

func (a *api) fail(c fiber.Ctx, err error) error {
	code := status(err)
	if code >= 500 {
		a.log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	body := fiber.Map{"error": err.Error()}
	var missing *runner.MissingPromptError
	if errors.As(err, &missing) {
		body["nodeIds"] = missing.IDs
	}
	return c.Status(code).JSON(body)
}

// status maps domain errors onto HTTP status codes.
func status(err error) int {
	var missing *runner.MissingPromptError
	var nodeErr *runner.NodeError
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound),
		errors.Is(err, workflow.ErrNodeNotFound),
		errors.Is(err, workflow.ErrEdgeNotFound):
		return 404
	case errors.Is(err, runner.ErrRunInFlight),
		errors.Is(err, workspace.ErrWorkflowExists):
		return 409
	case errors.As(err, &missing),
		errors.As(err, &nodeErr),
		errors.Is(err, runner.ErrNoNodes),
		errors.Is(err, runner.ErrNoExecutableNodes),
		errors.Is(err, workflow.ErrInvalidWorkflowFile),
		errors.Is(err, workflow.ErrSelfLoop),
		errors.Is(err, document.ErrDuplicateID),
		errors.Is(err, document.ErrInvalidEdge),
		errors.Is(err, document.ErrInvalidNode),
		errors.Is(err, document.ErrInvalidGroup),
		errors.Is(err, workspace.ErrNotTextNode),
		errors.Is(err, provider.ErrInvalidRequest):
		return 422
	case errors.Is(err, provider.ErrNotConfigured):
		return 503
	case errors.Is(err, provider.ErrProvider),
		errors.Is(err, provider.ErrNetwork):
		return 502
	}
	return 500
}
