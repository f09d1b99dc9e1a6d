package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/adapter"
	"github.com/meikuraledutech/workflow/memstore"
	"github.com/meikuraledutech/workflow/postgres"
	"github.com/meikuraledutech/workflow/provider"
	"github.com/meikuraledutech/workflow/runner"
	"github.com/meikuraledutech/workflow/workspace"
)

// cannedText stands in for a chat completions endpoint.
type cannedText struct{}

func (cannedText) GenerateText(_ context.Context, req provider.TextRequest) (provider.TextResponse, error) {
	return provider.TextResponse{
		Text: fmt.Sprintf("<p>A story about %s (%d reference images)</p>", firstLine(req.Prompt), len(req.Images)),
	}, nil
}

// cannedImages stands in for the image generation service.
type cannedImages struct{}

func (cannedImages) GenerateImage(_ context.Context, req provider.ImageRequest) (provider.ImageResponse, error) {
	key := strings.ReplaceAll(firstLine(req.Prompt), " ", "-") + ".png"
	return provider.ImageResponse{ImageURL: "https://images.example/" + key, Key: key}, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func main() {
	ctx := context.Background()

	// Use Postgres when DATABASE_URL is set, memory otherwise.
	var store workflow.Store = memstore.New()
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()
		store = postgres.New(pool)
	}

	// 1. Create tables
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	executors := adapter.Executors(
		&adapter.TextAdapter{Generator: cannedText{}},
		&adapter.ImageAdapter{Generator: cannedImages{}, DefaultModel: provider.DefaultImageModel},
	)
	ws := workspace.New(store, executors)

	id, doc, err := ws.Create(ctx, "storyboard")
	if err != nil {
		log.Fatalf("create workflow: %v", err)
	}
	fmt.Println("workflow created:", id)

	// ── Build: source image → writer → illustrator ────────────────────
	src, err := doc.AddNode(workflow.Node{
		Type:     workflow.NodeTypeSource,
		Position: workflow.Position{X: 0, Y: 0},
		Data:     &workflow.SourceData{Label: "Photo", Image: &workflow.ImageRef{ID: "upload-1", URL: "https://images.example/cat.png"}},
	})
	if err != nil {
		log.Fatalf("add source: %v", err)
	}
	writer, err := doc.AddNode(workflow.Node{
		Type:     workflow.NodeTypeText,
		Position: workflow.Position{X: 400, Y: 0},
		Data:     &workflow.TextData{Label: "Writer", Prompt: "a cat on a rooftop", Status: workflow.StatusIdle},
	})
	if err != nil {
		log.Fatalf("add writer: %v", err)
	}
	illustrator, err := doc.AddNode(workflow.Node{
		Type:     workflow.NodeTypeImage,
		Position: workflow.Position{X: 800, Y: 0},
		Data:     &workflow.ImageData{Label: "Illustrator", Prompt: "watercolor", Status: workflow.StatusIdle},
	})
	if err != nil {
		log.Fatalf("add illustrator: %v", err)
	}
	for _, e := range []workflow.Edge{
		{Source: src, Target: writer},
		{Source: writer, Target: illustrator},
		{Source: src, Target: illustrator},
	} {
		if _, err := doc.Connect(e); err != nil {
			log.Fatalf("connect: %v", err)
		}
	}

	// ── Group the two generators and run just the group ───────────────
	group, ok := doc.Group([]string{writer, illustrator})
	if !ok {
		log.Fatal("group: nothing grouped")
	}
	fmt.Println("group created:", group)

	res, err := ws.Run(ctx, id, group, func(p runner.Progress) {
		fmt.Printf("  [%d/%d] %s\n", p.Completed, p.Total, p.Current)
	})
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	fmt.Printf("run %s: %d/%d nodes\n", res.State, res.Completed, res.Total)

	// ── Retrieve what was persisted ───────────────────────────────────
	saved, err := store.GetWorkflow(ctx, id)
	if err != nil {
		log.Fatalf("get workflow: %v", err)
	}
	fmt.Println("\nworkflow retrieved:")
	printJSON(saved)

	exported, err := doc.Export()
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	fmt.Printf("\nexport is %d bytes\n", len(exported))

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := ws.Delete(ctx, id); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("\nworkflow deleted")
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
