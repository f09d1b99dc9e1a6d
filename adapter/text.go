package adapter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/graph"
	"github.com/meikuraledutech/workflow/provider"
	"github.com/meikuraledutech/workflow/runner"
	"go.uber.org/zap"
)

// ErrNoImage is returned by PromptFromImage when the node has no image to analyze.
var ErrNoImage = errors.New("no image connected to analyze")

// TextAdapter executes text nodes.
type TextAdapter struct {
	Generator provider.TextGenerator
	// Analyzer backs the prompt-from-image action. It may be nil when the action is unused.
	Analyzer provider.ImageAnalyzer
	// Model is passed to the generator; empty lets the generator pick.
	Model  string
	Logger *zap.SugaredLogger
}

// Execute generates the node's content from its prompt and upstream inputs.
func (a *TextAdapter) Execute(ctx context.Context, node workflow.Node, in graph.Inputs) (runner.Outcome, error) {
	d, ok := node.Data.(*workflow.TextData)
	if !ok {
		return runner.Outcome{}, errors.Newf("text adapter cannot run %s node %q", node.Type, node.ID)
	}

	images := in.Images
	if images == nil {
		images = []workflow.ImageInput{}
	}
	resp, err := a.Generator.GenerateText(ctx, provider.TextRequest{
		Prompt: BuildPrompt(d.Prompt, in.Texts),
		Model:  a.Model,
		Images: images,
	})
	if err != nil {
		return runner.Outcome{}, err
	}

	out := d.Clone().(*workflow.TextData)
	out.Content = resp.Text
	return runner.Outcome{Data: out, Output: graph.Output{Text: resp.Text}}, nil
}

// PromptFromImage analyzes an image and writes the suggested prompt into a copy of
// the node's payload. An empty imageURL means the first connected upstream image.
// This action runs on demand, outside of workflow runs.
func (a *TextAdapter) PromptFromImage(ctx context.Context, node workflow.Node, imageURL string) (*workflow.TextData, provider.Analysis, error) {
	d, ok := node.Data.(*workflow.TextData)
	if !ok {
		return nil, provider.Analysis{}, errors.Newf("prompt from image needs a text node, got %s", node.Type)
	}
	if a.Analyzer == nil {
		return nil, provider.Analysis{}, errors.Mark(errors.New("image analysis is not configured"), provider.ErrNotConfigured)
	}
	if imageURL == "" && len(d.ConnectedSourceImages) > 0 {
		imageURL = d.ConnectedSourceImages[0].URL
	}
	if imageURL == "" {
		return nil, provider.Analysis{}, ErrNoImage
	}

	analysis, err := a.Analyzer.AnalyzeImage(ctx, provider.AnalysisRequest{ImageURL: imageURL})
	if err != nil {
		a.logger().Warnw("image analysis failed", "node", node.ID, "error", err)
		return nil, provider.Analysis{}, err
	}

	out := d.Clone().(*workflow.TextData)
	out.Prompt = analysis.SuggestedPrompt
	action := workflow.ActionPromptFromImage
	out.SelectedAction = &action
	return out, analysis, nil
}

func (a *TextAdapter) logger() *zap.SugaredLogger {
	if a.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return a.Logger
}
