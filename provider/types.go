// Package provider talks to the generation back-ends: text generation, image
// generation and image analysis. Every failure is flattened to one readable message
// and marked with the kind of failure (see ErrNotConfigured and friends).
package provider

import (
	"context"

	"github.com/meikuraledutech/workflow"
)

// TextRequest asks for generated text.
type TextRequest struct {
	Prompt string                `json:"prompt"`
	Model  string                `json:"model"`
	Images []workflow.ImageInput `json:"images"`
}

// TextResponse carries generated text.
type TextResponse struct {
	Text string `json:"text"`
}

// ImageRequest asks for a generated image. Nil AspectRatio or Quality leave the
// choice to the provider.
type ImageRequest struct {
	Prompt       string   `json:"prompt"`
	Model        string   `json:"model"`
	SourceImages []string `json:"sourceImages"`
	AspectRatio  *string  `json:"aspectRatio"`
	Quality      *string  `json:"quality"`
}

// ImageResponse points at a stored generated image.
type ImageResponse struct {
	ImageURL string `json:"imageUrl"`
	Key      string `json:"key"`
}

// AnalysisRequest names one image, either by URL or as inline base64 data.
type AnalysisRequest struct {
	ImageURL    string
	ImageBase64 string
	// MimeType applies to ImageBase64; defaults to image/png.
	MimeType string
}

// Analysis is a structured description of an image.
type Analysis struct {
	Subject         string   `json:"subject"`
	Style           string   `json:"style"`
	Colors          []string `json:"colors"`
	SuggestedPrompt string   `json:"suggestedPrompt"`
	PoseDescription string   `json:"poseDescription"`
}

// TextGenerator produces text from a prompt and optional images.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (TextResponse, error)
}

// ImageGenerator produces an image from a prompt and optional reference images.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResponse, error)
}

// ImageAnalyzer describes an image.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, req AnalysisRequest) (Analysis, error)
}
