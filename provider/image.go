package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ImageConfig configures an ImageClient.
type ImageConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	Logger       *zap.SugaredLogger // nil = nop logger
	HTTPClient   *http.Client       // nil = client with Timeout
}

// ImageClient calls the image generation service at {BaseURL}/generate-image.
type ImageClient struct {
	cfg    ImageConfig
	http   *http.Client
	logger *zap.SugaredLogger
}

// NewImageClient returns a client with defaults applied.
func NewImageClient(cfg ImageConfig) *ImageClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultImageModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ImageClient{cfg: cfg, http: client, logger: logger}
}

// IsConfigured reports whether the client has an endpoint and an API key.
func (c *ImageClient) IsConfigured() bool { return c.cfg.BaseURL != "" && c.cfg.APIKey != "" }

// imagePayload is the wire request. Exactly one of ReferenceImages or
// SeedImage+Strength is set, depending on the model.
type imagePayload struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model"`
	AspectRatio     *string  `json:"aspectRatio"`
	Quality         *string  `json:"quality"`
	ReferenceImages []string `json:"referenceImages,omitempty"`
	SeedImage       string   `json:"seedImage,omitempty"`
	Strength        *float64 `json:"strength,omitempty"`
}

type imageReply struct {
	ImageURL string `json:"imageUrl"`
	Key      string `json:"key"`
	Error    string `json:"error"`
}

// GenerateImage requests one image. Input images are sent as references or as a
// single seed image according to the model's profile.
func (c *ImageClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResponse, error) {
	if !c.IsConfigured() {
		return ImageResponse{}, notConfigured("image generation")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ImageResponse{}, invalidRequest("prompt is required")
	}

	payload := buildImagePayload(req, c.cfg.DefaultModel)
	c.logger.Debugw("image request", "model", payload.Model,
		"references", len(payload.ReferenceImages), "seed", payload.SeedImage != "")

	var reply imageReply
	if err := postJSON(ctx, c.http, c.cfg.BaseURL+"/generate-image", c.cfg.APIKey, payload, &reply); err != nil {
		c.logger.Warnw("image request failed", "model", payload.Model, "error", err)
		return ImageResponse{}, err
	}
	if reply.Error != "" {
		c.logger.Warnw("image provider error", "model", payload.Model, "error", reply.Error)
		return ImageResponse{}, providerError(reply.Error)
	}
	if reply.ImageURL == "" {
		return ImageResponse{}, providerError("no image returned by provider")
	}
	return ImageResponse{ImageURL: reply.ImageURL, Key: reply.Key}, nil
}

func buildImagePayload(req ImageRequest, defaultModel string) imagePayload {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	p := imagePayload{
		Prompt:      req.Prompt,
		Model:       model,
		AspectRatio: req.AspectRatio,
		Quality:     req.Quality,
	}
	if len(req.SourceImages) == 0 {
		return p
	}

	profile := LookupModel(model)
	if profile.MultiReference {
		refs := req.SourceImages
		if profile.MaxReferenceImages > 0 && len(refs) > profile.MaxReferenceImages {
			refs = refs[:profile.MaxReferenceImages]
		}
		p.ReferenceImages = append([]string(nil), refs...)
		return p
	}
	strength := SeedStrength
	p.SeedImage = req.SourceImages[0]
	p.Strength = &strength
	return p
}
