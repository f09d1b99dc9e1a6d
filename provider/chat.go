package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultChatBaseURL is the OpenRouter-compatible API root.
	DefaultChatBaseURL = "https://openrouter.ai/api/v1"
	// DefaultTextModel is used when neither the request nor the config names a model.
	DefaultTextModel = "openai/gpt-4o-mini"
	// DefaultTimeout bounds one provider call.
	DefaultTimeout = 120 * time.Second
)

const analysisInstruction = `Analyze this image and answer with a JSON object only, using these keys:
"subject" (what the image shows), "style" (artistic style), "colors" (array of dominant colors),
"suggestedPrompt" (a prompt that would recreate the image with an image model),
"poseDescription" (pose of any person, or an empty string).`

// ChatConfig configures a ChatClient.
type ChatConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	AnalysisModel string
	Timeout       time.Duration
	Logger        *zap.SugaredLogger // nil = nop logger
	HTTPClient    *http.Client       // nil = client with Timeout
}

// ChatClient generates text and analyzes images through an OpenRouter-compatible
// chat completions endpoint.
type ChatClient struct {
	cfg    ChatConfig
	http   *http.Client
	logger *zap.SugaredLogger
}

// NewChatClient returns a client with defaults applied.
func NewChatClient(cfg ChatConfig) *ChatClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultChatBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultTextModel
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = cfg.Model
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
	return &ChatClient{cfg: cfg, http: client, logger: logger}
}

// IsConfigured reports whether an API key is set.
func (c *ChatClient) IsConfigured() bool { return c.cfg.APIKey != "" }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *contentImage `json:"image_url,omitempty"`
}

type contentImage struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

func textMessage(role, text string) chatMessage {
	raw, _ := json.Marshal(text)
	return chatMessage{Role: role, Content: raw}
}

func multimodalMessage(role, text string, imageURLs []string) chatMessage {
	parts := make([]contentPart, 0, 1+len(imageURLs))
	parts = append(parts, contentPart{Type: "text", Text: text})
	for _, u := range imageURLs {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &contentImage{URL: u}})
	}
	raw, _ := json.Marshal(parts)
	return chatMessage{Role: role, Content: raw}
}

// GenerateText sends the prompt, with any images attached, and returns the reply.
func (c *ChatClient) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	if !c.IsConfigured() {
		return TextResponse{}, notConfigured("text generation")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return TextResponse{}, invalidRequest("prompt is required")
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	msg := textMessage("user", req.Prompt)
	if len(req.Images) > 0 {
		urls := make([]string, len(req.Images))
		for i, img := range req.Images {
			urls[i] = img.URL
		}
		msg = multimodalMessage("user", req.Prompt, urls)
	}

	text, err := c.complete(ctx, model, []chatMessage{msg})
	if err != nil {
		return TextResponse{}, err
	}
	return TextResponse{Text: text}, nil
}

// AnalyzeImage asks the model to describe an image as JSON. A reply that is not
// valid JSON is returned whole as the suggested prompt.
func (c *ChatClient) AnalyzeImage(ctx context.Context, req AnalysisRequest) (Analysis, error) {
	if !c.IsConfigured() {
		return Analysis{}, notConfigured("image analysis")
	}
	url := req.ImageURL
	if url == "" && req.ImageBase64 != "" {
		mime := req.MimeType
		if mime == "" {
			mime = "image/png"
		}
		url = "data:" + mime + ";base64," + req.ImageBase64
	}
	if url == "" {
		return Analysis{}, invalidRequest("an image URL or base64 payload is required")
	}

	text, err := c.complete(ctx, c.cfg.AnalysisModel, []chatMessage{
		multimodalMessage("user", analysisInstruction, []string{url}),
	})
	if err != nil {
		return Analysis{}, err
	}
	return ParseAnalysis(text), nil
}

func (c *ChatClient) complete(ctx context.Context, model string, messages []chatMessage) (string, error) {
	c.logger.Debugw("chat request", "model", model, "messages", len(messages))

	var resp chatResponse
	err := postJSON(ctx, c.http, c.cfg.BaseURL+"/chat/completions", c.cfg.APIKey,
		chatRequest{Model: model, Messages: messages}, &resp)
	if err != nil {
		c.logger.Warnw("chat request failed", "model", model, "error", err)
		return "", err
	}
	if msg := rawMessage(resp.Error); msg != "" {
		c.logger.Warnw("chat provider error", "model", model, "error", msg)
		return "", providerError(msg)
	}
	if len(resp.Choices) == 0 {
		return "", providerError("no response choices from provider")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseAnalysis decodes an analysis reply, bare or inside a fenced code block.
// Anything unparseable becomes Analysis{SuggestedPrompt: text}.
func ParseAnalysis(text string) Analysis {
	body := strings.TrimSpace(text)
	if m := fenced.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	var a Analysis
	if err := json.Unmarshal([]byte(body), &a); err != nil || a.empty() {
		return Analysis{SuggestedPrompt: strings.TrimSpace(text)}
	}
	return a
}

func (a Analysis) empty() bool {
	return a.Subject == "" && a.Style == "" && len(a.Colors) == 0 &&
		a.SuggestedPrompt == "" && a.PoseDescription == ""
}
