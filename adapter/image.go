package adapter

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/graph"
	"github.com/meikuraledutech/workflow/provider"
	"github.com/meikuraledutech/workflow/runner"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// Prober reads the pixel dimensions of a stored image.
type Prober interface {
	Probe(ctx context.Context, url string) (*workflow.ImageMetadata, error)
}

// ImageAdapter executes image nodes.
type ImageAdapter struct {
	Generator provider.ImageGenerator
	// Prober is optional; without it generated images are stored without metadata.
	Prober       Prober
	DefaultModel string
	Logger       *zap.SugaredLogger
}

// Execute generates an image from the node's prompt, upstream texts and upstream
// images. A failed dimension probe does not fail the node: the image is kept
// without metadata.
func (a *ImageAdapter) Execute(ctx context.Context, node workflow.Node, in graph.Inputs) (runner.Outcome, error) {
	d, ok := node.Data.(*workflow.ImageData)
	if !ok {
		return runner.Outcome{}, errors.Newf("image adapter cannot run %s node %q", node.Type, node.ID)
	}

	model := d.Model
	if model == "" {
		model = a.DefaultModel
	}
	resp, err := a.Generator.GenerateImage(ctx, provider.ImageRequest{
		Prompt:       BuildPrompt(d.Prompt, in.Texts),
		Model:        model,
		SourceImages: sourceImages(d, in),
		AspectRatio:  d.AspectRatio,
		Quality:      d.Quality,
	})
	if err != nil {
		return runner.Outcome{}, err
	}

	var meta *workflow.ImageMetadata
	if a.Prober != nil {
		meta, err = a.Prober.Probe(ctx, resp.ImageURL)
		if err != nil {
			a.logger().Warnw("could not read generated image dimensions",
				"node", node.ID, "url", resp.ImageURL, "error", err)
			meta = nil
		}
	}

	out := d.Clone().(*workflow.ImageData)
	out.GeneratedImage = &workflow.GeneratedImage{URL: resp.ImageURL, Key: resp.Key}
	out.GeneratedImageMetadata = meta
	return runner.Outcome{Data: out, Output: graph.Output{ImageURL: resp.ImageURL}}, nil
}

// sourceImages lists the node's own uploaded image first, then every upstream image.
func sourceImages(d *workflow.ImageData, in graph.Inputs) []string {
	urls := make([]string, 0, 1+len(in.Images))
	own := ""
	if d.SourceImage != nil && d.SourceImage.URL != "" {
		own = d.SourceImage.URL
		urls = append(urls, own)
	}
	for _, u := range in.ImageURLs() {
		if own != "" && u == own {
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

func (a *ImageAdapter) logger() *zap.SugaredLogger {
	if a.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return a.Logger
}

// DefaultProbeTimeout bounds one dimension probe.
const DefaultProbeTimeout = 15 * time.Second

// HTTPProber downloads just enough of an image to decode its header. PNG, JPEG,
// GIF and WebP are understood.
type HTTPProber struct {
	Client *http.Client
}

// NewHTTPProber returns a prober whose requests time out after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{Client: &http.Client{Timeout: timeout}}
}

// Probe fetches url and decodes the image configuration.
func (p *HTTPProber) Probe(ctx context.Context, url string) (*workflow.ImageMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "probe: build request")
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "probe: fetch image")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("probe: fetch image: status %d", resp.StatusCode)
	}

	cfg, format, err := image.DecodeConfig(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "probe: decode image header")
	}
	return &workflow.ImageMetadata{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Executors returns the executor table a runner needs.
func Executors(text *TextAdapter, img *ImageAdapter) map[workflow.NodeType]runner.Executor {
	return map[workflow.NodeType]runner.Executor{
		workflow.NodeTypeText:  text,
		workflow.NodeTypeImage: img,
	}
}
