package adapter

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/graph"
	"github.com/meikuraledutech/workflow/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubText struct {
	got  provider.TextRequest
	resp provider.TextResponse
	err  error
}

func (s *stubText) GenerateText(_ context.Context, req provider.TextRequest) (provider.TextResponse, error) {
	s.got = req
	return s.resp, s.err
}

type stubImage struct {
	got  provider.ImageRequest
	resp provider.ImageResponse
	err  error
}

func (s *stubImage) GenerateImage(_ context.Context, req provider.ImageRequest) (provider.ImageResponse, error) {
	s.got = req
	return s.resp, s.err
}

type stubAnalyzer struct {
	got provider.AnalysisRequest
	out provider.Analysis
	err error
}

func (s *stubAnalyzer) AnalyzeImage(_ context.Context, req provider.AnalysisRequest) (provider.Analysis, error) {
	s.got = req
	return s.out, s.err
}

type stubProber struct {
	meta *workflow.ImageMetadata
	err  error
}

func (s stubProber) Probe(context.Context, string) (*workflow.ImageMetadata, error) { return s.meta, s.err }

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"plain words":                           "plain words",
		"<p>Hello <b>world</b></p><p>Second</p>": "Hello world\nSecond",
		"line<br>break":                         "line\nbreak",
		"Tom &amp; Jerry &lt;3":                 "Tom & Jerry <3",
		"<ul><li>one</li><li>two</li></ul>":     "one\ntwo",
		"<p>  lots   of\n\n space </p>":         "lots of\nspace",
		"<style>p{color:red}</style>visible":    "visible",
		"<p></p>":                               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, PlainText(in), in)
	}
}

func TestBuildPrompt(t *testing.T) {
	texts := []workflow.TextInput{
		{ID: "a", Content: "<p>A sunny beach</p>"},
		{ID: "b", Content: "   "},
		{ID: "c", Content: "with palm trees"},
	}
	assert.Equal(t, "draw it\n\nA sunny beach\n\nwith palm trees", BuildPrompt(" draw it ", texts))
	assert.Equal(t, "A sunny beach\n\nwith palm trees", BuildPrompt("", texts))
	assert.Equal(t, "only", BuildPrompt("only", nil))
}

func TestTextAdapterExecute(t *testing.T) {
	gen := &stubText{resp: provider.TextResponse{Text: "A cat sits."}}
	a := &TextAdapter{Generator: gen, Model: "m"}
	node := workflow.Node{ID: "t", Type: workflow.NodeTypeText, Data: &workflow.TextData{Prompt: "describe", Status: workflow.StatusProcessing}}
	in := graph.Inputs{
		Images: []workflow.ImageInput{{ID: "s", URL: "https://cdn/s.png"}},
		Texts:  []workflow.TextInput{{ID: "u", Content: "<p>context</p>"}},
	}

	out, err := a.Execute(context.Background(), node, in)
	require.NoError(t, err)
	assert.Equal(t, "describe\n\ncontext", gen.got.Prompt)
	assert.Equal(t, "m", gen.got.Model)
	assert.Equal(t, in.Images, gen.got.Images)

	d := out.Data.(*workflow.TextData)
	assert.Equal(t, "A cat sits.", d.Content)
	assert.Nil(t, d.SelectedAction, "running does not pick an action")
	assert.Equal(t, "A cat sits.", out.Output.Text)
	assert.Empty(t, node.Data.(*workflow.TextData).Content, "input node untouched")

	t.Run("selected action is left alone", func(t *testing.T) {
		action := workflow.ActionPromptFromImage
		picked := workflow.Node{ID: "t", Type: workflow.NodeTypeText, Data: &workflow.TextData{Prompt: "describe", SelectedAction: &action}}
		out, err := a.Execute(context.Background(), picked, in)
		require.NoError(t, err)
		got := out.Data.(*workflow.TextData).SelectedAction
		require.NotNil(t, got)
		assert.Equal(t, workflow.ActionPromptFromImage, *got)
	})

	t.Run("no images sends an empty list", func(t *testing.T) {
		_, err := a.Execute(context.Background(), node, graph.Inputs{})
		require.NoError(t, err)
		assert.NotNil(t, gen.got.Images)
		assert.Empty(t, gen.got.Images)
	})

	t.Run("generator failure propagates", func(t *testing.T) {
		gen.err = errors.Mark(errors.New("missing key"), provider.ErrNotConfigured)
		_, err := a.Execute(context.Background(), node, in)
		assert.True(t, errors.Is(err, provider.ErrNotConfigured))
		assert.Equal(t, "missing key", err.Error())
	})

	t.Run("wrong node type", func(t *testing.T) {
		_, err := a.Execute(context.Background(), workflow.Node{ID: "i", Type: workflow.NodeTypeImage, Data: &workflow.ImageData{}}, in)
		assert.Error(t, err)
	})
}

func TestPromptFromImage(t *testing.T) {
	an := &stubAnalyzer{out: provider.Analysis{Subject: "fox", SuggestedPrompt: "a red fox in snow"}}
	a := &TextAdapter{Analyzer: an, Logger: zaptest.NewLogger(t).Sugar()}
	node := workflow.Node{ID: "t", Type: workflow.NodeTypeText, Data: &workflow.TextData{
		Prompt:                "old",
		ConnectedSourceImages: []workflow.ImageInput{{ID: "s", URL: "https://cdn/fox.png"}},
	}}

	d, analysis, err := a.PromptFromImage(context.Background(), node, "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/fox.png", an.got.ImageURL)
	assert.Equal(t, "a red fox in snow", d.Prompt)
	assert.Equal(t, workflow.ActionPromptFromImage, *d.SelectedAction)
	assert.Equal(t, "fox", analysis.Subject)

	_, _, err = a.PromptFromImage(context.Background(), workflow.Node{ID: "x", Type: workflow.NodeTypeText, Data: &workflow.TextData{}}, "")
	assert.True(t, errors.Is(err, ErrNoImage))

	_, _, err = (&TextAdapter{}).PromptFromImage(context.Background(), node, "")
	assert.True(t, errors.Is(err, provider.ErrNotConfigured))
}

func TestImageAdapterExecute(t *testing.T) {
	ratio, quality := "1:1", "high"
	node := workflow.Node{ID: "i", Type: workflow.NodeTypeImage, Data: &workflow.ImageData{
		Prompt:      "draw it",
		Model:       "runware:101@1",
		AspectRatio: &ratio,
		Quality:     &quality,
		SourceImage: &workflow.ImageRef{ID: "own", URL: "https://cdn/own.png"},
	}}
	in := graph.Inputs{
		Images: []workflow.ImageInput{{ID: "a", URL: "https://cdn/a.png"}, {ID: "b", URL: "https://cdn/own.png"}},
		Texts:  []workflow.TextInput{{ID: "t", Content: "A cat sits."}},
	}

	t.Run("stores image and metadata", func(t *testing.T) {
		gen := &stubImage{resp: provider.ImageResponse{ImageURL: "https://cdn/out.png", Key: "out.png"}}
		a := &ImageAdapter{Generator: gen, Prober: stubProber{meta: &workflow.ImageMetadata{Width: 1024, Height: 1024, Format: "png"}}}

		out, err := a.Execute(context.Background(), node, in)
		require.NoError(t, err)
		assert.Equal(t, provider.ImageRequest{
			Prompt:       "draw it\n\nA cat sits.",
			Model:        "runware:101@1",
			SourceImages: []string{"https://cdn/own.png", "https://cdn/a.png"},
			AspectRatio:  &ratio,
			Quality:      &quality,
		}, gen.got)

		d := out.Data.(*workflow.ImageData)
		assert.Equal(t, &workflow.GeneratedImage{URL: "https://cdn/out.png", Key: "out.png"}, d.GeneratedImage)
		assert.Equal(t, 1024, d.GeneratedImageMetadata.Width)
		assert.Equal(t, "https://cdn/out.png", out.Output.ImageURL)
	})

	t.Run("probe failure keeps the image", func(t *testing.T) {
		gen := &stubImage{resp: provider.ImageResponse{ImageURL: "https://cdn/out.png"}}
		a := &ImageAdapter{Generator: gen, Prober: stubProber{err: errors.New("timeout")}, Logger: zaptest.NewLogger(t).Sugar()}

		out, err := a.Execute(context.Background(), node, in)
		require.NoError(t, err)
		d := out.Data.(*workflow.ImageData)
		require.NotNil(t, d.GeneratedImage)
		assert.Nil(t, d.GeneratedImageMetadata)
	})

	t.Run("default model", func(t *testing.T) {
		gen := &stubImage{resp: provider.ImageResponse{ImageURL: "u"}}
		a := &ImageAdapter{Generator: gen, DefaultModel: "bfl:2@1"}
		_, err := a.Execute(context.Background(), workflow.Node{ID: "i", Type: workflow.NodeTypeImage, Data: &workflow.ImageData{Prompt: "p"}}, graph.Inputs{})
		require.NoError(t, err)
		assert.Equal(t, "bfl:2@1", gen.got.Model)
		assert.Empty(t, gen.got.SourceImages)
	})

	t.Run("generator failure", func(t *testing.T) {
		gen := &stubImage{err: errors.Mark(errors.New("content rejected"), provider.ErrProvider)}
		a := &ImageAdapter{Generator: gen}
		out, err := a.Execute(context.Background(), node, in)
		assert.True(t, errors.Is(err, provider.ErrProvider))
		assert.Nil(t, out.Data)
	})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHTTPProber(t *testing.T) {
	body := pngBytes(t, 64, 48)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(body)
		case "/text":
			w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewHTTPProber(0)
	meta, err := p.Probe(context.Background(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, &workflow.ImageMetadata{Width: 64, Height: 48, Format: "png"}, meta)

	_, err = p.Probe(context.Background(), srv.URL+"/text")
	assert.Error(t, err)
	_, err = p.Probe(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
}

func TestExecutors(t *testing.T) {
	ex := Executors(&TextAdapter{}, &ImageAdapter{})
	assert.Len(t, ex, 2)
	assert.Contains(t, ex, workflow.NodeTypeText)
	assert.Contains(t, ex, workflow.NodeTypeImage)
}
