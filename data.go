package workflow

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// NodeData is the type-tagged payload of a node. The set of implementations is closed:
// *SourceData, *TextData, *ImageData and *GroupData.
type NodeData interface {
	Kind() NodeType
	Clone() NodeData
	sealed()
}

// TextAction is the action a text node was last asked to perform.
type TextAction string

const (
	ActionWrite           TextAction = "write"
	ActionPromptFromImage TextAction = "prompt_from_image"
)

// ImageMetadata describes an image's pixel dimensions and encoding.
type ImageMetadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
}

// ImageRef is an uploaded image.
type ImageRef struct {
	ID       string         `json:"id"`
	URL      string         `json:"url"`
	Metadata *ImageMetadata `json:"metadata,omitempty"`
}

// GeneratedImage is the stored result of an image generation call.
type GeneratedImage struct {
	URL string `json:"url"`
	Key string `json:"key,omitempty"`
}

// ImageInput is an upstream image visible to a node.
type ImageInput struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// TextInput is an upstream text visible to a node.
type TextInput struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// SourceData holds at most one uploaded image.
type SourceData struct {
	Label string    `json:"label,omitempty"`
	Image *ImageRef `json:"image,omitempty"`
}

// TextData is the payload of a text generation node.
// ConnectedSourceImages and ConnectedSourceTexts are derived from the graph and never edited directly.
type TextData struct {
	Label                 string       `json:"label,omitempty"`
	Content               string       `json:"content"`
	Prompt                string       `json:"prompt"`
	SelectedAction        *TextAction  `json:"selectedAction"`
	ConnectedSourceImages []ImageInput `json:"connectedSourceImages,omitempty"`
	ConnectedSourceTexts  []TextInput  `json:"connectedSourceTexts,omitempty"`
	Status                Status       `json:"status"`
	Error                 string       `json:"error,omitempty"`
}

// ImageData is the payload of an image generation node.
// A nil AspectRatio or Quality lets the provider decide.
type ImageData struct {
	Label                  string          `json:"label,omitempty"`
	Prompt                 string          `json:"prompt"`
	Model                  string          `json:"model"`
	AspectRatio            *string         `json:"aspectRatio"`
	Quality                *string         `json:"quality"`
	SourceImage            *ImageRef       `json:"sourceImage,omitempty"`
	GeneratedImage         *GeneratedImage `json:"generatedImage,omitempty"`
	GeneratedImageMetadata *ImageMetadata  `json:"generatedImageMetadata,omitempty"`
	ConnectedSourceImages  []ImageInput    `json:"connectedSourceImages,omitempty"`
	ConnectedSourceTexts   []TextInput     `json:"connectedSourceTexts,omitempty"`
	Status                 Status          `json:"status"`
	Error                  string          `json:"error,omitempty"`
}

// GroupData is the payload of a group container. Groups never execute.
type GroupData struct {
	Name            string `json:"name"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

func (*SourceData) Kind() NodeType { return NodeTypeSource }
func (*TextData) Kind() NodeType   { return NodeTypeText }
func (*ImageData) Kind() NodeType  { return NodeTypeImage }
func (*GroupData) Kind() NodeType  { return NodeTypeGroup }

func (*SourceData) sealed() {}
func (*TextData) sealed()   {}
func (*ImageData) sealed()  {}
func (*GroupData) sealed()  {}

func (d *SourceData) Clone() NodeData {
	c := *d
	c.Image = d.Image.clone()
	return &c
}

func (d *TextData) Clone() NodeData {
	c := *d
	if d.SelectedAction != nil {
		a := *d.SelectedAction
		c.SelectedAction = &a
	}
	c.ConnectedSourceImages = cloneSlice(d.ConnectedSourceImages)
	c.ConnectedSourceTexts = cloneSlice(d.ConnectedSourceTexts)
	return &c
}

func (d *ImageData) Clone() NodeData {
	c := *d
	c.AspectRatio = cloneString(d.AspectRatio)
	c.Quality = cloneString(d.Quality)
	c.SourceImage = d.SourceImage.clone()
	if d.GeneratedImage != nil {
		g := *d.GeneratedImage
		c.GeneratedImage = &g
	}
	if d.GeneratedImageMetadata != nil {
		m := *d.GeneratedImageMetadata
		c.GeneratedImageMetadata = &m
	}
	c.ConnectedSourceImages = cloneSlice(d.ConnectedSourceImages)
	c.ConnectedSourceTexts = cloneSlice(d.ConnectedSourceTexts)
	return &c
}

func (d *GroupData) Clone() NodeData {
	c := *d
	return &c
}

func (r *ImageRef) clone() *ImageRef {
	if r == nil {
		return nil
	}
	c := *r
	if r.Metadata != nil {
		m := *r.Metadata
		c.Metadata = &m
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}

// NewData returns the initial payload for a node of type t.
func NewData(t NodeType) (NodeData, error) {
	switch t {
	case NodeTypeSource:
		return &SourceData{}, nil
	case NodeTypeText:
		return &TextData{Status: StatusIdle}, nil
	case NodeTypeImage:
		return &ImageData{Status: StatusIdle}, nil
	case NodeTypeGroup:
		return &GroupData{}, nil
	}
	return nil, errors.Newf("workflow: unknown node type %q", t)
}

// DecodeData decodes raw JSON into the payload variant for t.
// Empty or null input yields the initial payload.
func DecodeData(t NodeType, raw json.RawMessage) (NodeData, error) {
	data, err := NewData(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, errors.Wrapf(err, "workflow: decode %s node data", t)
	}
	switch d := data.(type) {
	case *TextData:
		if d.Status == "" {
			d.Status = StatusIdle
		}
	case *ImageData:
		if d.Status == "" {
			d.Status = StatusIdle
		}
	}
	return data, nil
}

// LabelOf returns the display label stored in the payload, if any.
func LabelOf(d NodeData) string {
	switch d := d.(type) {
	case *SourceData:
		return d.Label
	case *TextData:
		return d.Label
	case *ImageData:
		return d.Label
	case *GroupData:
		return d.Name
	}
	return ""
}

// PromptOf returns the prompt of an executable payload.
func PromptOf(d NodeData) string {
	switch d := d.(type) {
	case *TextData:
		return d.Prompt
	case *ImageData:
		return d.Prompt
	case *SourceData, *GroupData:
		return ""
	}
	return ""
}

// StatusOf returns the execution status of a payload. Non-executable payloads are always idle.
func StatusOf(d NodeData) Status {
	switch d := d.(type) {
	case *TextData:
		return d.Status
	case *ImageData:
		return d.Status
	case *SourceData, *GroupData:
		return StatusIdle
	}
	return StatusIdle
}

// ErrorOf returns the last error message of an executable payload.
func ErrorOf(d NodeData) string {
	switch d := d.(type) {
	case *TextData:
		return d.Error
	case *ImageData:
		return d.Error
	case *SourceData, *GroupData:
		return ""
	}
	return ""
}

// WithStatus returns a copy of d with the given status and error message.
// Non-executable payloads are returned unchanged.
func WithStatus(d NodeData, s Status, msg string) NodeData {
	switch d := d.(type) {
	case *TextData:
		c := d.Clone().(*TextData)
		c.Status, c.Error = s, msg
		return c
	case *ImageData:
		c := d.Clone().(*ImageData)
		c.Status, c.Error = s, msg
		return c
	case *SourceData, *GroupData:
		return d
	}
	return d
}

// ResetGenerated returns a copy of d with generated content and execution state cleared.
func ResetGenerated(d NodeData) NodeData {
	switch d := d.(type) {
	case *TextData:
		c := d.Clone().(*TextData)
		c.Content = ""
		c.Status, c.Error = StatusIdle, ""
		return c
	case *ImageData:
		c := d.Clone().(*ImageData)
		c.GeneratedImage = nil
		c.GeneratedImageMetadata = nil
		c.Status, c.Error = StatusIdle, ""
		return c
	case *SourceData, *GroupData:
		return d.Clone()
	}
	return d
}

// WithConnections returns a copy of d with the derived upstream views replaced.
func WithConnections(d NodeData, images []ImageInput, texts []TextInput) NodeData {
	switch d := d.(type) {
	case *TextData:
		c := d.Clone().(*TextData)
		c.ConnectedSourceImages, c.ConnectedSourceTexts = images, texts
		return c
	case *ImageData:
		c := d.Clone().(*ImageData)
		c.ConnectedSourceImages, c.ConnectedSourceTexts = images, texts
		return c
	case *SourceData, *GroupData:
		return d
	}
	return d
}
