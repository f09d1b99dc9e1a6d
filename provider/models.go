package provider

import (
	"slices"
	"strings"
)

// ModelProfile describes how an image model accepts input images.
type ModelProfile struct {
	ID       string
	Name     string
	Provider string
	// MultiReference models take a list of reference images and ignore strength
	// and seed parameters. The others take one seed image plus a strength.
	MultiReference     bool
	MaxReferenceImages int
}

// SeedStrength is the strength sent with a seed image.
const SeedStrength = 0.75

// DefaultImageModel is used when a node names no model.
const DefaultImageModel = "bfl:2@1"

var multiReferenceProviders = []string{"bfl", "google", "bytedance", "openai"}

var knownModels = []ModelProfile{
	{ID: "bfl:2@1", Name: "FLUX.1 Kontext [pro]", Provider: "bfl", MultiReference: true, MaxReferenceImages: 4},
	{ID: "bfl:3@1", Name: "FLUX.1 Kontext [max]", Provider: "bfl", MultiReference: true, MaxReferenceImages: 4},
	{ID: "google:4@1", Name: "Gemini 2.5 Flash Image", Provider: "google", MultiReference: true, MaxReferenceImages: 8},
	{ID: "bytedance:5@0", Name: "Seedream 4.0", Provider: "bytedance", MultiReference: true, MaxReferenceImages: 14},
	{ID: "openai:1@1", Name: "GPT Image 1", Provider: "openai", MultiReference: true, MaxReferenceImages: 16},
	{ID: "runware:101@1", Name: "FLUX.1 Dev", Provider: "runware"},
	{ID: "runware:100@1", Name: "FLUX.1 Schnell", Provider: "runware"},
	{ID: "civitai:4384@130072", Name: "DreamShaper", Provider: "civitai"},
}

// Models returns the built-in model table.
func Models() []ModelProfile {
	return slices.Clone(knownModels)
}

// ParseAIR splits an AIR identifier of the form provider:model@version.
func ParseAIR(id string) (provider, model, version string, ok bool) {
	provider, rest, found := strings.Cut(id, ":")
	if !found || provider == "" {
		return "", "", "", false
	}
	model, version, found = strings.Cut(rest, "@")
	if !found || model == "" || version == "" {
		return "", "", "", false
	}
	return provider, model, version, true
}

// LookupModel returns the profile of a model. Models missing from the table get a
// profile derived from their provider prefix; unparseable ids fall back to the
// single seed image shape.
func LookupModel(id string) ModelProfile {
	for _, m := range knownModels {
		if m.ID == id {
			return m
		}
	}
	provider, _, _, ok := ParseAIR(id)
	if !ok {
		return ModelProfile{ID: id, Name: id}
	}
	return ModelProfile{
		ID:             id,
		Name:           id,
		Provider:       provider,
		MultiReference: slices.Contains(multiReferenceProviders, provider),
	}
}
