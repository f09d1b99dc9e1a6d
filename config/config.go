// Package config loads service configuration from defaults, an optional
// workflow.toml, WORKFLOW_* environment variables and command-line flags.
package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultFile is read from the working directory when present.
const DefaultFile = "workflow.toml"

const envPrefix = "WORKFLOW_"

// Config holds all configuration for the service.
type Config struct {
	Listen   string   `koanf:"listen"`
	Database Database `koanf:"database"`
	Log      Log      `koanf:"log"`
	Text     Endpoint `koanf:"text"`
	Image    Endpoint `koanf:"image"`
	Analysis Analysis `koanf:"analysis"`
	HTTP     HTTP     `koanf:"http"`
	Probe    Probe    `koanf:"probe"`
}

// Database configures the Postgres store. An empty URL selects the in-memory store.
type Database struct {
	URL string `koanf:"url"`
}

type Log struct {
	JSON  bool   `koanf:"json"`
	Level string `koanf:"level"`
}

// Endpoint is a generation back-end.
type Endpoint struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
}

type Analysis struct {
	Model string `koanf:"model"`
}

type HTTP struct {
	Timeout time.Duration `koanf:"timeout"`
}

type Probe struct {
	Timeout time.Duration `koanf:"timeout"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen":   ":3000",
		"database": map[string]interface{}{"url": ""},
		"log":      map[string]interface{}{"json": false, "level": "info"},
		"text": map[string]interface{}{
			"base_url": "https://openrouter.ai/api/v1",
			"api_key":  "",
			"model":    "openai/gpt-4o-mini",
		},
		"image": map[string]interface{}{
			"base_url": "",
			"api_key":  "",
			"model":    "bfl:2@1",
		},
		"analysis": map[string]interface{}{"model": ""},
		"http":     map[string]interface{}{"timeout": "120s"},
		"probe":    map[string]interface{}{"timeout": "15s"},
	}
}

// Flags returns the flag set understood by Load. Flag names match config keys.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("workflow", pflag.ContinueOnError)
	f.String("listen", ":3000", "HTTP listen address")
	f.String("database.url", "", "Postgres connection URL; empty keeps workflows in memory")
	f.Bool("log.json", false, "emit JSON logs")
	f.String("log.level", "info", "minimum log level")
	f.String("config", DefaultFile, "configuration file")
	return f
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults. A missing config file is not an error.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	path := DefaultFile
	if f != nil {
		if p, err := f.GetString("config"); err == nil && p != "" {
			path = p
		}
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil && !isNotExist(err) {
		return nil, errors.Wrapf(err, "load %s", path)
	}

	// WORKFLOW_TEXT_API_KEY -> text.api_key
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "load env vars")
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, errors.Wrap(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// envKey maps an environment variable to a config key. The first underscore
// separates the section from the field so that field names keep theirs.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + field
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

type mapProvider map[string]interface{}

func (p mapProvider) Read() (map[string]interface{}, error) { return p, nil }

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("not implemented")
}
