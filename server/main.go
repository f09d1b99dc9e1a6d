package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/adapter"
	"github.com/meikuraledutech/workflow/config"
	"github.com/meikuraledutech/workflow/logging"
	"github.com/meikuraledutech/workflow/memstore"
	"github.com/meikuraledutech/workflow/postgres"
	"github.com/meikuraledutech/workflow/provider"
	"github.com/meikuraledutech/workflow/workspace"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(logging.Options{JSON: cfg.Log.JSON, Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, closeStore, err := openStore(context.Background(), cfg.Database.URL, log)
	if err != nil {
		log.Fatalw("open store", "error", err)
	}
	defer closeStore()

	chat := provider.NewChatClient(provider.ChatConfig{
		BaseURL:       cfg.Text.BaseURL,
		APIKey:        cfg.Text.APIKey,
		Model:         cfg.Text.Model,
		AnalysisModel: cfg.Analysis.Model,
		Timeout:       cfg.HTTP.Timeout,
		Logger:        log.Named("text"),
	})
	images := provider.NewImageClient(provider.ImageConfig{
		BaseURL:      cfg.Image.BaseURL,
		APIKey:       cfg.Image.APIKey,
		DefaultModel: cfg.Image.Model,
		Timeout:      cfg.HTTP.Timeout,
		Logger:       log.Named("image"),
	})
	if !chat.IsConfigured() {
		log.Warnw("text generation is not configured", "key", "text.api_key")
	}
	if !images.IsConfigured() {
		log.Warnw("image generation is not configured", "keys", []string{"image.base_url", "image.api_key"})
	}

	text := &adapter.TextAdapter{Generator: chat, Analyzer: chat, Logger: log.Named("adapter")}
	img := &adapter.ImageAdapter{
		Generator:    images,
		Prober:       adapter.NewHTTPProber(cfg.Probe.Timeout),
		DefaultModel: cfg.Image.Model,
		Logger:       log.Named("adapter"),
	}
	ws := workspace.New(store, adapter.Executors(text, img),
		workspace.WithLogger(log.Named("workspace")),
		workspace.WithPromptAnalyzer(text),
	)

	app := fiber.New()
	routes(app, ws, log.Named("http"))

	log.Infow("listening", "addr", cfg.Listen)
	if err := app.Listen(cfg.Listen); err != nil {
		log.Fatalw("listen", "error", err)
	}
}

// openStore connects to Postgres when url is set and falls back to memory otherwise.
func openStore(ctx context.Context, url string, log *zap.SugaredLogger) (workflow.Store, func(), error) {
	if url == "" {
		log.Infow("no database configured, keeping workflows in memory")
		return memstore.New(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect")
	}
	store := postgres.New(pool)
	if err := store.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "create schema")
	}
	return store, pool.Close, nil
}
