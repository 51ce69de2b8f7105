package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/at-ishikawa/kikitori/internal/bootstrap"
	"github.com/at-ishikawa/kikitori/internal/config"
	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/at-ishikawa/kikitori/internal/database"
	"github.com/at-ishikawa/kikitori/internal/embedding"
	"github.com/at-ishikawa/kikitori/internal/embedding/hashing"
	"github.com/at-ishikawa/kikitori/internal/embedding/onnx"
	"github.com/at-ishikawa/kikitori/internal/embedding/openai"
	"github.com/at-ishikawa/kikitori/internal/search"
	"github.com/spf13/cobra"
)

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	if provider != "" {
		loader.Set("embedding.provider", string(provider))
	}
	return loader.Load()
}

// services are the components a command works with. They are closed by the
// shutdown hooks of the bootstrap.App that created them.
type services struct {
	config    *config.Config
	generator *embedding.Generator
	store     *content.Store
	search    *search.Service
}

func newModel(cfg config.EmbeddingConfig) (embedding.Model, error) {
	switch ProviderFlag(cfg.Provider) {
	case ProviderHashing:
		return hashing.NewModel(cfg.Dimension), nil
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
		}
		return openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Model, cfg.Dimension, cfg.OpenAI.MaxRetries), nil
	case ProviderONNX:
		model, err := onnx.NewModel(onnx.Config{
			ModelDirectory:    cfg.ONNX.ModelDirectory,
			SharedLibraryPath: cfg.ONNX.SharedLibraryPath,
			Dimension:         cfg.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("onnx.NewModel(%s) > %w", cfg.ONNX.ModelDirectory, err)
		}
		return model, nil
	}
	return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
}

func newServices(ctx context.Context, app *bootstrap.App, cfg *config.Config) (*services, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database.Open(%s) > %w", cfg.Database.Path, err)
	}
	app.AddShutdownHook(func(ctx context.Context) error {
		return db.Close()
	})

	model, err := newModel(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	generator := embedding.NewGenerator(model,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithConcurrency(cfg.Embedding.Concurrency),
		embedding.WithNormalize(cfg.Embedding.Normalize),
	)
	app.AddShutdownHook(func(ctx context.Context) error {
		return generator.Close()
	})

	store, err := content.NewStore(db, generator, content.WithBackupDirectory(cfg.Database.BackupDirectory))
	if err != nil {
		return nil, fmt.Errorf("content.NewStore() > %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("store.Migrate() > %w", err)
	}

	searchService, err := search.NewService(store, generator,
		search.WithDefaultLimit(cfg.Search.DefaultLimit),
		search.WithCacheSize(cfg.Search.CacheSize),
	)
	if err != nil {
		return nil, fmt.Errorf("search.NewService() > %w", err)
	}

	return &services{
		config:    cfg,
		generator: generator,
		store:     store,
		search:    searchService,
	}, nil
}

// runWithServices loads the configuration and runs fn inside a bootstrap.App,
// so the database and the embedding model are closed even when fn fails.
func runWithServices(cmd *cobra.Command, fn func(ctx context.Context, svc *services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app := bootstrap.New()
	return app.Run(cmd.Context(), func(ctx context.Context) error {
		svc, err := newServices(ctx, app, cfg)
		if err != nil {
			return err
		}
		return fn(ctx, svc)
	})
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", arg)
	}
	return id, nil
}

// readInput reads the named file, or standard input when the name is empty or "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("io.ReadAll(stdin) > %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("os.ReadFile(%s) > %w", args[0], err)
	}
	return string(data), nil
}

func getTranscript(ctx context.Context, store *content.Store, id int64) (*content.Transcript, error) {
	transcript, err := store.GetTranscript(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("store.GetTranscript(%d) > %w", id, err)
	}
	if transcript == nil {
		return nil, fmt.Errorf("transcript %d not found", id)
	}
	return transcript, nil
}
