package main

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"tubeindex/internal/artifacts"
	"tubeindex/internal/chunking"
	"tubeindex/internal/config"
	"tubeindex/internal/discovery"
	"tubeindex/internal/embedding"
	"tubeindex/internal/logging"
	"tubeindex/internal/metadata"
	"tubeindex/internal/pipeline"
	"tubeindex/internal/proxy"
	"tubeindex/internal/services/captions"
	"tubeindex/internal/services/embedder"
	"tubeindex/internal/services/vectorstore"
	"tubeindex/internal/services/ytapi"
	"tubeindex/internal/stage"
	"tubeindex/internal/state"
	"tubeindex/internal/transcription"
	"tubeindex/internal/upload"
)

// commandContext lazily loads configuration and shares it across
// subcommands. Service clients are built per invocation; only the
// config (and its logger) are memoized.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.loggerOnce.Do(func() {
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// withStore opens the state store for the duration of fn.
func (c *commandContext) withStore(fn func(cfg *config.Config, store *state.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := state.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// withOrchestrator wires the full pipeline and hands it to fn.
func (c *commandContext) withOrchestrator(fn func(cfg *config.Config, orch *pipeline.Orchestrator) error) error {
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	return c.withStore(func(cfg *config.Config, store *state.Store) error {
		artifactStore := artifacts.NewStore(cfg)

		ytClient := ytapi.NewClient(cfg.YouTube)
		seeder := discovery.NewSeeder(cfg, ytClient, logger)

		pool, err := proxy.NewPool(cfg.Proxy)
		if err != nil {
			return err
		}
		captionSource := captions.NewClient(
			captions.WithTimeout(time.Duration(cfg.Transcripts.TimeoutSeconds) * time.Second))

		handlers := []stage.Handler{
			metadata.NewHandler(cfg, ytClient, store, logger),
			transcription.NewHandler(cfg, captionSource, pool, artifactStore, logger),
			chunking.NewHandler(cfg, artifactStore, logger),
			embedding.NewHandler(cfg, embedder.NewClient(cfg.Embeddings), artifactStore, logger),
			upload.NewHandler(cfg, vectorstore.NewClient(cfg.VectorStore), artifactStore, store, logger),
		}
		return fn(cfg, pipeline.New(cfg, store, seeder, handlers, logger))
	})
}
