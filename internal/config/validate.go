package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateYouTube(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateYouTube() error {
	if c.YouTube.ChannelID == "" && c.YouTube.ChannelHandle == "" {
		return errors.New("youtube.channel_id or youtube.channel_handle must be set")
	}
	return nil
}

func (c *Config) validateChunking() error {
	if c.Chunking.TargetSeconds <= 0 {
		return errors.New("chunking.target_seconds must be positive")
	}
	if c.Chunking.MinSeconds < 0 {
		return errors.New("chunking.min_seconds must not be negative")
	}
	if c.Chunking.MaxSeconds < c.Chunking.TargetSeconds {
		return fmt.Errorf("chunking.max_seconds (%.0f) must be at least chunking.target_seconds (%.0f)",
			c.Chunking.MaxSeconds, c.Chunking.TargetSeconds)
	}
	if c.Chunking.MinSeconds > c.Chunking.TargetSeconds {
		return fmt.Errorf("chunking.min_seconds (%.0f) must not exceed chunking.target_seconds (%.0f)",
			c.Chunking.MinSeconds, c.Chunking.TargetSeconds)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// RequireYouTubeKey returns an error when the YouTube API key is missing.
// Called by stages that hit the Data API, not at load time, so local-only
// stages (chunking) still run without credentials.
func (c *Config) RequireYouTubeKey() error {
	if c.YouTube.APIKey == "" {
		return errors.New("youtube.api_key is required (create a key at console.cloud.google.com and run 'tubeindex config init')")
	}
	return nil
}

// RequireEmbeddingsKey returns an error when the embedding service key is missing.
func (c *Config) RequireEmbeddingsKey() error {
	if c.Embeddings.APIKey == "" {
		return errors.New("embeddings.api_key is required for the embedding stage")
	}
	return nil
}

// RequireVectorStore returns an error when vector store connection settings are missing.
func (c *Config) RequireVectorStore() error {
	if c.VectorStore.APIKey == "" {
		return errors.New("vector_store.api_key is required for the upload stage")
	}
	if c.VectorStore.IndexHost == "" {
		return errors.New("vector_store.index_host is required for the upload stage")
	}
	return nil
}
