package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeYouTube()
	c.normalizeProxy()
	c.normalizeTranscripts()
	c.normalizeEmbeddings()
	c.normalizeVectorStore()
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeYouTube() {
	c.YouTube.APIKey = strings.TrimSpace(c.YouTube.APIKey)
	c.YouTube.ChannelID = strings.TrimSpace(c.YouTube.ChannelID)
	c.YouTube.ChannelHandle = strings.TrimSpace(c.YouTube.ChannelHandle)
	if c.YouTube.TimeoutSeconds <= 0 {
		c.YouTube.TimeoutSeconds = defaultYouTubeTimeoutSeconds
	}
	if c.YouTube.RequestsPerMinute <= 0 {
		c.YouTube.RequestsPerMinute = defaultYouTubeRequestsPerMinute
	}
}

func (c *Config) normalizeProxy() {
	urls := make([]string, 0, len(c.Proxy.URLs))
	for _, raw := range c.Proxy.URLs {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	c.Proxy.URLs = urls
	if c.Proxy.MaxFailures <= 0 {
		c.Proxy.MaxFailures = defaultProxyMaxFailures
	}
	if c.Proxy.CooldownSeconds <= 0 {
		c.Proxy.CooldownSeconds = defaultProxyCooldownSeconds
	}
}

func (c *Config) normalizeTranscripts() {
	if c.Transcripts.MaxAttempts <= 0 {
		c.Transcripts.MaxAttempts = defaultTranscriptMaxAttempts
	}
	if c.Transcripts.BackoffBaseMilli <= 0 {
		c.Transcripts.BackoffBaseMilli = defaultTranscriptBackoffBaseMS
	}
	if c.Transcripts.BackoffMaxMilli <= 0 {
		c.Transcripts.BackoffMaxMilli = defaultTranscriptBackoffMaxMS
	}
	if c.Transcripts.Workers <= 0 {
		c.Transcripts.Workers = defaultTranscriptWorkers
	}
	if c.Transcripts.TimeoutSeconds <= 0 {
		c.Transcripts.TimeoutSeconds = defaultTranscriptTimeoutSeconds
	}
}

func (c *Config) normalizeEmbeddings() {
	c.Embeddings.APIKey = strings.TrimSpace(c.Embeddings.APIKey)
	c.Embeddings.BaseURL = strings.TrimRight(strings.TrimSpace(c.Embeddings.BaseURL), "/")
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = defaultEmbeddingsBaseURL
	}
	c.Embeddings.Model = strings.TrimSpace(c.Embeddings.Model)
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = defaultEmbeddingsModel
	}
	if c.Embeddings.Dimensions <= 0 {
		c.Embeddings.Dimensions = defaultEmbeddingsDimensions
	}
	if c.Embeddings.BatchSize <= 0 {
		c.Embeddings.BatchSize = defaultEmbeddingsBatchSize
	}
	if c.Embeddings.RequestsPerMinute <= 0 {
		c.Embeddings.RequestsPerMinute = defaultEmbeddingsRequestsPerMinute
	}
	if c.Embeddings.TimeoutSeconds <= 0 {
		c.Embeddings.TimeoutSeconds = defaultEmbeddingsTimeoutSeconds
	}
}

func (c *Config) normalizeVectorStore() {
	c.VectorStore.APIKey = strings.TrimSpace(c.VectorStore.APIKey)
	c.VectorStore.IndexHost = strings.TrimRight(strings.TrimSpace(c.VectorStore.IndexHost), "/")
	c.VectorStore.Namespace = strings.TrimSpace(c.VectorStore.Namespace)
	if c.VectorStore.Namespace == "" {
		c.VectorStore.Namespace = defaultVectorStoreNamespace
	}
	if c.VectorStore.BatchSize <= 0 {
		c.VectorStore.BatchSize = defaultVectorStoreBatchSize
	}
	if c.VectorStore.TimeoutSeconds <= 0 {
		c.VectorStore.TimeoutSeconds = defaultVectorStoreTimeoutSeconds
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.FailureRateThreshold < 0 {
		c.Pipeline.FailureRateThreshold = 0
	}
	if c.Pipeline.FailureRateThreshold > 1 {
		c.Pipeline.FailureRateThreshold = 1
	}
	if c.Pipeline.TestLimit <= 0 {
		c.Pipeline.TestLimit = defaultTestLimit
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
