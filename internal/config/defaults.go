package config

const (
	defaultDataDir = "~/.local/share/tubeindex/data"
	defaultLogDir  = "~/.local/share/tubeindex/logs"

	defaultYouTubeTimeoutSeconds    = 30
	defaultYouTubeRequestsPerMinute = 60

	defaultProxyMaxFailures     = 3
	defaultProxyCooldownSeconds = 300

	defaultTranscriptMaxAttempts    = 4
	defaultTranscriptBackoffBaseMS  = 1000
	defaultTranscriptBackoffMaxMS   = 30000
	defaultTranscriptWorkers        = 2
	defaultTranscriptTimeoutSeconds = 30

	// Chunk duration bounds tuned for spoken content: shorter chunks
	// lose context, longer chunks dilute search relevance.
	defaultChunkTargetSeconds = 75
	defaultChunkMinSeconds    = 45
	defaultChunkMaxSeconds    = 120

	defaultEmbeddingsBaseURL           = "https://api.openai.com/v1"
	defaultEmbeddingsModel             = "text-embedding-3-small"
	defaultEmbeddingsDimensions        = 1536
	defaultEmbeddingsBatchSize         = 100
	defaultEmbeddingsRequestsPerMinute = 300
	defaultEmbeddingsTimeoutSeconds    = 60

	defaultVectorStoreNamespace      = "youtube"
	defaultVectorStoreBatchSize      = 100
	defaultVectorStoreTimeoutSeconds = 60

	defaultFailureRateThreshold = 0.5
	defaultTestLimit            = 3

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		YouTube: YouTube{
			TimeoutSeconds:    defaultYouTubeTimeoutSeconds,
			RequestsPerMinute: defaultYouTubeRequestsPerMinute,
		},
		Proxy: Proxy{
			MaxFailures:     defaultProxyMaxFailures,
			CooldownSeconds: defaultProxyCooldownSeconds,
		},
		Transcripts: Transcripts{
			MaxAttempts:      defaultTranscriptMaxAttempts,
			BackoffBaseMilli: defaultTranscriptBackoffBaseMS,
			BackoffMaxMilli:  defaultTranscriptBackoffMaxMS,
			Workers:          defaultTranscriptWorkers,
			TimeoutSeconds:   defaultTranscriptTimeoutSeconds,
		},
		Chunking: Chunking{
			TargetSeconds: defaultChunkTargetSeconds,
			MinSeconds:    defaultChunkMinSeconds,
			MaxSeconds:    defaultChunkMaxSeconds,
		},
		Embeddings: Embeddings{
			BaseURL:           defaultEmbeddingsBaseURL,
			Model:             defaultEmbeddingsModel,
			Dimensions:        defaultEmbeddingsDimensions,
			BatchSize:         defaultEmbeddingsBatchSize,
			RequestsPerMinute: defaultEmbeddingsRequestsPerMinute,
			TimeoutSeconds:    defaultEmbeddingsTimeoutSeconds,
		},
		VectorStore: VectorStore{
			Namespace:      defaultVectorStoreNamespace,
			BatchSize:      defaultVectorStoreBatchSize,
			TimeoutSeconds: defaultVectorStoreTimeoutSeconds,
		},
		Pipeline: Pipeline{
			FailureRateThreshold: defaultFailureRateThreshold,
			TestLimit:            defaultTestLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
