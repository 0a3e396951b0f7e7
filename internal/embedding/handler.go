package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tubeindex/internal/artifacts"
	"tubeindex/internal/config"
	"tubeindex/internal/logging"
	"tubeindex/internal/services"
	"tubeindex/internal/stage"
	"tubeindex/internal/state"
)

// Embedder is the subset of the embedding client the stage needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	BatchSize() int
	HealthCheck(ctx context.Context) error
}

// Handler runs the embedding stage: it embeds each chunk's text and
// persists the vectors keyed by content hash. Chunks whose hash already
// has a vector from the same model are skipped, so re-runs only pay for
// new or changed chunks.
type Handler struct {
	cfg      *config.Config
	embedder Embedder
	store    *artifacts.Store
	logger   *slog.Logger
}

// NewHandler builds the embedding stage handler.
func NewHandler(cfg *config.Config, embedder Embedder, store *artifacts.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "embedding")),
	}
}

// Stage identifies the pipeline stage this handler serves.
func (h *Handler) Stage() state.Stage {
	return state.StageEmbedding
}

// Prepare verifies credentials and the chunk artifact.
func (h *Handler) Prepare(ctx context.Context, video *state.Video) error {
	if err := h.cfg.RequireEmbeddingsKey(); err != nil {
		return services.Wrap(services.ErrConfiguration, "embedding", "prepare", err.Error(), nil)
	}
	if !h.store.HasChunks(video.VideoID) {
		return services.Wrap(services.ErrNotFound, "embedding", "prepare",
			fmt.Sprintf("chunk artifact missing for %s", video.VideoID), nil)
	}
	return nil
}

// Execute embeds the video's chunks and writes the embedding artifact.
func (h *Handler) Execute(ctx context.Context, video *state.Video) error {
	chunks, err := h.store.LoadChunks(video.VideoID)
	if err != nil {
		return err
	}

	existing := h.loadExisting(video.VideoID)

	var (
		pending     []artifacts.Chunk
		reusedCount int
	)
	for _, chunk := range chunks {
		if _, ok := existing[chunk.ContentHash]; ok {
			reusedCount++
			continue
		}
		pending = append(pending, chunk)
	}

	embedded, err := h.embedPending(ctx, pending)
	if err != nil {
		return err
	}
	for hash, record := range embedded {
		existing[hash] = record
	}

	// Assemble in chunk order; stale hashes from earlier chunkings drop out.
	records := make([]artifacts.EmbeddingRecord, 0, len(chunks))
	for _, chunk := range chunks {
		record, ok := existing[chunk.ContentHash]
		if !ok {
			return services.Wrap(services.ErrValidation, "embedding", "execute",
				fmt.Sprintf("no vector produced for chunk %s", chunk.ChunkID), nil)
		}
		records = append(records, record)
	}

	if err := h.store.SaveEmbeddings(&artifacts.VideoEmbeddings{
		VideoID:    video.VideoID,
		ModelID:    h.embedder.Model(),
		Embeddings: records,
	}); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "embedded chunks",
		logging.String(logging.FieldVideoID, video.VideoID),
		logging.Int("chunks", len(chunks)),
		logging.Int("embedded", len(pending)),
		logging.Int("reused", reusedCount))
	return nil
}

// HealthCheck reports whether the embedding service is usable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.embedder.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(string(state.StageEmbedding), err.Error())
	}
	return stage.Healthy(string(state.StageEmbedding))
}

// loadExisting returns reusable vectors from a prior run keyed by
// content hash. An artifact from a different model is discarded whole.
func (h *Handler) loadExisting(videoID string) map[string]artifacts.EmbeddingRecord {
	existing := make(map[string]artifacts.EmbeddingRecord)
	record, err := h.store.LoadEmbeddings(videoID)
	if err != nil {
		if !errors.Is(err, artifacts.ErrArtifactNotFound) {
			h.logger.Warn("ignoring unreadable embedding artifact",
				logging.String(logging.FieldVideoID, videoID),
				logging.Error(err))
		}
		return existing
	}
	if record.ModelID != h.embedder.Model() {
		return existing
	}
	for _, item := range record.Embeddings {
		existing[item.ChunkID] = item
	}
	return existing
}

func (h *Handler) embedPending(ctx context.Context, pending []artifacts.Chunk) (map[string]artifacts.EmbeddingRecord, error) {
	embedded := make(map[string]artifacts.EmbeddingRecord, len(pending))
	if len(pending) == 0 {
		return embedded, nil
	}

	batchSize := h.embedder.BatchSize()
	if batchSize <= 0 {
		batchSize = len(pending)
	}
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}
		vectors, err := h.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, chunk := range batch {
			embedded[chunk.ContentHash] = artifacts.EmbeddingRecord{
				ChunkID: chunk.ContentHash,
				Vector:  vectors[i],
				ModelID: h.embedder.Model(),
			}
		}
	}
	return embedded, nil
}
