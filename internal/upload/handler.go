package upload

import (
	"context"
	"fmt"
	"log/slog"

	"tubeindex/internal/artifacts"
	"tubeindex/internal/config"
	"tubeindex/internal/logging"
	"tubeindex/internal/services"
	"tubeindex/internal/services/vectorstore"
	"tubeindex/internal/stage"
	"tubeindex/internal/state"
)

// Vectorstore metadata keeps the chunk text preview under the per-vector
// size limit.
const (
	textPreviewLimit = 1000
	titleLimit       = 200
)

// Index is the subset of the vector store client the stage needs.
type Index interface {
	Upsert(ctx context.Context, vectors []vectorstore.Vector) error
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	BatchSize() int
	HealthCheck(ctx context.Context) error
}

// Handler runs the upload stage: it upserts each chunk's vector keyed
// by content hash, skipping hashes the index already holds, so re-runs
// never double-insert.
type Handler struct {
	cfg    *config.Config
	index  Index
	store  *artifacts.Store
	videos *state.Store
	logger *slog.Logger
}

// NewHandler builds the upload stage handler.
func NewHandler(cfg *config.Config, index Index, store *artifacts.Store, videos *state.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:    cfg,
		index:  index,
		store:  store,
		videos: videos,
		logger: logger.With(logging.String(logging.FieldComponent, "upload")),
	}
}

// Stage identifies the pipeline stage this handler serves.
func (h *Handler) Stage() state.Stage {
	return state.StageUpload
}

// Prepare verifies credentials and the upstream artifacts.
func (h *Handler) Prepare(ctx context.Context, video *state.Video) error {
	if err := h.cfg.RequireVectorStore(); err != nil {
		return services.Wrap(services.ErrConfiguration, "upload", "prepare", err.Error(), nil)
	}
	if !h.store.HasChunks(video.VideoID) {
		return services.Wrap(services.ErrNotFound, "upload", "prepare",
			fmt.Sprintf("chunk artifact missing for %s", video.VideoID), nil)
	}
	if !h.store.HasEmbeddings(video.VideoID) {
		return services.Wrap(services.ErrNotFound, "upload", "prepare",
			fmt.Sprintf("embedding artifact missing for %s", video.VideoID), nil)
	}
	return nil
}

// Execute upserts the video's chunk vectors that the index does not
// already hold.
func (h *Handler) Execute(ctx context.Context, video *state.Video) error {
	chunks, err := h.store.LoadChunks(video.VideoID)
	if err != nil {
		return err
	}
	embeddings, err := h.store.LoadEmbeddings(video.VideoID)
	if err != nil {
		return err
	}
	vectorsByHash := make(map[string][]float32, len(embeddings.Embeddings))
	for _, record := range embeddings.Embeddings {
		vectorsByHash[record.ChunkID] = record.Vector
	}

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ContentHash
	}
	existing, err := h.index.ExistingIDs(ctx, ids)
	if err != nil {
		return err
	}

	var vectors []vectorstore.Vector
	for _, chunk := range chunks {
		if existing[chunk.ContentHash] {
			continue
		}
		values, ok := vectorsByHash[chunk.ContentHash]
		if !ok {
			return services.Wrap(services.ErrValidation, "upload", "execute",
				fmt.Sprintf("no vector for chunk %s; re-run the embedding stage", chunk.ChunkID), nil)
		}
		vectors = append(vectors, vectorstore.Vector{
			ID:       chunk.ContentHash,
			Values:   values,
			Metadata: h.metadata(video, chunk),
		})
	}

	if len(vectors) == 0 {
		h.logger.InfoContext(ctx, "all vectors already uploaded",
			logging.String(logging.FieldVideoID, video.VideoID),
			logging.Int("chunks", len(chunks)))
		return nil
	}

	batchSize := h.index.BatchSize()
	if batchSize <= 0 {
		batchSize = len(vectors)
	}
	for start := 0; start < len(vectors); start += batchSize {
		end := start + batchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		if err := h.index.Upsert(ctx, vectors[start:end]); err != nil {
			return err
		}
	}

	h.logger.InfoContext(ctx, "uploaded vectors",
		logging.String(logging.FieldVideoID, video.VideoID),
		logging.Int("uploaded", len(vectors)),
		logging.Int("skipped", len(chunks)-len(vectors)))
	return nil
}

// HealthCheck reports whether the vector index is reachable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.index.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(string(state.StageUpload), err.Error())
	}
	return stage.Healthy(string(state.StageUpload))
}

// metadata builds the searchable fields stored alongside each vector.
func (h *Handler) metadata(video *state.Video, chunk artifacts.Chunk) map[string]any {
	preview := chunk.Text
	if len(preview) > textPreviewLimit {
		preview = preview[:textPreviewLimit] + "..."
	}
	title := video.Title
	if len(title) > titleLimit {
		title = title[:titleLimit]
	}
	return map[string]any{
		"chunk_id":         chunk.ChunkID,
		"video_id":         chunk.VideoID,
		"chunk_index":      chunk.ChunkIndex,
		"text":             preview,
		"start_time":       chunk.StartTime,
		"end_time":         chunk.EndTime,
		"start_timestamp":  artifacts.FormatTimestamp(chunk.StartTime),
		"end_timestamp":    artifacts.FormatTimestamp(chunk.EndTime),
		"duration_seconds": chunk.Duration(),
		"video_title":      title,
		"channel":          video.ChannelTitle,
		"thumbnail_url":    video.ThumbnailURL,
		"youtube_url":      chunk.DeepLink(),
		"video_url":        "https://www.youtube.com/watch?v=" + chunk.VideoID,
		"content_type":     "youtube_transcript",
	}
}
