package upload

import (
	"context"
	"errors"
	"testing"

	"tubeindex/internal/artifacts"
	"tubeindex/internal/config"
	"tubeindex/internal/services"
	"tubeindex/internal/services/vectorstore"
	"tubeindex/internal/state"
)

type fakeIndex struct {
	existing  map[string]bool
	batchSize int
	upserts   [][]vectorstore.Vector
}

func (f *fakeIndex) Upsert(ctx context.Context, vectors []vectorstore.Vector) error {
	f.upserts = append(f.upserts, vectors)
	return nil
}

func (f *fakeIndex) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool)
	for _, id := range ids {
		if f.existing[id] {
			result[id] = true
		}
	}
	return result, nil
}

func (f *fakeIndex) BatchSize() int                        { return f.batchSize }
func (f *fakeIndex) HealthCheck(ctx context.Context) error { return nil }

func newTestHandler(t *testing.T, index Index) (*Handler, *artifacts.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.VectorStore.APIKey = "test-key"
	cfg.VectorStore.IndexHost = "index.example.com"
	store := artifacts.NewStore(&cfg)
	return NewHandler(&cfg, index, store, nil, nil), store
}

func seedArtifacts(t *testing.T, store *artifacts.Store, videoID string, texts ...string) []artifacts.Chunk {
	t.Helper()
	chunks := make([]artifacts.Chunk, len(texts))
	records := make([]artifacts.EmbeddingRecord, len(texts))
	for i, text := range texts {
		hash := artifacts.ContentHash(videoID, i, text)
		chunks[i] = artifacts.Chunk{
			ChunkID:     artifacts.ChunkLabel(videoID, i),
			VideoID:     videoID,
			ChunkIndex:  i,
			StartTime:   float64(i * 75),
			EndTime:     float64((i + 1) * 75),
			Text:        text,
			ContentHash: hash,
		}
		records[i] = artifacts.EmbeddingRecord{ChunkID: hash, Vector: []float32{1, 2}, ModelID: "m"}
	}
	if err := store.SaveChunks(videoID, chunks); err != nil {
		t.Fatalf("seed chunks: %v", err)
	}
	if err := store.SaveEmbeddings(&artifacts.VideoEmbeddings{VideoID: videoID, ModelID: "m", Embeddings: records}); err != nil {
		t.Fatalf("seed embeddings: %v", err)
	}
	return chunks
}

func TestExecuteUploadsMissingVectors(t *testing.T) {
	index := &fakeIndex{existing: map[string]bool{}, batchSize: 100}
	handler, store := newTestHandler(t, index)
	chunks := seedArtifacts(t, store, "vid01", "first", "second")

	video := &state.Video{VideoID: "vid01", Title: "Test Video", ChannelTitle: "Channel"}
	if err := handler.Execute(context.Background(), video); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(index.upserts) != 1 || len(index.upserts[0]) != 2 {
		t.Fatalf("expected one upsert of 2 vectors, got %+v", index.upserts)
	}
	first := index.upserts[0][0]
	if first.ID != chunks[0].ContentHash {
		t.Errorf("vector id should be the content hash, got %q", first.ID)
	}
	if first.Metadata["video_title"] != "Test Video" || first.Metadata["chunk_id"] != "yt-vid01-0000" {
		t.Errorf("unexpected metadata: %+v", first.Metadata)
	}
	if first.Metadata["youtube_url"] != "https://www.youtube.com/watch?v=vid01&t=0s" {
		t.Errorf("unexpected deep link: %v", first.Metadata["youtube_url"])
	}
}

func TestExecuteSkipsExistingHashes(t *testing.T) {
	index := &fakeIndex{existing: map[string]bool{}, batchSize: 100}
	handler, store := newTestHandler(t, index)
	chunks := seedArtifacts(t, store, "vid02", "first", "second")
	index.existing[chunks[0].ContentHash] = true

	if err := handler.Execute(context.Background(), &state.Video{VideoID: "vid02"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(index.upserts) != 1 || len(index.upserts[0]) != 1 {
		t.Fatalf("expected only the missing vector upserted, got %+v", index.upserts)
	}
	if index.upserts[0][0].ID != chunks[1].ContentHash {
		t.Errorf("wrong vector uploaded: %q", index.upserts[0][0].ID)
	}
}

func TestExecuteIsIdempotentWhenAllExist(t *testing.T) {
	index := &fakeIndex{existing: map[string]bool{}, batchSize: 100}
	handler, store := newTestHandler(t, index)
	chunks := seedArtifacts(t, store, "vid03", "only")
	index.existing[chunks[0].ContentHash] = true

	if err := handler.Execute(context.Background(), &state.Video{VideoID: "vid03"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(index.upserts) != 0 {
		t.Errorf("expected no upserts when all hashes exist, got %+v", index.upserts)
	}
}

func TestExecuteSplitsBatches(t *testing.T) {
	index := &fakeIndex{existing: map[string]bool{}, batchSize: 2}
	handler, store := newTestHandler(t, index)
	seedArtifacts(t, store, "vid04", "a", "b", "c", "d", "e")

	if err := handler.Execute(context.Background(), &state.Video{VideoID: "vid04"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(index.upserts) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(index.upserts))
	}
}

func TestExecuteFailsOnMissingVector(t *testing.T) {
	index := &fakeIndex{existing: map[string]bool{}, batchSize: 100}
	handler, store := newTestHandler(t, index)
	seedArtifacts(t, store, "vid05", "stale")

	// Re-chunking changed the text, so the embedding artifact is stale.
	newChunks := []artifacts.Chunk{{
		ChunkID:     artifacts.ChunkLabel("vid05", 0),
		VideoID:     "vid05",
		ChunkIndex:  0,
		StartTime:   0,
		EndTime:     75,
		Text:        "fresh",
		ContentHash: artifacts.ContentHash("vid05", 0, "fresh"),
	}}
	if err := store.SaveChunks("vid05", newChunks); err != nil {
		t.Fatalf("save chunks: %v", err)
	}

	err := handler.Execute(context.Background(), &state.Video{VideoID: "vid05"})
	if !errors.Is(err, services.ErrValidation) {
		t.Errorf("expected validation error for stale embeddings, got %v", err)
	}
}

func TestPrepareRequiresArtifactsAndCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	store := artifacts.NewStore(&cfg)
	handler := NewHandler(&cfg, &fakeIndex{}, store, nil, nil)

	err := handler.Prepare(context.Background(), &state.Video{VideoID: "vid06"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("expected configuration error without credentials, got %v", err)
	}

	cfg.VectorStore.APIKey = "key"
	cfg.VectorStore.IndexHost = "host"
	err = handler.Prepare(context.Background(), &state.Video{VideoID: "vid06"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Errorf("expected not found error without artifacts, got %v", err)
	}
}
