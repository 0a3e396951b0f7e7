package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tubeindex/internal/config"
	"tubeindex/internal/services"
)

const (
	transcriptsDir = "transcripts"
	chunksDir      = "chunks"
	embeddingsDir  = "embeddings"
)

// ErrArtifactNotFound is returned when a per-video artifact file is absent.
var ErrArtifactNotFound = errors.New("artifact not found")

// Store persists per-video derived artifacts as JSON files under the
// data directory, one file per video per stage. Writes go through a
// temp file and rename so a crashed run never leaves a truncated
// artifact behind.
type Store struct {
	dataDir string
}

// NewStore creates the artifact store rooted at the configured data directory.
func NewStore(cfg *config.Config) *Store {
	return &Store{dataDir: cfg.Paths.DataDir}
}

// TranscriptPath returns the transcript artifact path for a video.
func (s *Store) TranscriptPath(videoID string) string {
	return filepath.Join(s.dataDir, transcriptsDir, videoID+".json")
}

// ChunksPath returns the chunk artifact path for a video.
func (s *Store) ChunksPath(videoID string) string {
	return filepath.Join(s.dataDir, chunksDir, videoID+".json")
}

// EmbeddingsPath returns the embedding artifact path for a video.
func (s *Store) EmbeddingsPath(videoID string) string {
	return filepath.Join(s.dataDir, embeddingsDir, videoID+".json")
}

// SaveTranscript writes the transcript artifact for a video.
func (s *Store) SaveTranscript(record *TranscriptRecord) error {
	if record == nil || record.VideoID == "" {
		return services.Wrap(services.ErrValidation, "transcription", "save_transcript", "transcript record missing video id", nil)
	}
	if len(record.Segments) == 0 {
		return services.Wrap(services.ErrValidation, "transcription", "save_transcript", "transcript has no segments", nil)
	}
	return s.writeJSON(s.TranscriptPath(record.VideoID), record)
}

// LoadTranscript reads the transcript artifact for a video.
func (s *Store) LoadTranscript(videoID string) (*TranscriptRecord, error) {
	var record TranscriptRecord
	if err := s.readJSON(s.TranscriptPath(videoID), &record); err != nil {
		return nil, err
	}
	if len(record.Segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, "chunking", "load_transcript", fmt.Sprintf("transcript for %s has no segments", videoID), nil)
	}
	return &record, nil
}

// HasTranscript reports whether a transcript artifact exists for a video.
func (s *Store) HasTranscript(videoID string) bool {
	return fileExists(s.TranscriptPath(videoID))
}

// SaveChunks writes the chunk artifact for a video.
func (s *Store) SaveChunks(videoID string, chunks []Chunk) error {
	if videoID == "" {
		return services.Wrap(services.ErrValidation, "chunking", "save_chunks", "missing video id", nil)
	}
	if len(chunks) == 0 {
		return services.Wrap(services.ErrValidation, "chunking", "save_chunks", "chunk list is empty", nil)
	}
	return s.writeJSON(s.ChunksPath(videoID), chunks)
}

// LoadChunks reads the chunk artifact for a video.
func (s *Store) LoadChunks(videoID string) ([]Chunk, error) {
	var chunks []Chunk
	if err := s.readJSON(s.ChunksPath(videoID), &chunks); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, services.Wrap(services.ErrValidation, "embedding", "load_chunks", fmt.Sprintf("chunk artifact for %s is empty", videoID), nil)
	}
	return chunks, nil
}

// HasChunks reports whether a chunk artifact exists for a video.
func (s *Store) HasChunks(videoID string) bool {
	return fileExists(s.ChunksPath(videoID))
}

// SaveEmbeddings writes the embedding artifact for a video.
func (s *Store) SaveEmbeddings(record *VideoEmbeddings) error {
	if record == nil || record.VideoID == "" {
		return services.Wrap(services.ErrValidation, "embedding", "save_embeddings", "embedding record missing video id", nil)
	}
	if len(record.Embeddings) == 0 {
		return services.Wrap(services.ErrValidation, "embedding", "save_embeddings", "embedding list is empty", nil)
	}
	return s.writeJSON(s.EmbeddingsPath(record.VideoID), record)
}

// LoadEmbeddings reads the embedding artifact for a video.
func (s *Store) LoadEmbeddings(videoID string) (*VideoEmbeddings, error) {
	var record VideoEmbeddings
	if err := s.readJSON(s.EmbeddingsPath(videoID), &record); err != nil {
		return nil, err
	}
	if len(record.Embeddings) == 0 {
		return nil, services.Wrap(services.ErrValidation, "upload", "load_embeddings", fmt.Sprintf("embedding artifact for %s is empty", videoID), nil)
	}
	return &record, nil
}

// HasEmbeddings reports whether an embedding artifact exists for a video.
func (s *Store) HasEmbeddings(videoID string) bool {
	return fileExists(s.EmbeddingsPath(videoID))
}

func (s *Store) writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

func (s *Store) readJSON(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
