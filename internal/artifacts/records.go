package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CaptionSegment is one caption line with its time bounds in seconds.
type CaptionSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the segment length in seconds.
func (s CaptionSegment) Duration() float64 {
	return s.End - s.Start
}

// TranscriptRecord is the normalized transcript for one video, produced
// by the transcription stage and overwritten only on explicit re-extraction.
type TranscriptRecord struct {
	VideoID   string           `json:"video_id"`
	RawText   string           `json:"raw_text"`
	FetchedAt time.Time        `json:"fetched_at"`
	Segments  []CaptionSegment `json:"segments"`
}

// Chunk is a bounded-duration transcript segment, the atomic search unit.
type Chunk struct {
	// ChunkID is the human-readable label yt-<video>-<index>.
	ChunkID    string  `json:"chunk_id"`
	VideoID    string  `json:"video_id"`
	ChunkIndex int     `json:"chunk_index"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Text       string  `json:"text"`
	// ContentHash is the idempotency key for embedding and upload.
	ContentHash string `json:"content_hash"`
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 {
	return c.EndTime - c.StartTime
}

// DeepLink returns a YouTube URL that starts playback at the chunk.
func (c Chunk) DeepLink() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", c.VideoID, int(c.StartTime))
}

// ChunkLabel formats the canonical chunk label for a video and index.
func ChunkLabel(videoID string, index int) string {
	return fmt.Sprintf("yt-%s-%04d", videoID, index)
}

// ContentHash computes the deterministic fingerprint of a chunk's
// identity. Re-running chunking on unchanged input must reproduce
// identical hashes, so the input is exactly (video_id, chunk_index, text).
func ContentHash(videoID string, chunkIndex int, text string) string {
	payload := fmt.Sprintf("%s:%d:%s", videoID, chunkIndex, text)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// EmbeddingRecord pairs one chunk's content hash with its vector.
type EmbeddingRecord struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
	ModelID string    `json:"model_id"`
}

// VideoEmbeddings is the embedding artifact for one video.
type VideoEmbeddings struct {
	VideoID    string            `json:"video_id"`
	ModelID    string            `json:"model_id"`
	Embeddings []EmbeddingRecord `json:"embeddings"`
}

// FormatTimestamp renders seconds as m:ss or h:mm:ss for display metadata.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// NormalizeText collapses runs of whitespace into single spaces.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
