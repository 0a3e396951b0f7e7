package chunking

import (
	"tubeindex/internal/artifacts"
	"tubeindex/internal/config"
)

// Chunker groups consecutive caption segments into bounded-duration
// chunks. Chunking is pure and deterministic: the same transcript and
// bounds always produce byte-identical chunks and content hashes.
type Chunker struct {
	target float64
	min    float64
	max    float64
}

// NewChunker builds a chunker from the configured duration bounds.
// Bounds are validated at config load time; target falls between min
// and max.
func NewChunker(cfg config.Chunking) *Chunker {
	return &Chunker{target: cfg.TargetSeconds, min: cfg.MinSeconds, max: cfg.MaxSeconds}
}

// Chunk converts a transcript into an ordered chunk sequence. Every
// chunk boundary falls on a caption boundary. A chunk closes once
// adding the next caption would pass the target duration, provided the
// chunk already meets the minimum; the maximum is a hard ceiling that
// forces a close even below target. A trailing buffer shorter than the
// minimum merges into the previous chunk instead of becoming an
// undersized chunk. An empty transcript yields an empty sequence.
func (c *Chunker) Chunk(record *artifacts.TranscriptRecord) []artifacts.Chunk {
	if record == nil || len(record.Segments) == 0 {
		return nil
	}

	type buffer struct {
		start float64
		end   float64
		texts []string
	}

	var (
		chunks []artifacts.Chunk
		buf    *buffer
	)

	flush := func() {
		if buf == nil || len(buf.texts) == 0 {
			return
		}
		index := len(chunks)
		text := artifacts.NormalizeText(joinTexts(buf.texts))
		chunks = append(chunks, artifacts.Chunk{
			ChunkID:     artifacts.ChunkLabel(record.VideoID, index),
			VideoID:     record.VideoID,
			ChunkIndex:  index,
			StartTime:   buf.start,
			EndTime:     buf.end,
			Text:        text,
			ContentHash: artifacts.ContentHash(record.VideoID, index, text),
		})
		buf = nil
	}

	for _, segment := range record.Segments {
		text := artifacts.NormalizeText(segment.Text)
		if text == "" {
			continue
		}
		if buf == nil {
			buf = &buffer{start: segment.Start, end: segment.End, texts: []string{text}}
			continue
		}

		current := buf.end - buf.start
		projected := segment.End - buf.start
		switch {
		case current >= c.target:
			flush()
		case projected > c.max:
			flush()
		case projected > c.target && current >= c.min:
			flush()
		}
		if buf == nil {
			buf = &buffer{start: segment.Start, end: segment.End, texts: []string{text}}
			continue
		}
		buf.texts = append(buf.texts, text)
		buf.end = segment.End
	}

	if buf != nil {
		trailing := buf.end - buf.start
		if trailing < c.min && len(chunks) > 0 {
			// Merge the short tail into the previous chunk and rehash it.
			last := &chunks[len(chunks)-1]
			last.Text = artifacts.NormalizeText(last.Text + " " + joinTexts(buf.texts))
			last.EndTime = buf.end
			last.ContentHash = artifacts.ContentHash(last.VideoID, last.ChunkIndex, last.Text)
			buf = nil
		} else {
			flush()
		}
	}

	return chunks
}

func joinTexts(texts []string) string {
	joined := ""
	for i, text := range texts {
		if i > 0 {
			joined += " "
		}
		joined += text
	}
	return joined
}
