package preprocess

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/minutes/internal/helpers"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/internal/semantic"
)

// Chunk is a contiguous run of segments sized for one model call.
type Chunk struct {
	ID         string   `json:"id"`
	Topic      int      `json:"topic"`
	Text       string   `json:"text"`
	SegmentIDs []string `json:"segment_ids"`
	Tokens     int      `json:"tokens"`
}

// topicBoundaries returns the indexes at which a new topic starts.
// Sliding windows of windowSize segments are embedded and a boundary is
// declared where consecutive windows drop below the similarity threshold.
// Without embeddings the whole transcript is one topic.
func topicBoundaries(ctx context.Context, embedder semantic.Embedder, segs []segments.Segment, windowSize int, threshold float64) []int {
	if embedder == nil || len(segs) < windowSize+1 {
		return nil
	}
	if windowSize < 1 {
		windowSize = 3
	}

	windowTexts := make([]string, 0, len(segs)-windowSize+1)
	for i := 0; i+windowSize <= len(segs); i++ {
		parts := make([]string, windowSize)
		for j := 0; j < windowSize; j++ {
			parts[j] = segs[i+j].Text
		}
		windowTexts = append(windowTexts, strings.Join(parts, " "))
	}
	if len(windowTexts) < 2 {
		return nil
	}

	vecs, err := embedder.EmbedTexts(ctx, windowTexts)
	if err != nil {
		return nil
	}

	var boundaries []int
	for i := 1; i < len(vecs); i++ {
		if helpers.Cosine(vecs[i-1], vecs[i]) < threshold {
			boundaries = append(boundaries, i)
		}
	}
	return boundaries
}

// buildChunks groups segments into chunks of roughly chunk-sized token
// runs, preferring to break at topic boundaries and at semantic dips
// between consecutive segments. Chunk IDs carry the topic ordinal.
func buildChunks(ctx context.Context, embedder semantic.Embedder, segs []segments.Segment, boundaries []int, maxTokens, minTokens int, simThreshold float64) []Chunk {
	if len(segs) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = 600
	}
	if minTokens <= 0 || minTokens > maxTokens {
		minTokens = maxTokens / 3
	}

	boundarySet := make(map[int]struct{}, len(boundaries))
	for _, b := range boundaries {
		boundarySet[b] = struct{}{}
	}

	// Embed segment texts once for adjacency similarity. A failed embed
	// degrades to size-only chunking.
	var vecs [][]float32
	if embedder != nil {
		texts := make([]string, len(segs))
		for i, s := range segs {
			texts[i] = s.Text
		}
		if v, err := embedder.EmbedTexts(ctx, texts); err == nil {
			vecs = v
		}
	}

	var chunks []Chunk
	topic := 0
	var curSegs []segments.Segment
	curTokens := 0

	flush := func() {
		if len(curSegs) == 0 {
			return
		}
		chunks = append(chunks, makeChunk(len(chunks), topic, curSegs, curTokens))
		curSegs = nil
		curTokens = 0
	}

	for i, seg := range segs {
		segTokens := helpers.EstimateTokens(seg.Text)
		if _, atBoundary := boundarySet[i]; atBoundary && len(curSegs) > 0 {
			flush()
			topic++
		}

		switch {
		case len(curSegs) == 0:
			curSegs = append(curSegs, seg)
			curTokens = segTokens
		case curTokens+segTokens > maxTokens:
			flush()
			curSegs = append(curSegs, seg)
			curTokens = segTokens
		default:
			sim := 1.0
			if vecs != nil {
				sim = helpers.Cosine(vecs[i-1], vecs[i])
			}
			if curTokens >= minTokens && sim < simThreshold {
				flush()
				curSegs = append(curSegs, seg)
				curTokens = segTokens
			} else {
				curSegs = append(curSegs, seg)
				curTokens += segTokens
			}
		}
	}
	flush()
	return chunks
}

func makeChunk(ordinal, topic int, segs []segments.Segment, tokens int) Chunk {
	ids := make([]string, len(segs))
	lines := make([]string, len(segs))
	for i, s := range segs {
		ids[i] = s.ID
		if s.Speaker != "" {
			lines[i] = s.Speaker + ": " + s.Text
		} else {
			lines[i] = s.Text
		}
	}
	return Chunk{
		ID:         fmt.Sprintf("chunk-%04d", ordinal),
		Topic:      topic,
		Text:       strings.Join(lines, "\n"),
		SegmentIDs: ids,
		Tokens:     tokens,
	}
}
