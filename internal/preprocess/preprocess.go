package preprocess

import (
	"context"
	"log"
	"strings"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/internal/semantic"
	"github.com/mohammad-safakhou/minutes/models"
)

// Result holds the cleaned transcript and the chunks downstream stages
// operate on. Segments keep their original IDs through cleaning so
// provenance can point back into the source transcript.
type Result struct {
	Segments *segments.Store
	Chunks   []Chunk
	Metadata models.PreprocessMetadata
}

// Preprocessor runs the full cleaning and chunking pass.
type Preprocessor struct {
	cfg      config.PipelineConfig
	embedder semantic.Embedder
	logger   *log.Logger
}

func New(cfg config.PipelineConfig, embedder semantic.Embedder, logger *log.Logger) *Preprocessor {
	if logger == nil {
		logger = log.New(log.Writer(), "[CLEAN] ", log.LstdFlags)
	}
	return &Preprocessor{cfg: cfg, embedder: embedder, logger: logger}
}

// Run cleans the parsed transcript and splits it into topic-aware chunks.
func (p *Preprocessor) Run(ctx context.Context, store *segments.Store) (*Result, error) {
	segs := store.All()
	meta := models.PreprocessMetadata{OriginalSegments: len(segs)}

	segs, meta.SmallTalkRemoved = removeSmallTalk(segs)
	segs, meta.TurnsMerged = mergeShortTurns(segs)

	before := countWords(segs)
	segs = cleanSegments(segs)
	meta.RepetitionsRemoved = before - countWords(segs)

	segs, meta.SpeakersNormalized = normalizeSpeakers(segs)

	boundaries := topicBoundaries(ctx, p.embedder, segs, p.cfg.TopicWindow, p.cfg.TopicSimilarityThreshold)
	meta.TopicBoundaries = len(boundaries)

	chunks := buildChunks(ctx, p.embedder, segs, boundaries,
		p.cfg.ChunkMaxTokens, p.cfg.ChunkMinTokens, p.cfg.TopicSimilarityThreshold)

	meta.ProcessedSegments = len(segs)
	meta.Chunks = len(chunks)
	if meta.OriginalSegments > 0 {
		meta.ReductionRatio = 1 - float64(len(segs))/float64(meta.OriginalSegments)
	}
	if d, ok := p.embedder.(interface{ Degraded() bool }); ok && d.Degraded() {
		meta.EmbeddingDegraded = true
	}

	p.logger.Printf("preprocessed %d -> %d segments, %d topics, %d chunks",
		meta.OriginalSegments, meta.ProcessedSegments, meta.TopicBoundaries+1, meta.Chunks)

	return &Result{
		Segments: segments.NewStore(segs),
		Chunks:   chunks,
		Metadata: meta,
	}, nil
}

func countWords(segs []segments.Segment) int {
	n := 0
	for _, s := range segs {
		n += len(strings.Fields(s.Text))
	}
	return n
}
