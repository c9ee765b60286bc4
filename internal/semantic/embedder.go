package semantic

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/mohammad-safakhou/minutes/internal/helpers"
	"github.com/mohammad-safakhou/minutes/models"
	"github.com/mohammad-safakhou/minutes/provider"
)

// Embedder produces vector embeddings for texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderEmbedder backs Embedder with an LLM provider and a per-process
// cache. Once the provider reports embeddings unavailable the instance
// stays degraded: segments and items fall back to keyword similarity
// rather than hammering a dead endpoint mid-job.
type ProviderEmbedder struct {
	provider provider.Provider
	model    string
	logger   *log.Logger

	mu       sync.Mutex
	cache    map[string][]float32
	degraded bool
}

// NewProviderEmbedder creates an embedder over the given provider and model.
func NewProviderEmbedder(p provider.Provider, model string, logger *log.Logger) *ProviderEmbedder {
	if logger == nil {
		logger = log.New(log.Writer(), "[EMBED] ", log.LstdFlags)
	}
	return &ProviderEmbedder{
		provider: p,
		model:    model,
		logger:   logger,
		cache:    make(map[string][]float32),
	}
}

// EmbedTexts embeds the given texts, serving cached vectors where possible.
func (e *ProviderEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	if e.degraded {
		e.mu.Unlock()
		return nil, provider.ErrEmbeddingUnavailable
	}
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := e.cache[t]; ok {
			out[i] = v
		} else {
			missing = append(missing, t)
			missingIdx = append(missingIdx, i)
		}
	}
	e.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := e.provider.Embed(ctx, e.model, missing)
	if err != nil {
		if errors.Is(err, provider.ErrEmbeddingUnavailable) {
			e.mu.Lock()
			e.degraded = true
			e.mu.Unlock()
			e.logger.Printf("embeddings unavailable, degrading to keyword similarity: %v", err)
		}
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, errors.New("embedding count mismatch")
	}

	e.mu.Lock()
	for i, v := range vecs {
		e.cache[missing[i]] = v
		out[missingIdx[i]] = v
	}
	e.mu.Unlock()
	return out, nil
}

// Degraded reports whether the embedder has fallen back permanently.
func (e *ProviderEmbedder) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// Similarity returns the semantic similarity of a and b, degrading to
// token Jaccard when embeddings are unavailable. The second return value
// reports which method produced the score.
func Similarity(ctx context.Context, e Embedder, a, b string) (float64, models.ExtractionMethod) {
	if e != nil {
		vecs, err := e.EmbedTexts(ctx, []string{a, b})
		if err == nil && len(vecs) == 2 {
			return helpers.Cosine(vecs[0], vecs[1]), models.MethodSemantic
		}
	}
	return helpers.Jaccard(a, b), models.MethodKeyword
}

// SimilarityMany scores query against each candidate in one embedding call.
func SimilarityMany(ctx context.Context, e Embedder, query string, candidates []string) ([]float64, models.ExtractionMethod) {
	scores := make([]float64, len(candidates))
	if e != nil {
		inputs := append([]string{query}, candidates...)
		vecs, err := e.EmbedTexts(ctx, inputs)
		if err == nil && len(vecs) == len(inputs) {
			for i := range candidates {
				scores[i] = helpers.Cosine(vecs[0], vecs[i+1])
			}
			return scores, models.MethodSemantic
		}
	}
	for i, c := range candidates {
		scores[i] = helpers.Jaccard(query, c)
	}
	return scores, models.MethodKeyword
}
