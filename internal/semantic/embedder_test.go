package semantic

import (
	"context"
	"testing"

	"github.com/mohammad-safakhou/minutes/models"
	"github.com/mohammad-safakhou/minutes/provider"
)

type fakeProvider struct {
	provider.Provider
	calls int
	fail  bool
}

func (f *fakeProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, provider.ErrEmbeddingUnavailable
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 8)
		for _, r := range t {
			v[int(r)%8]++
		}
		out[i] = v
	}
	return out, nil
}

func TestEmbedTextsCaches(t *testing.T) {
	fp := &fakeProvider{}
	e := NewProviderEmbedder(fp, "embed-model", nil)

	ctx := context.Background()
	if _, err := e.EmbedTexts(ctx, []string{"alpha", "beta"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := e.EmbedTexts(ctx, []string{"alpha", "beta"}); err != nil {
		t.Fatalf("embed cached: %v", err)
	}
	if fp.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", fp.calls)
	}

	vecs, err := e.EmbedTexts(ctx, []string{"beta", "gamma"})
	if err != nil {
		t.Fatalf("embed partial: %v", err)
	}
	if fp.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", fp.calls)
	}
	if len(vecs) != 2 || vecs[0] == nil || vecs[1] == nil {
		t.Fatalf("expected 2 vectors, got %v", vecs)
	}
}

func TestEmbedderDegrades(t *testing.T) {
	fp := &fakeProvider{fail: true}
	e := NewProviderEmbedder(fp, "embed-model", nil)

	ctx := context.Background()
	if _, err := e.EmbedTexts(ctx, []string{"x"}); err == nil {
		t.Fatal("expected error")
	}
	if !e.Degraded() {
		t.Fatal("expected degraded after embedding failure")
	}
	// Degraded instances short-circuit without calling the provider again.
	_, _ = e.EmbedTexts(ctx, []string{"y"})
	if fp.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", fp.calls)
	}
}

func TestSimilarityFallsBackToKeyword(t *testing.T) {
	fp := &fakeProvider{fail: true}
	e := NewProviderEmbedder(fp, "embed-model", nil)

	score, method := Similarity(context.Background(), e, "migrate the database", "migrate the database")
	if method != models.MethodKeyword {
		t.Fatalf("expected keyword method, got %s", method)
	}
	if score < 0.99 {
		t.Fatalf("expected identical texts to score ~1, got %f", score)
	}
}

func TestSimilarityManySemantic(t *testing.T) {
	e := NewProviderEmbedder(&fakeProvider{}, "embed-model", nil)

	scores, method := SimilarityMany(context.Background(), e, "hello", []string{"hello", "zzzz"})
	if method != models.MethodSemantic {
		t.Fatalf("expected semantic method, got %s", method)
	}
	if scores[0] < scores[1] {
		t.Fatalf("expected identical text to outrank mismatch: %v", scores)
	}
}
