package summarize

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/minutes/internal/preprocess"
	"github.com/mohammad-safakhou/minutes/models"
	"github.com/mohammad-safakhou/minutes/provider"
)

// scriptedProvider summarizes deterministically and can reject long
// prompts with the input-too-long sentinel.
type scriptedProvider struct {
	provider.Provider
	maxPromptLen int
	calls        int
}

func (p *scriptedProvider) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	p.calls++
	if p.maxPromptLen > 0 && len(prompt) > p.maxPromptLen {
		return "", 0, 0, provider.ErrInputTooLong
	}
	return fmt.Sprintf("summary#%d", p.calls), int64(len(prompt) / 4), 10, nil
}

func TestNarrativeSummarizesEachChunkThenMerges(t *testing.T) {
	p := &scriptedProvider{}
	s := New(p, "fast-model", "", 120, nil)

	chunks := []preprocess.Chunk{
		{ID: "chunk-0000", Text: "first part of the meeting"},
		{ID: "chunk-0001", Text: "second part of the meeting"},
	}
	sum, err := s.Narrative(context.Background(), chunks)
	if err != nil {
		t.Fatalf("narrative: %v", err)
	}
	// Two chunk calls plus one merge call.
	if p.calls != 3 {
		t.Fatalf("expected 3 model calls, got %d", p.calls)
	}
	if len(sum.Levels) != 3 {
		t.Fatalf("expected 2 chunk levels + 1 merge level, got %d", len(sum.Levels))
	}
	if sum.Levels[2].Level != 2 || sum.Levels[2].Text == "" {
		t.Fatalf("missing merged narrative: %+v", sum.Levels[2])
	}
	if s.PromptTokens == 0 || s.CompletionTokens == 0 {
		t.Fatal("token usage not recorded")
	}
}

func TestMergeRecursesOnInputTooLong(t *testing.T) {
	// Small prompt budget forces the first merge of four partials to be
	// rejected, requiring a recursive split.
	p := &scriptedProvider{maxPromptLen: 400}
	s := New(p, "fast-model", "", 120, nil)

	partials := []string{
		strings.Repeat("alpha ", 20),
		strings.Repeat("beta ", 20),
		strings.Repeat("gamma ", 20),
		strings.Repeat("delta ", 20),
	}
	out, err := s.merge(context.Background(), partials)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if out == "" {
		t.Fatal("empty merged summary")
	}
	if p.calls < 3 {
		t.Fatalf("expected recursive merge calls, got %d", p.calls)
	}
}

func TestSummarizeTextSplitsOversizedChunk(t *testing.T) {
	p := &scriptedProvider{maxPromptLen: 600}
	s := New(p, "fast-model", "", 120, nil)

	long := strings.Repeat("the team discussed rollout sequencing in detail ", 30)
	out, err := s.summarizeText(context.Background(), long)
	if err != nil {
		t.Fatalf("summarizeText: %v", err)
	}
	if out == "" {
		t.Fatal("empty summary")
	}
	if p.calls < 3 {
		t.Fatalf("expected split + recursion, got %d calls", p.calls)
	}
}

func TestExecutiveIncludesArtifacts(t *testing.T) {
	var captured string
	p := &capturingProvider{out: "executive summary", captured: &captured}
	s := New(p, "fast-model", "smart-model", 120, nil)

	_, err := s.Executive(context.Background(), "narrative",
		[]models.Decision{{Description: "move launch to October 29"}},
		[]models.ActionItem{{Description: "update the runbook", Owner: "John", DueDate: "Thursday"}},
		[]models.Risk{{Description: "data loss during migration", Category: "Data"}},
		[]models.QuantFact{{Text: "October 15th -> October 29th", Kind: "change"}},
	)
	if err != nil {
		t.Fatalf("executive: %v", err)
	}
	for _, want := range []string{
		"move launch to October 29",
		"John: update the runbook (due Thursday)",
		"[Data] data loss during migration",
		"October 15th -> October 29th",
	} {
		if !strings.Contains(captured, want) {
			t.Fatalf("executive prompt missing %q", want)
		}
	}
}

type capturingProvider struct {
	provider.Provider
	out      string
	captured *string
}

func (p *capturingProvider) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	*p.captured = prompt
	return p.out, 10, 5, nil
}
