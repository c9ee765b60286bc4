package summarize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/minutes/internal/preprocess"
	"github.com/mohammad-safakhou/minutes/models"
	"github.com/mohammad-safakhou/minutes/provider"
)

const chunkPrompt = `Summarize this meeting excerpt in at most %d tokens of plain prose.
Keep concrete facts: names, dates, numbers, commitments. No preamble.

%s`

const mergePrompt = `Combine these partial meeting summaries into one coherent narrative
summary. Preserve every concrete fact (names, dates, numbers). No preamble.

%s`

const executivePrompt = `Write a 2-3 paragraph executive summary of this meeting.

Narrative summary:
%s

Decisions:
%s

Action items:
%s

Risks:
%s

Quantitative facts that MUST appear verbatim where relevant:
%s

Requirements: open with the meeting's purpose and outcome, cover the key
decisions with their concrete details, and close with open risks and next
steps. Include the quantitative facts above; do not invent numbers.`

// Summarizer builds the hierarchical summary: per-chunk summaries, a
// recursively merged narrative, and an executive synthesis that folds the
// structured items back in.
type Summarizer struct {
	provider  provider.Provider
	model     string
	execModel string
	tokens    int
	logger    *log.Logger

	// Accumulated usage for cost accounting.
	PromptTokens     int64
	CompletionTokens int64
}

func New(p provider.Provider, model, execModel string, chunkSummaryTokens int, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[SUMM] ", log.LstdFlags)
	}
	if execModel == "" {
		execModel = model
	}
	if chunkSummaryTokens <= 0 {
		chunkSummaryTokens = 120
	}
	return &Summarizer{provider: p, model: model, execModel: execModel, tokens: chunkSummaryTokens, logger: logger}
}

// Narrative produces the merged narrative summary for the chunk set.
func (s *Summarizer) Narrative(ctx context.Context, chunks []preprocess.Chunk) (models.Summary, error) {
	if len(chunks) == 0 {
		return models.Summary{}, fmt.Errorf("no chunks to summarize")
	}

	levels := make([]models.SummaryLevel, 0, len(chunks)+1)
	partials := make([]string, 0, len(chunks))
	for _, c := range chunks {
		text, err := s.summarizeText(ctx, c.Text)
		if err != nil {
			return models.Summary{}, fmt.Errorf("summarizing chunk %s: %w", c.ID, err)
		}
		partials = append(partials, text)
		levels = append(levels, models.SummaryLevel{Level: 1, Text: text, ChunkIDs: []string{c.ID}})
	}

	narrative, err := s.merge(ctx, partials)
	if err != nil {
		return models.Summary{}, err
	}
	levels = append(levels, models.SummaryLevel{Level: 2, Text: narrative, ChunkIDs: chunkIDs(chunks)})
	return models.Summary{Levels: levels}, nil
}

// summarizeText summarizes one chunk; input the model rejects as too
// long is split in half and the halves re-summarized then merged.
func (s *Summarizer) summarizeText(ctx context.Context, text string) (string, error) {
	out, err := s.generate(ctx, s.model, fmt.Sprintf(chunkPrompt, s.tokens, text))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, provider.ErrInputTooLong) {
		return "", err
	}

	halves := splitInHalf(text)
	if len(halves) < 2 {
		return "", err
	}
	s.logger.Printf("chunk too long for %s, splitting and recursing", s.model)
	parts := make([]string, 0, 2)
	for _, h := range halves {
		p, herr := s.summarizeText(ctx, h)
		if herr != nil {
			return "", herr
		}
		parts = append(parts, p)
	}
	return s.merge(ctx, parts)
}

// merge folds partial summaries into one, recursively splitting the set
// whenever the combined input exceeds the model's capacity. This is the
// recovery path for input-too-long failures during the merge phase.
func (s *Summarizer) merge(ctx context.Context, partials []string) (string, error) {
	if len(partials) == 1 {
		return partials[0], nil
	}
	joined := strings.Join(partials, "\n\n")
	out, err := s.generate(ctx, s.model, fmt.Sprintf(mergePrompt, joined))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, provider.ErrInputTooLong) || len(partials) < 2 {
		return "", err
	}

	mid := len(partials) / 2
	left, err := s.merge(ctx, partials[:mid])
	if err != nil {
		return "", err
	}
	right, err := s.merge(ctx, partials[mid:])
	if err != nil {
		return "", err
	}
	return s.merge(ctx, []string{left, right})
}

// Executive synthesizes the final summary from the narrative plus the
// structured artifacts. Quantitative facts proven by extraction are fed
// in explicitly so the synthesis step cannot drop them.
func (s *Summarizer) Executive(ctx context.Context, narrative string, decisions []models.Decision, actions []models.ActionItem, risks []models.Risk, facts []models.QuantFact) (string, error) {
	var d, a, r, q strings.Builder
	for _, it := range decisions {
		fmt.Fprintf(&d, "- %s\n", it.Description)
	}
	for _, it := range actions {
		line := it.Description
		if it.Owner != "" {
			line = it.Owner + ": " + line
		}
		if it.DueDate != "" {
			line += " (due " + it.DueDate + ")"
		}
		fmt.Fprintf(&a, "- %s\n", line)
	}
	for _, it := range risks {
		fmt.Fprintf(&r, "- [%s] %s\n", it.Category, it.Description)
	}
	for _, f := range facts {
		fmt.Fprintf(&q, "- %s\n", f.Text)
	}

	prompt := fmt.Sprintf(executivePrompt, narrative,
		emptyDash(d.String()), emptyDash(a.String()), emptyDash(r.String()), emptyDash(q.String()))
	return s.generate(ctx, s.execModel, prompt)
}

func (s *Summarizer) generate(ctx context.Context, model, prompt string) (string, error) {
	out, in, completion, err := s.provider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3,
	})
	if err != nil {
		return "", err
	}
	s.PromptTokens += in
	s.CompletionTokens += completion
	return strings.TrimSpace(out), nil
}

func splitInHalf(text string) []string {
	words := strings.Fields(text)
	if len(words) < 2 {
		return []string{text}
	}
	mid := len(words) / 2
	return []string{strings.Join(words[:mid], " "), strings.Join(words[mid:], " ")}
}

func chunkIDs(chunks []preprocess.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}

func emptyDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "- none"
	}
	return s
}
