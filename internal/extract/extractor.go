package extract

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/models"
)

// Result carries everything the extraction stage produced.
type Result struct {
	Decisions   []models.Decision
	ActionItems []models.ActionItem
	Risks       []models.Risk
	QuantFacts  []models.QuantFact
	Tags        []IntentTag
}

// Extractor runs intent tagging and the per-category extractors. When an
// LLM extractor is configured its output is preferred, with the pattern
// extractors as the fallback path on any model failure.
type Extractor struct {
	tagger *Tagger
	llm    *LLMExtractor
	logger *log.Logger
}

func NewExtractor(tagger *Tagger, llm *LLMExtractor, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags)
	}
	return &Extractor{tagger: tagger, llm: llm, logger: logger}
}

// Run extracts decisions, action items, risks and quantitative facts
// from the cleaned transcript.
func (e *Extractor) Run(ctx context.Context, segs []segments.Segment) (*Result, error) {
	res := &Result{}
	if e.tagger != nil {
		res.Tags = e.tagger.Tag(ctx, segs)
	}

	res.Decisions = e.extractDecisions(ctx, segs, res.Tags)
	res.ActionItems = e.extractActions(ctx, segs, res.Tags)
	res.Risks = e.extractRisks(ctx, segs, res.Tags)
	res.QuantFacts = ExtractQuantFacts(segs)

	e.logger.Printf("extracted %d decisions, %d actions, %d risks, %d quant facts",
		len(res.Decisions), len(res.ActionItems), len(res.Risks), len(res.QuantFacts))
	return res, nil
}

func (e *Extractor) extractDecisions(ctx context.Context, segs []segments.Segment, tags []IntentTag) []models.Decision {
	if e.llm != nil {
		if out, err := e.llm.Decisions(ctx, segs); err == nil && len(out) > 0 {
			return out
		} else if err != nil {
			e.logger.Printf("llm decision extraction failed, using patterns: %v", err)
		}
	}
	return ExtractDecisions(segs, tags)
}

func (e *Extractor) extractActions(ctx context.Context, segs []segments.Segment, tags []IntentTag) []models.ActionItem {
	if e.llm != nil {
		if out, err := e.llm.Actions(ctx, segs); err == nil && len(out) > 0 {
			return out
		} else if err != nil {
			e.logger.Printf("llm action extraction failed, using patterns: %v", err)
		}
	}
	return ExtractActions(segs, tags)
}

func (e *Extractor) extractRisks(ctx context.Context, segs []segments.Segment, tags []IntentTag) []models.Risk {
	if e.llm != nil {
		if out, err := e.llm.Risks(ctx, segs); err == nil && len(out) > 0 {
			return out
		} else if err != nil {
			e.logger.Printf("llm risk extraction failed, using patterns: %v", err)
		}
	}
	return ExtractRisks(segs, tags)
}

// Usage reports the accumulated token usage of LLM-assisted extraction.
func (e *Extractor) Usage() (prompt, completion int64) {
	if e.llm == nil {
		return 0, 0
	}
	return e.llm.PromptTokens, e.llm.CompletionTokens
}
