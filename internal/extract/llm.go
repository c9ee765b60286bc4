package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/minutes/internal/helpers"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/models"
	"github.com/mohammad-safakhou/minutes/provider"
)

const decisionPrompt = `You are an expert meeting analyst. Extract DECISIONS from this meeting transcript.

A DECISION is when participants agree on a course of action, choose between
options, approve something, or set dates, scope or direction. Include
implicit decisions ("let's move the launch two weeks later").

Transcript:
%s

Return ONLY valid JSON in this exact shape:
{"decisions":[{"decision":"what was decided","category":"timeline/features/budget/security/communication/resources/process/other","rationale":"why, if mentioned","participants":["names"],"confidence":0.9}]}`

const actionPrompt = `You are an expert meeting analyst. Extract ACTION ITEMS from this meeting transcript.

An ACTION ITEM is a specific task with a clear owner, and a due date when
one is mentioned. Resolve "I'll ..." to the current speaker.

Transcript:
%s

Return ONLY valid JSON in this exact shape:
{"action_items":[{"action":"task to be done","owner":"person responsible","due_date":"deadline or empty","priority":"high/medium/low","confidence":0.9}]}`

const riskPrompt = `You are an expert meeting analyst. Extract RISKS from this meeting transcript.

A RISK is a potential problem, concern, blocker or dependency that could
impact the work. Categories: Timeline, Resource, Data, Process, Technical, Other.

Transcript:
%s

Return ONLY valid JSON in this exact shape:
{"risks":[{"risk":"clear description of the concern","category":"Timeline/Resource/Data/Process/Technical/Other","severity":"high/medium/low","mentioned_by":"speaker who raised it","confidence":0.9}]}`

// llmDecision mirrors the JSON shape the extraction prompt asks for.
type llmDecision struct {
	Decision     string   `json:"decision"`
	Category     string   `json:"category"`
	Rationale    string   `json:"rationale"`
	Participants []string `json:"participants"`
	Confidence   float64  `json:"confidence"`
}

type llmAction struct {
	Action     string  `json:"action"`
	Owner      string  `json:"owner"`
	DueDate    string  `json:"due_date"`
	Priority   string  `json:"priority"`
	Confidence float64 `json:"confidence"`
}

type llmRisk struct {
	Risk        string  `json:"risk"`
	Category    string  `json:"category"`
	Severity    string  `json:"severity"`
	MentionedBy string  `json:"mentioned_by"`
	Confidence  float64 `json:"confidence"`
}

// LLMExtractor asks a chat model for structured items, falling back to
// the pattern extractors when the model fails or returns junk.
type LLMExtractor struct {
	provider provider.Provider
	model    string

	// Usage is accumulated across calls for cost accounting.
	PromptTokens     int64
	CompletionTokens int64
}

func NewLLMExtractor(p provider.Provider, model string) *LLMExtractor {
	return &LLMExtractor{provider: p, model: model}
}

func (e *LLMExtractor) Decisions(ctx context.Context, segs []segments.Segment) ([]models.Decision, error) {
	raw, err := e.generate(ctx, decisionPrompt, segs)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Decisions []llmDecision `json:"decisions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parsing decision response: %w", err)
	}

	out := make([]models.Decision, 0, len(parsed.Decisions))
	for _, d := range parsed.Decisions {
		if strings.TrimSpace(d.Decision) == "" {
			continue
		}
		out = append(out, models.Decision{
			ID:           uuid.NewString(),
			Description:  strings.TrimSpace(d.Decision),
			Category:     defaultString(d.Category, "other"),
			Rationale:    d.Rationale,
			Participants: d.Participants,
			MadeBy:       firstString(d.Participants),
			Confidence:   defaultConfidence(d.Confidence),
			Provenance:   models.Provenance{SourceSegmentIDs: matchSegments(d.Decision, segs)},
		})
	}
	return out, nil
}

func (e *LLMExtractor) Actions(ctx context.Context, segs []segments.Segment) ([]models.ActionItem, error) {
	raw, err := e.generate(ctx, actionPrompt, segs)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Actions []llmAction `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parsing action response: %w", err)
	}

	out := make([]models.ActionItem, 0, len(parsed.Actions))
	for _, a := range parsed.Actions {
		if strings.TrimSpace(a.Action) == "" {
			continue
		}
		out = append(out, models.ActionItem{
			ID:          uuid.NewString(),
			Description: strings.TrimSpace(a.Action),
			Owner:       cleanOwner(a.Owner, ""),
			DueDate:     a.DueDate,
			Priority:    defaultString(a.Priority, "medium"),
			Confidence:  defaultConfidence(a.Confidence),
			Provenance:  models.Provenance{SourceSegmentIDs: matchSegments(a.Action, segs)},
		})
	}
	return out, nil
}

func (e *LLMExtractor) Risks(ctx context.Context, segs []segments.Segment) ([]models.Risk, error) {
	raw, err := e.generate(ctx, riskPrompt, segs)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Risks []llmRisk `json:"risks"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parsing risk response: %w", err)
	}

	out := make([]models.Risk, 0, len(parsed.Risks))
	for _, r := range parsed.Risks {
		if strings.TrimSpace(r.Risk) == "" {
			continue
		}
		out = append(out, models.Risk{
			ID:          uuid.NewString(),
			Description: strings.TrimSpace(r.Risk),
			Category:    defaultString(r.Category, "Other"),
			Severity:    defaultString(r.Severity, "medium"),
			MentionedBy: r.MentionedBy,
			Confidence:  defaultConfidence(r.Confidence),
			Provenance:  models.Provenance{SourceSegmentIDs: matchSegments(r.Risk, segs)},
		})
	}
	return out, nil
}

func (e *LLMExtractor) generate(ctx context.Context, prompt string, segs []segments.Segment) (string, error) {
	transcript := segments.ToText(segs)
	resp, in, out, err := e.provider.GenerateWithTokens(ctx, fmt.Sprintf(prompt, transcript), e.model, map[string]interface{}{
		"temperature": 0.1,
	})
	if err != nil {
		return "", err
	}
	e.PromptTokens += in
	e.CompletionTokens += out

	return helpers.ExtractJSON(resp)
}

// matchSegments anchors an LLM-produced item to the segments it most
// overlaps with, since the model does not return segment IDs.
func matchSegments(text string, segs []segments.Segment) []string {
	type scored struct {
		id    string
		score float64
	}
	var best []scored
	for _, seg := range segs {
		s := helpers.Jaccard(text, seg.Text)
		if s > 0.1 {
			best = append(best, scored{seg.ID, s})
		}
	}
	if len(best) == 0 {
		return nil
	}
	// Keep the top match plus runners-up within 80% of it.
	top := best[0]
	for _, b := range best[1:] {
		if b.score > top.score {
			top = b
		}
	}
	ids := []string{}
	for _, b := range best {
		if b.score >= top.score*0.8 && len(ids) < 3 {
			ids = append(ids, b.id)
		}
	}
	return ids
}

func defaultConfidence(c float64) float64 {
	if c <= 0 || c > 1 {
		return 0.7
	}
	return c
}

func defaultString(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func firstString(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
