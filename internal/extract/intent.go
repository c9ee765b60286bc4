package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/helpers"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/internal/semantic"
	"github.com/mohammad-safakhou/minutes/models"
)

// IntentTag marks a sentence with the intents it resembles. Tags are a
// ranking signal for the extractors, never a gate: untagged sentences
// still flow through, they just get no boost.
type IntentTag struct {
	Sentence   string
	Speaker    string
	SegmentID  string
	Intents    []models.Intent
	Confidence float64
}

// Canonical examples per intent. Their mean embedding is the prototype a
// sentence is compared against.
var intentExamples = map[models.Intent][]string{
	models.IntentDecision: {
		"we decided to proceed with the plan",
		"we agreed to move forward",
		"the team approved the proposal",
		"we concluded that we should",
		"it was decided that",
		"we finalized the approach",
		"we settled on",
	},
	models.IntentActionItem: {
		"john will handle the deployment",
		"i will send the report by friday",
		"we need to complete the review",
		"sarah is responsible for the dashboard",
		"the team will follow up next week",
		"i'll take care of the documentation",
	},
	models.IntentRisk: {
		"there's a risk of delay",
		"we're concerned about the timeline",
		"this could be a blocker",
		"we have an issue with the data",
		"there's a problem with the integration",
		"this might block us",
	},
	models.IntentQuestion: {
		"what do you think about",
		"i have a question about",
		"what are your thoughts",
		"how about we",
	},
	models.IntentDiscussion: {
		"let's discuss the options",
		"we should consider",
		"let me walk you through the context",
	},
}

var intentKeywords = map[models.Intent][]string{
	models.IntentDecision:   {"decided", "agreed", "approved", "concluded", "finalized", "settled"},
	models.IntentActionItem: {"will", "should", "need to", "assigned", "responsible", "handle", "complete"},
	models.IntentRisk:       {"risk", "concern", "issue", "problem", "blocker", "challenge", "threat"},
	models.IntentQuestion:   {"?", "what do you", "any thoughts"},
}

// keyword fallback checks intents in a fixed order so ties are stable.
var keywordOrder = []models.Intent{
	models.IntentDecision,
	models.IntentActionItem,
	models.IntentRisk,
	models.IntentQuestion,
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+\s+`)

// Tagger assigns intent tags to transcript sentences.
type Tagger struct {
	embedder  semantic.Embedder
	threshold float64

	prototypes map[models.Intent][]float32
}

// NewTagger builds a tagger; prototype embeddings are computed lazily on
// the first Tag call so construction never does network IO.
func NewTagger(embedder semantic.Embedder, cfg config.PipelineConfig) *Tagger {
	threshold := cfg.IntentThreshold
	if threshold == 0 {
		threshold = 0.6
	}
	return &Tagger{embedder: embedder, threshold: threshold}
}

func (t *Tagger) buildPrototypes(ctx context.Context) bool {
	if t.prototypes != nil {
		return true
	}
	if t.embedder == nil {
		return false
	}

	var order []models.Intent
	var texts []string
	var counts []int
	for _, intent := range []models.Intent{
		models.IntentDecision, models.IntentActionItem, models.IntentRisk,
		models.IntentQuestion, models.IntentDiscussion,
	} {
		examples := intentExamples[intent]
		order = append(order, intent)
		counts = append(counts, len(examples))
		texts = append(texts, examples...)
	}

	vecs, err := t.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return false
	}

	t.prototypes = make(map[models.Intent][]float32, len(order))
	at := 0
	for i, intent := range order {
		t.prototypes[intent] = meanVector(vecs[at : at+counts[i]])
		at += counts[i]
	}
	return true
}

// Tag splits each segment into sentences and tags them. With embeddings
// unavailable it degrades to keyword tagging.
func (t *Tagger) Tag(ctx context.Context, segs []segments.Segment) []IntentTag {
	semanticOK := t.buildPrototypes(ctx)

	var tags []IntentTag
	for _, seg := range segs {
		for _, sentence := range splitSentences(seg.Text) {
			if len(sentence) < 10 {
				continue
			}
			tag := IntentTag{Sentence: sentence, Speaker: seg.Speaker, SegmentID: seg.ID}
			if semanticOK {
				t.tagSemantic(ctx, &tag)
			} else {
				tagKeyword(&tag)
			}
			tags = append(tags, tag)
		}
	}
	return tags
}

func (t *Tagger) tagSemantic(ctx context.Context, tag *IntentTag) {
	vecs, err := t.embedder.EmbedTexts(ctx, []string{tag.Sentence})
	if err != nil {
		tagKeyword(tag)
		return
	}

	best := 0.0
	for _, intent := range keywordOrder {
		proto, ok := t.prototypes[intent]
		if !ok {
			continue
		}
		score := helpers.Cosine(vecs[0], proto)
		if score > best {
			best = score
		}
		if score > t.threshold {
			tag.Intents = append(tag.Intents, intent)
		}
	}

	if len(tag.Intents) == 0 {
		if kw := keywordIntent(tag.Sentence); kw != "" {
			tag.Intents = []models.Intent{kw}
		}
	}
	if len(tag.Intents) == 0 {
		tag.Intents = []models.Intent{models.IntentDiscussion}
		tag.Confidence = 0.4
		return
	}
	tag.Confidence = best
}

func tagKeyword(tag *IntentTag) {
	if kw := keywordIntent(tag.Sentence); kw != "" {
		tag.Intents = []models.Intent{kw}
		tag.Confidence = 0.6
		return
	}
	tag.Intents = []models.Intent{models.IntentDiscussion}
	tag.Confidence = 0.4
}

func keywordIntent(sentence string) models.Intent {
	lower := strings.ToLower(sentence)
	for _, intent := range keywordOrder {
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				return intent
			}
		}
	}
	return ""
}

func splitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func meanVector(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	mean := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i := range v {
			if i < len(mean) {
				mean[i] += v[i]
			}
		}
	}
	for i := range mean {
		mean[i] /= float32(len(vecs))
	}
	return mean
}
