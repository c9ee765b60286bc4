package score

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/minutes/internal/helpers"
	"github.com/mohammad-safakhou/minutes/internal/semantic"
	"github.com/mohammad-safakhou/minutes/models"
)

// Scorer recalibrates item confidence against the narrative summary.
// Grounding confidence against the holistic summary catches items that
// are locally plausible but globally unsupported, so this intentionally
// overrides the extractor's local heuristic. Without embeddings the raw
// heuristic score is kept.
type Scorer struct {
	embedder semantic.Embedder
	logger   *log.Logger
}

func New(embedder semantic.Embedder, logger *log.Logger) *Scorer {
	if logger == nil {
		logger = log.New(log.Writer(), "[SCORE] ", log.LstdFlags)
	}
	return &Scorer{embedder: embedder, logger: logger}
}

// Score rewrites the confidence of every item in place. The summary is
// the in-progress narrative summary for the whole meeting.
func (s *Scorer) Score(ctx context.Context, res ScoreSet, summary string) {
	if s.embedder == nil || summary == "" {
		return
	}

	texts := make([]string, 0, len(res.Decisions)+len(res.Actions)+len(res.Risks))
	for _, d := range res.Decisions {
		texts = append(texts, d.Description)
	}
	for _, a := range res.Actions {
		texts = append(texts, a.Description)
	}
	for _, r := range res.Risks {
		texts = append(texts, r.Description)
	}
	if len(texts) == 0 {
		return
	}

	sims, method := semantic.SimilarityMany(ctx, s.embedder, summary, texts)
	if method != models.MethodSemantic {
		// Keyword overlap against a paraphrased summary is too lossy to
		// recalibrate on; keep the extractor's heuristic scores.
		return
	}

	at := 0
	for i := range res.Decisions {
		res.Decisions[i].Confidence = bucket(sims[at])
		at++
	}
	for i := range res.Actions {
		res.Actions[i].Confidence = bucket(sims[at])
		at++
	}
	for i := range res.Risks {
		res.Risks[i].Confidence = bucket(sims[at])
		at++
	}
	s.logger.Printf("recalibrated %d item confidences against summary", len(texts))
}

// ScoreSet collects the per-category slices the scorer mutates.
type ScoreSet struct {
	Decisions []models.Decision
	Actions   []models.ActionItem
	Risks     []models.Risk
}

// bucket maps summary similarity onto calibrated confidence.
func bucket(sim float64) float64 {
	switch {
	case sim > 0.7:
		return 0.9
	case sim > 0.5:
		return 0.7
	case sim > 0.3:
		return 0.5
	default:
		return 0.4
	}
}

// ProvenanceBoost nudges confidence up when the item's resolved sources
// agree strongly with it. The boost never pushes past 0.95 so no item
// reads as certain.
func ProvenanceBoost(confidence float64, prov models.Provenance) float64 {
	if len(prov.SimilarityScores) == 0 {
		return confidence
	}
	sum := 0.0
	for _, s := range prov.SimilarityScores {
		sum += s
	}
	if sum/float64(len(prov.SimilarityScores)) > 0.7 {
		confidence = helpers.Clamp01(confidence + 0.1)
		if confidence > 0.95 {
			confidence = 0.95
		}
	}
	return confidence
}
