package provenance

import (
	"context"
	"log"
	"sort"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/score"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/internal/semantic"
	"github.com/mohammad-safakhou/minutes/models"
)

// Searcher finds candidate segment IDs for an item that arrived without
// source anchors. The full-text index implements this.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Tracker resolves every item's source segments, scores them and fills
// in validation flags. Low-support items are flagged, never dropped:
// surfacing a suspect item with a warning beats silently losing a real
// one.
type Tracker struct {
	embedder semantic.Embedder
	searcher Searcher
	cfg      config.PipelineConfig
	logger   *log.Logger
}

func New(embedder semantic.Embedder, searcher Searcher, cfg config.PipelineConfig, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(log.Writer(), "[PROV] ", log.LstdFlags)
	}
	return &Tracker{embedder: embedder, searcher: searcher, cfg: cfg, logger: logger}
}

// Resolve populates provenance and validation for every item in place
// and returns aggregate stats.
func (t *Tracker) Resolve(ctx context.Context, store *segments.Store, set Set) models.ProvenanceStats {
	var stats models.ProvenanceStats
	var supportSum float64

	record := func(prov *models.Provenance, text string, conf float64) (isValid, hallucination bool) {
		*prov = t.resolveOne(ctx, store, text, *prov)
		stats.TotalItems++
		supportSum += prov.SourceSupport
		if prov.Method == models.MethodSemantic {
			stats.SemanticItems++
		} else {
			stats.KeywordItems++
		}
		isValid = prov.SourceSupport > t.supportThreshold()
		// High stated confidence with nothing in the transcript backing
		// it is the specific inconsistency worth surfacing.
		hallucination = !isValid && conf > 0.7
		if isValid {
			stats.ValidatedItems++
		} else {
			stats.FlaggedItems++
		}
		return isValid, hallucination
	}

	for i := range set.Decisions {
		d := &set.Decisions[i]
		d.IsValid, d.PotentialHallucination = record(&d.Provenance, d.Description, d.Confidence)
		d.Confidence = score.ProvenanceBoost(d.Confidence, d.Provenance)
	}
	for i := range set.Actions {
		a := &set.Actions[i]
		a.IsValid, a.PotentialHallucination = record(&a.Provenance, a.Description, a.Confidence)
		a.Confidence = score.ProvenanceBoost(a.Confidence, a.Provenance)
	}
	for i := range set.Risks {
		r := &set.Risks[i]
		r.IsValid, r.PotentialHallucination = record(&r.Provenance, r.Description, r.Confidence)
		r.Confidence = score.ProvenanceBoost(r.Confidence, r.Provenance)
	}

	if stats.TotalItems > 0 {
		stats.AverageSupport = supportSum / float64(stats.TotalItems)
		stats.ValidatedPercent = 100 * float64(stats.ValidatedItems) / float64(stats.TotalItems)
	}
	t.logger.Printf("resolved provenance for %d items: %d validated, %d flagged",
		stats.TotalItems, stats.ValidatedItems, stats.FlaggedItems)
	return stats
}

// Set collects the per-category slices the tracker operates on.
type Set struct {
	Decisions []models.Decision
	Actions   []models.ActionItem
	Risks     []models.Risk
}

// resolveOne scores the item text against its source segments and keeps
// the top three above the method floor. Items without anchors fall back
// to a full-text search over the transcript.
func (t *Tracker) resolveOne(ctx context.Context, store *segments.Store, text string, prov models.Provenance) models.Provenance {
	candidateIDs := prov.SourceSegmentIDs
	if len(candidateIDs) == 0 && t.searcher != nil {
		if found, err := t.searcher.Search(ctx, text, t.topK()*2); err == nil {
			candidateIDs = found
		}
	}

	segs := store.Slice(candidateIDs)
	if len(segs) == 0 {
		return models.Provenance{Method: models.MethodKeyword}
	}

	texts := make([]string, len(segs))
	for i, s := range segs {
		texts[i] = s.Text
	}
	scores, method := semantic.SimilarityMany(ctx, t.embedder, text, texts)

	floor := t.cfg.ProvenanceSemanticFloor
	if floor == 0 {
		floor = 0.3
	}
	if method == models.MethodKeyword {
		floor = t.cfg.ProvenanceKeywordFloor
		if floor == 0 {
			floor = 0.1
		}
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(segs))
	for i, s := range segs {
		if scores[i] > floor {
			ranked = append(ranked, scored{s.ID, scores[i]})
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	if len(ranked) > t.topK() {
		ranked = ranked[:t.topK()]
	}

	out := models.Provenance{Method: method}
	for _, r := range ranked {
		out.SourceSegmentIDs = append(out.SourceSegmentIDs, r.id)
		out.SimilarityScores = append(out.SimilarityScores, r.score)
		if r.score > out.SourceSupport {
			out.SourceSupport = r.score
		}
	}
	return out
}

func (t *Tracker) topK() int {
	if t.cfg.ProvenanceTopK > 0 {
		return t.cfg.ProvenanceTopK
	}
	return 3
}

func (t *Tracker) supportThreshold() float64 {
	if t.cfg.SupportThreshold > 0 {
		return t.cfg.SupportThreshold
	}
	return 0.3
}
