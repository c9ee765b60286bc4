package dedup

import (
	"context"
	"log"
	"strings"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/helpers"
	"github.com/mohammad-safakhou/minutes/internal/semantic"
	"github.com/mohammad-safakhou/minutes/models"
)

// Deduper merges near-duplicate items per category. Actions tolerate
// more lexical variance than decisions and risks because owner and date
// framing differs more than content, hence the lower action threshold.
type Deduper struct {
	embedder semantic.Embedder
	cfg      config.PipelineConfig
	logger   *log.Logger
}

func New(embedder semantic.Embedder, cfg config.PipelineConfig, logger *log.Logger) *Deduper {
	if logger == nil {
		logger = log.New(log.Writer(), "[DEDUP] ", log.LstdFlags)
	}
	return &Deduper{embedder: embedder, cfg: cfg, logger: logger}
}

// Decisions clusters near-duplicate decisions and keeps the
// highest-confidence representative of each cluster, unioning evidence.
func (d *Deduper) Decisions(ctx context.Context, items []models.Decision) []models.Decision {
	if len(items) < 2 {
		return items
	}
	texts := make([]string, len(items))
	conf := make([]float64, len(items))
	for i, it := range items {
		texts[i] = it.Description
		conf[i] = it.Confidence
	}
	clusters := d.cluster(ctx, texts, conf, d.threshold(d.cfg.DedupDecisionThreshold, 0.8))

	out := make([]models.Decision, 0, len(clusters))
	for _, c := range clusters {
		rep := items[c[0]]
		for _, idx := range c[1:] {
			it := items[idx]
			if it.Confidence > rep.Confidence {
				keep := rep
				rep = it
				it = keep
			}
			rep.Provenance.SourceSegmentIDs = unionStrings(rep.Provenance.SourceSegmentIDs, it.Provenance.SourceSegmentIDs)
			rep.Participants = unionStrings(rep.Participants, it.Participants)
			if rep.Rationale == "" {
				rep.Rationale = it.Rationale
			}
		}
		out = append(out, rep)
	}
	d.logger.Printf("deduplicated decisions %d -> %d", len(items), len(out))
	return out
}

// Risks clusters near-duplicate risks the same way.
func (d *Deduper) Risks(ctx context.Context, items []models.Risk) []models.Risk {
	if len(items) < 2 {
		return items
	}
	texts := make([]string, len(items))
	conf := make([]float64, len(items))
	for i, it := range items {
		texts[i] = it.Description
		conf[i] = it.Confidence
	}
	clusters := d.cluster(ctx, texts, conf, d.threshold(d.cfg.DedupRiskThreshold, 0.8))

	out := make([]models.Risk, 0, len(clusters))
	for _, c := range clusters {
		rep := items[c[0]]
		for _, idx := range c[1:] {
			it := items[idx]
			if it.Confidence > rep.Confidence {
				keep := rep
				rep = it
				it = keep
			}
			rep.Provenance.SourceSegmentIDs = unionStrings(rep.Provenance.SourceSegmentIDs, it.Provenance.SourceSegmentIDs)
		}
		out = append(out, rep)
	}
	d.logger.Printf("deduplicated risks %d -> %d", len(items), len(out))
	return out
}

// Actions first merges same-owner items by concatenating their distinct
// phrases, then clusters the remainder by similarity. Re-running on an
// already-merged list is a no-op.
func (d *Deduper) Actions(ctx context.Context, items []models.ActionItem) []models.ActionItem {
	if len(items) < 2 {
		return items
	}

	byOwner := make(map[string][]models.ActionItem)
	var order []string
	var unowned []models.ActionItem
	for _, it := range items {
		if it.Owner == "" {
			unowned = append(unowned, it)
			continue
		}
		if _, seen := byOwner[it.Owner]; !seen {
			order = append(order, it.Owner)
		}
		byOwner[it.Owner] = append(byOwner[it.Owner], it)
	}

	var merged []models.ActionItem
	for _, owner := range order {
		merged = append(merged, mergeOwnerActions(byOwner[owner]))
	}

	// Unowned actions still dedup by text similarity.
	if len(unowned) > 1 {
		texts := make([]string, len(unowned))
		conf := make([]float64, len(unowned))
		for i, it := range unowned {
			texts[i] = it.Description
			conf[i] = it.Confidence
		}
		clusters := d.cluster(ctx, texts, conf, d.threshold(d.cfg.DedupActionThreshold, 0.75))
		for _, c := range clusters {
			rep := unowned[c[0]]
			for _, idx := range c[1:] {
				it := unowned[idx]
				if it.Confidence > rep.Confidence {
					keep := rep
					rep = it
					it = keep
				}
				rep.Provenance.SourceSegmentIDs = unionStrings(rep.Provenance.SourceSegmentIDs, it.Provenance.SourceSegmentIDs)
			}
			merged = append(merged, rep)
		}
	} else {
		merged = append(merged, unowned...)
	}

	d.logger.Printf("deduplicated actions %d -> %d", len(items), len(merged))
	return merged
}

// mergeOwnerActions folds one owner's items into a single action whose
// description joins the distinct phrases with " and ". The earliest due
// date, highest priority and highest confidence survive.
func mergeOwnerActions(items []models.ActionItem) models.ActionItem {
	rep := items[0]
	var phrases []string
	for _, it := range items {
		for _, p := range strings.Split(it.Description, " and ") {
			if p = strings.TrimSpace(p); p != "" && !containsFold(phrases, p) {
				phrases = append(phrases, p)
			}
		}
		if it.Confidence > rep.Confidence {
			rep.Confidence = it.Confidence
		}
		if rep.DueDate == "" {
			rep.DueDate = it.DueDate
		}
		if priorityRank(it.Priority) > priorityRank(rep.Priority) {
			rep.Priority = it.Priority
		}
		rep.Provenance.SourceSegmentIDs = unionStrings(rep.Provenance.SourceSegmentIDs, it.Provenance.SourceSegmentIDs)
	}
	rep.Description = strings.Join(phrases, " and ")
	return rep
}

// cluster groups indexes of texts whose similarity to a cluster's
// representative exceeds the threshold. The representative is the
// highest-confidence member, matching what the callers keep, so the
// surviving items of one run pass through a second run unchanged.
func (d *Deduper) cluster(ctx context.Context, texts []string, conf []float64, threshold float64) [][]int {
	sim := d.similarityFn(ctx, texts)

	rep := func(c []int) int {
		best := c[0]
		for _, i := range c[1:] {
			if conf[i] > conf[best] {
				best = i
			}
		}
		return best
	}

	var clusters [][]int
	for i := range texts {
		placed := false
		for ci, c := range clusters {
			if sim(rep(c), i) > threshold {
				clusters[ci] = append(c, i)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []int{i})
		}
	}

	// A join can move a cluster's representative, which may pull two
	// clusters within the threshold of each other. Fold such clusters
	// together until none remain.
	for again := true; again; {
		again = false
		for a := 0; a < len(clusters) && !again; a++ {
			for b := a + 1; b < len(clusters); b++ {
				if sim(rep(clusters[a]), rep(clusters[b])) > threshold {
					clusters[a] = append(clusters[a], clusters[b]...)
					clusters = append(clusters[:b], clusters[b+1:]...)
					again = true
					break
				}
			}
		}
	}
	return clusters
}

func (d *Deduper) similarityFn(ctx context.Context, texts []string) func(a, b int) float64 {
	if d.embedder != nil {
		if vecs, err := d.embedder.EmbedTexts(ctx, texts); err == nil {
			return func(a, b int) float64 { return helpers.Cosine(vecs[a], vecs[b]) }
		}
	}
	return func(a, b int) float64 { return helpers.Jaccard(texts[a], texts[b]) }
}

func (d *Deduper) threshold(configured, def float64) float64 {
	if configured > 0 {
		return configured
	}
	return def
}

func priorityRank(p string) int {
	switch strings.ToLower(p) {
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}

func unionStrings(a, b []string) []string {
	out := a
	for _, s := range b {
		if !containsFold(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
