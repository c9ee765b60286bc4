package quality

import (
	"strings"
	"testing"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/models"
)

func manyItems(n int, conf float64) ([]models.Decision, []models.ActionItem) {
	var ds []models.Decision
	var as []models.ActionItem
	for i := 0; i < n; i++ {
		ds = append(ds, models.Decision{Confidence: conf})
		as = append(as, models.ActionItem{Confidence: conf})
	}
	return ds, as
}

func TestLowQualityTriggers(t *testing.T) {
	g := New(config.PipelineConfig{QualityRedundancyMax: 0.3, QualityMinItems: 5, QualityMinConfidence: 0.5}, nil)

	ds, as := manyItems(3, 0.8)
	good := g.Evaluate("a normal varied summary covering several distinct meeting topics in sequence", ds, as, nil)
	if g.LowQuality(good) {
		t.Fatalf("good metrics flagged low: %+v", good)
	}

	// Too few items.
	few := g.Evaluate("fine summary text here", []models.Decision{{Confidence: 0.9}}, nil, nil)
	if !g.LowQuality(few) {
		t.Fatalf("1 decision + 0 actions should trip the item floor: %+v", few)
	}

	// Low mean confidence.
	lds, las := manyItems(3, 0.3)
	low := g.Evaluate("fine summary covering several distinct topics in order", lds, las, nil)
	if !g.LowQuality(low) {
		t.Fatalf("mean confidence 0.3 should trip the gate: %+v", low)
	}

	// Redundant summary.
	redundant := g.Evaluate(strings.Repeat("the team agreed again ", 10), ds, as, nil)
	if redundant.RedundancyRatio <= 0.3 {
		t.Fatalf("repeated phrase summary should be redundant, got %f", redundant.RedundancyRatio)
	}
	if !g.LowQuality(redundant) {
		t.Fatal("redundant summary should trip the gate")
	}
}

func TestRedundancyRatioBounds(t *testing.T) {
	if r := RedundancyRatio("short"); r != 0 {
		t.Fatalf("short text redundancy = %f, want 0", r)
	}
	if r := RedundancyRatio("every word here is completely unique across this sentence"); r != 0 {
		t.Fatalf("unique text redundancy = %f, want 0", r)
	}
	r := RedundancyRatio(strings.Repeat("same three words ", 5))
	if r <= 0.5 {
		t.Fatalf("fully repeated text redundancy = %f, want high", r)
	}
}

func TestScoreOrdersResults(t *testing.T) {
	better := models.QualityMetrics{MeanConfidence: 0.8, DecisionCount: 3, ActionCount: 3, RedundancyRatio: 0.1}
	worse := models.QualityMetrics{MeanConfidence: 0.4, DecisionCount: 1, ActionCount: 1, RedundancyRatio: 0.4}
	if Score(better) <= Score(worse) {
		t.Fatalf("score ordering wrong: %f vs %f", Score(better), Score(worse))
	}

	same := models.QualityMetrics{MeanConfidence: 0.8, DecisionCount: 3, ActionCount: 3, RedundancyRatio: 0.1}
	if Score(better) != Score(same) {
		t.Fatal("identical metrics must score identically")
	}
}
