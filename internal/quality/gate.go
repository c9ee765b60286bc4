package quality

import (
	"log"
	"strings"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/helpers"
	"github.com/mohammad-safakhou/minutes/models"
)

// Gate evaluates a finished record candidate and decides whether the
// cheaper model tier produced acceptable output.
type Gate struct {
	cfg    config.PipelineConfig
	logger *log.Logger
}

func New(cfg config.PipelineConfig, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(log.Writer(), "[QUALITY] ", log.LstdFlags)
	}
	return &Gate{cfg: cfg, logger: logger}
}

// Evaluate computes quality metrics for the candidate record.
func (g *Gate) Evaluate(summary string, decisions []models.Decision, actions []models.ActionItem, risks []models.Risk) models.QualityMetrics {
	m := models.QualityMetrics{
		RedundancyRatio: RedundancyRatio(summary),
		DecisionCount:   len(decisions),
		ActionCount:     len(actions),
		RiskCount:       len(risks),
		SummaryTokens:   helpers.EstimateTokens(summary),
	}

	total := 0
	sum := 0.0
	for _, d := range decisions {
		sum += d.Confidence
		total++
	}
	for _, a := range actions {
		sum += a.Confidence
		total++
	}
	for _, r := range risks {
		sum += r.Confidence
		total++
	}
	if total > 0 {
		m.MeanConfidence = sum / float64(total)
	}
	return m
}

// LowQuality reports whether the metrics trip any of the gate's floors.
func (g *Gate) LowQuality(m models.QualityMetrics) bool {
	redundancyMax := g.cfg.QualityRedundancyMax
	if redundancyMax == 0 {
		redundancyMax = 0.3
	}
	minItems := g.cfg.QualityMinItems
	if minItems == 0 {
		minItems = 5
	}
	minConf := g.cfg.QualityMinConfidence
	if minConf == 0 {
		minConf = 0.5
	}

	low := m.RedundancyRatio > redundancyMax ||
		m.DecisionCount+m.ActionCount < minItems ||
		m.MeanConfidence < minConf
	if low {
		g.logger.Printf("low quality: redundancy=%.2f items=%d mean_conf=%.2f",
			m.RedundancyRatio, m.DecisionCount+m.ActionCount, m.MeanConfidence)
	}
	return low
}

// Score collapses metrics into one comparable number so a fallback run
// replaces the original only when it is strictly better.
func Score(m models.QualityMetrics) float64 {
	items := float64(m.DecisionCount + m.ActionCount)
	if items > 5 {
		items = 5
	}
	return 0.5*m.MeanConfidence + 0.3*(items/5) + 0.2*(1-m.RedundancyRatio)
}

// RedundancyRatio is the fraction of the summary's word trigrams that
// occur more than once.
func RedundancyRatio(summary string) float64 {
	words := strings.Fields(strings.ToLower(summary))
	if len(words) < 3 {
		return 0
	}
	counts := make(map[string]int)
	total := 0
	for i := 0; i+3 <= len(words); i++ {
		counts[strings.Join(words[i:i+3], " ")]++
		total++
	}
	repeated := 0
	for _, c := range counts {
		if c > 1 {
			repeated += c
		}
	}
	return float64(repeated) / float64(total)
}
