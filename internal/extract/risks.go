package extract

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/models"
)

var riskIndicators = []string{
	"risk", "concern", "worried", "issue", "problem", "blocker", "blocking",
	"challenge", "threat", "delay", "might not", "could fail", "won't have",
	"if we don't", "if we can't", "dependency", "constraint", "bottleneck",
	"vulnerability", "exposure", "shortfall",
}

var riskDescriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:risk|concern|worried)\s+(?:is\s+)?(?:that\s+)?(?:of\s+|about\s+)?([^.!?]+)`),
	regexp.MustCompile(`(?i)(?:issue|problem|blocker)\s+(?:is\s+)?(?:with\s+)?([^.!?]+)`),
	regexp.MustCompile(`(?i)if\s+(?:we\s+)?(?:don't|can't)\s+([^,]+),\s*([^.!?]+)`),
	regexp.MustCompile(`(?i)(?:delay|constraint|bottleneck)\s+(?:in|with|on)\s+([^.!?]+)`),
}

var riskLeadInRe = regexp.MustCompile(`(?i)^(that|is|with|of|about)\s+`)

// Risk categories checked most-specific first; Other is the catch-all.
var riskCategories = []struct {
	name     string
	keywords []string
}{
	{"Data", []string{"data", "database", "backup", "corruption", "loss", "privacy", "migration"}},
	{"Timeline", []string{"delay", "deadline", "schedule", "timeline", "launch", "date", "slip"}},
	{"Resource", []string{"budget", "staff", "person", "capacity", "resource", "team", "engineer", "headcount"}},
	{"Process", []string{"process", "workflow", "approval", "compliance", "audit", "procedure", "handoff"}},
	{"Technical", []string{"integration", "performance", "bug", "system", "api", "technical", "security", "infrastructure", "outage"}},
}

var severityHighWords = []string{"critical", "severe", "major", "blocker", "showstopper", "data loss", "outage"}
var severityLowWords = []string{"minor", "small", "slight", "unlikely"}

// ExtractRisks finds raised concerns and blockers in the cleaned segments.
func ExtractRisks(segs []segments.Segment, tags []IntentTag) []models.Risk {
	boost := intentBoost(tags, models.IntentRisk)

	var out []models.Risk
	seen := make(map[string]struct{})

	for _, seg := range segs {
		lower := strings.ToLower(seg.Text)
		if !containsAny(lower, riskIndicators) {
			continue
		}
		desc := riskDescription(seg.Text)
		if desc == "" {
			continue
		}
		key := strings.ToLower(desc)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		score := 0.7
		if boost[seg.ID] {
			score += 0.1
		}

		out = append(out, models.Risk{
			ID:          uuid.NewString(),
			Description: desc,
			Category:    categorizeRisk(desc),
			Severity:    riskSeverity(lower),
			MentionedBy: seg.Speaker,
			Confidence:  clampScore(score),
			Provenance:  models.Provenance{SourceSegmentIDs: []string{seg.ID}},
		})
	}
	return out
}

func riskDescription(text string) string {
	for _, p := range riskDescriptionPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(m[1])
		if len(m) > 2 && m[2] != "" {
			desc = desc + " " + strings.TrimSpace(m[2])
		}
		desc = strings.TrimRight(riskLeadInRe.ReplaceAllString(desc, ""), ".,")
		if len(desc) > 15 {
			return desc
		}
	}

	// Segments that clearly talk about a risk but dodge every pattern are
	// used verbatim when they are of quotable length.
	lower := strings.ToLower(text)
	if containsAny(lower, []string{"risk", "concern", "blocker", "issue"}) {
		clean := strings.TrimRight(strings.TrimSpace(text), ".,")
		if len(clean) > 20 && len(clean) < 200 {
			return clean
		}
	}
	return ""
}

func categorizeRisk(desc string) string {
	lower := strings.ToLower(desc)
	for _, c := range riskCategories {
		if containsAny(lower, c.keywords) {
			return c.name
		}
	}
	return "Other"
}

func riskSeverity(lower string) string {
	if containsAny(lower, severityHighWords) {
		return "high"
	}
	if containsAny(lower, severityLowWords) {
		return "low"
	}
	return "medium"
}
