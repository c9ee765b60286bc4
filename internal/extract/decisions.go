package extract

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/models"
)

var explicitDecisionKeywords = []string{
	"decided", "decision", "agreed", "approved", "concluded",
	"finalized", "settled", "voted", "unanimously",
}

var implicitDecisionKeywords = []string{
	"let's", "we will", "we're going to", "we are going to",
	"going with", "focus on", "move to", "change to",
}

var timelineDecisionKeywords = []string{
	"postpone", "reschedule", "push the", "move the deadline", "new deadline",
}

var decisionCorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:decided|agreed|approved|concluded|finalized|settled)\s+(?:to|that|on)\s+([^.!?]+)`),
	regexp.MustCompile(`(?i)(?:we|the team|everyone)\s+(?:will|are going to)\s+([^.!?]+)`),
	regexp.MustCompile(`(?i)(?:let's|we're)\s+(?:make|go with|push|change|move)\s+([^.!?]+)`),
}

var rationaleRe = regexp.MustCompile(`(?i)(?:because|since|due to|given that|to ensure|to give)\s+([^.!?]+)`)

var groupDecisionRe = regexp.MustCompile(`(?i)\b(we|team|everyone|unanimously|all)\b`)

var decisionCategories = []struct {
	name     string
	keywords []string
}{
	{"timeline", []string{"date", "deadline", "schedule", "delay", "postpone", "timeline"}},
	{"features", []string{"feature", "scope", "functionality", "requirement", "cut", "add"}},
	{"budget", []string{"budget", "cost", "money", "allocation", "$", "funding"}},
	{"security", []string{"security", "audit", "compliance"}},
	{"communication", []string{"meeting", "checkpoint", "report", "update", "standup"}},
	{"resources", []string{"team", "assign", "resource", "staff", "hire"}},
	{"process", []string{"process", "workflow", "procedure", "methodology"}},
}

// ExtractDecisions finds explicit and implicit decisions in the cleaned
// segments. A matching sentence segment yields one candidate; the raw
// confidence reflects how explicit the decision language was.
func ExtractDecisions(segs []segments.Segment, tags []IntentTag) []models.Decision {
	boost := intentBoost(tags, models.IntentDecision)

	var out []models.Decision
	for i, seg := range segs {
		lower := strings.ToLower(seg.Text)

		score := 0.0
		switch {
		case containsAny(lower, explicitDecisionKeywords):
			score = 0.8
		case containsAny(lower, implicitDecisionKeywords):
			score = 0.6
		case containsAny(lower, timelineDecisionKeywords):
			score = 0.5
		}
		if score <= 0.4 {
			continue
		}

		description := seg.Text
		matched := false
		for _, p := range decisionCorePatterns {
			if m := p.FindString(seg.Text); m != "" {
				description = strings.TrimSpace(m)
				matched = true
				break
			}
		}
		if matched {
			score += 0.1
		}
		if boost[seg.ID] {
			score += 0.1
		}

		rationale := ""
		if m := rationaleRe.FindStringSubmatch(seg.Text); m != nil {
			rationale = strings.TrimSpace(m[1])
		}

		sourceIDs := []string{seg.ID}
		participants := decisionParticipants(seg, segs, i, &sourceIDs)

		out = append(out, models.Decision{
			ID:           uuid.NewString(),
			Description:  strings.TrimRight(description, ".,"),
			Category:     categorizeDecision(lower),
			Rationale:    rationale,
			Participants: participants,
			MadeBy:       seg.Speaker,
			Confidence:   clampScore(score),
			Provenance:   models.Provenance{SourceSegmentIDs: sourceIDs},
		})
	}
	return out
}

// decisionParticipants attributes a decision to its speaker, widening to
// the speakers of the surrounding window for group phrasing ("we",
// "everyone"). Window segments become additional provenance sources.
func decisionParticipants(seg segments.Segment, segs []segments.Segment, idx int, sourceIDs *[]string) []string {
	var participants []string
	if seg.Speaker != "" {
		participants = append(participants, seg.Speaker)
	}
	if !groupDecisionRe.MatchString(seg.Text) {
		return participants
	}

	for j := max(0, idx-2); j < min(len(segs), idx+3); j++ {
		if j == idx {
			continue
		}
		sp := segs[j].Speaker
		if sp == "" || containsString(participants, sp) {
			continue
		}
		participants = append(participants, sp)
		*sourceIDs = append(*sourceIDs, segs[j].ID)
		if len(participants) >= 5 {
			break
		}
	}
	return participants
}

func categorizeDecision(lower string) string {
	for _, c := range decisionCategories {
		if containsAny(lower, c.keywords) {
			return c.name
		}
	}
	return "other"
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clampScore(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < 0 {
		return 0
	}
	return s
}

// intentBoost maps segment IDs whose sentences were tagged with the
// given intent at tagger confidence.
func intentBoost(tags []IntentTag, intent models.Intent) map[string]bool {
	out := make(map[string]bool)
	for _, t := range tags {
		for _, in := range t.Intents {
			if in == intent {
				out[t.SegmentID] = true
			}
		}
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
