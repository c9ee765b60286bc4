package extract

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/models"
)

// Ownership patterns in priority order. The first match wins, so the
// named forms beat speaker attribution which beats collective phrasing.
var ownershipPatterns = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`\b([A-Z][a-z]+)\s+(?:will|is going to|needs to|should|must)\s+([^.!?]+)`), "named"},
	{regexp.MustCompile(`(?i)\bassigned to\s+([A-Z][a-z]+)\s*:?\s*([^.!?]*)`), "assigned"},
	{regexp.MustCompile(`(?i)\b([A-Z][a-z]+)\s+is responsible for\s+([^.!?]+)`), "responsible"},
	{regexp.MustCompile(`(?i)\b([A-Z][a-z]+),?\s+(?:can you|could you|will you|please)\s+([^.!?]+)`), "request"},
	{regexp.MustCompile(`(?i)\b(?:I'll|I will|I'm going to)\s+([^.!?]+)`), "self"},
	{regexp.MustCompile(`(?i)\b(?:we|the team)\s+(?:will|need to|are going to)\s+([^.!?]+)`), "collective"},
}

var dueDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bby\s+(end of day(?:\s+tomorrow)?|EOD(?:\s+tomorrow)?)`),
	regexp.MustCompile(`(?i)\bby\s+((?:next\s+)?(?:Mon|Tues|Wednes|Thurs|Fri|Satur|Sun)day)`),
	regexp.MustCompile(`(?i)\bby\s+(next week|this week|tomorrow|today|end of (?:the )?(?:week|month|quarter))`),
	regexp.MustCompile(`(?i)\bby\s+([A-Z][a-z]+\s+\d{1,2}(?:st|nd|rd|th)?)`),
	regexp.MustCompile(`(?i)\b(?:within|in)\s+(\d+\s+(?:days?|weeks?))`),
	regexp.MustCompile(`(?i)\b(?:deadline|due)\s*:?\s+(?:is\s+)?([^.!?,]+)`),
}

var highPriorityWords = []string{
	"urgent", "critical", "asap", "immediately", "priority",
	"important", "blocker", "blocking", "must",
}

var lowPriorityWords = []string{"when possible", "nice to have", "optional", "low priority"}

var namedOwnerRe = regexp.MustCompile(`\b([A-Z][a-z]+)\s+(?:will|can|should)\b`)

// ExtractActions finds task assignments in the cleaned segments. Owner is
// resolved through the pattern ladder above; unresolved owners cost the
// candidate confidence rather than dropping it.
func ExtractActions(segs []segments.Segment, tags []IntentTag) []models.ActionItem {
	boost := intentBoost(tags, models.IntentActionItem)

	var out []models.ActionItem
	seen := make(map[string]struct{})

	for i, seg := range segs {
		for _, p := range ownershipPatterns {
			for _, m := range p.re.FindAllStringSubmatch(seg.Text, -1) {
				owner, action := ownerAndAction(p.kind, m, seg, segs, i)
				action = strings.TrimRight(strings.TrimSpace(action), ".,")
				if len(action) < 10 {
					continue
				}
				key := strings.ToLower(action)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				score := 0.7
				if boost[seg.ID] {
					score += 0.1
				}
				if owner == "" {
					score -= 0.1
				}

				out = append(out, models.ActionItem{
					ID:          uuid.NewString(),
					Description: action,
					Owner:       owner,
					DueDate:     extractDueDate(seg.Text),
					Priority:    actionPriority(seg.Text),
					Confidence:  clampScore(score),
					Provenance:  models.Provenance{SourceSegmentIDs: []string{seg.ID}},
				})
			}
		}
	}
	return out
}

func ownerAndAction(kind string, m []string, seg segments.Segment, segs []segments.Segment, idx int) (string, string) {
	switch kind {
	case "self":
		return cleanOwner(seg.Speaker, seg.Speaker), m[1]
	case "collective":
		// "we will ..." resolves against named assignment language nearby,
		// falling back to the speaker raising it.
		owner := nearbyNamedOwner(segs, idx)
		if owner == "" {
			owner = cleanOwner(seg.Speaker, seg.Speaker)
		}
		return owner, m[1]
	default:
		return cleanOwner(m[1], seg.Speaker), m[2]
	}
}

func nearbyNamedOwner(segs []segments.Segment, idx int) string {
	for j := max(0, idx-2); j < min(len(segs), idx+3); j++ {
		if m := namedOwnerRe.FindStringSubmatch(segs[j].Text); m != nil {
			if o := cleanOwner(m[1], ""); o != "" {
				return o
			}
		}
	}
	return ""
}

var ownerTitleRe = regexp.MustCompile(`(?i)^(Dr\.|Mr\.|Ms\.|Mrs\.)\s*`)

// cleanOwner normalizes an owner mention, resolving first-person forms
// to the current speaker and discarding non-name words.
func cleanOwner(owner, speaker string) string {
	owner = strings.TrimSpace(ownerTitleRe.ReplaceAllString(strings.TrimSpace(owner), ""))
	switch strings.ToLower(owner) {
	case "":
		return ""
	case "i", "i'll", "i'm":
		return speaker
	case "you", "we", "they", "it", "this", "that", "the", "everyone", "someone", "team":
		return ""
	}
	return strings.ToUpper(owner[:1]) + strings.ToLower(owner[1:])
}

func extractDueDate(text string) string {
	for _, p := range dueDatePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func actionPriority(text string) string {
	lower := strings.ToLower(text)
	if containsAny(lower, highPriorityWords) {
		return "high"
	}
	if containsAny(lower, lowPriorityWords) {
		return "low"
	}
	return "medium"
}
