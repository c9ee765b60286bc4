package extract

import (
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/models"
)

var (
	quantDateRe    = regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`)
	quantMoneyRe   = regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d+)?(?:\s?[kKmMbB])?`)
	quantPercentRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:%|percent\b)`)
	quantChangeRe  = regexp.MustCompile(`(?i)from\s+([^,.!?]+?)\s+to\s+([^,.!?]+)`)
)

// ExtractQuantFacts pulls dates, money, percentages and before/after
// deltas out of the transcript so the executive summary can cite them.
func ExtractQuantFacts(segs []segments.Segment) []models.QuantFact {
	var out []models.QuantFact
	seen := make(map[string]struct{})

	add := func(text, kind, segID string) {
		text = strings.TrimSpace(text)
		key := kind + "|" + strings.ToLower(text)
		if text == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, models.QuantFact{Text: text, Kind: kind, SegmentID: segID})
	}

	for _, seg := range segs {
		for _, m := range quantDateRe.FindAllString(seg.Text, -1) {
			add(m, "date", seg.ID)
		}
		for _, m := range quantMoneyRe.FindAllString(seg.Text, -1) {
			add(m, "money", seg.ID)
		}
		for _, m := range quantPercentRe.FindAllString(seg.Text, -1) {
			add(m, "percentage", seg.ID)
		}
		for _, m := range quantChangeRe.FindAllStringSubmatch(seg.Text, -1) {
			from := strings.TrimSpace(m[1])
			to := strings.TrimSpace(m[2])
			// Only keep deltas whose endpoints carry a number or date,
			// otherwise "from the team to the board" style phrases leak in.
			if quantHasFigure(from) || quantHasFigure(to) {
				add(from+" -> "+to, "change", seg.ID)
			}
		}
	}
	return out
}

var quantDigitRe = regexp.MustCompile(`\d`)

var weekdayRe = regexp.MustCompile(`(?i)\b(?:mon|tues|wednes|thurs|fri|satur|sun)day\b`)

func quantHasFigure(s string) bool {
	return quantDigitRe.MatchString(s) || weekdayRe.MatchString(s) || quantDateRe.MatchString(s)
}
