package preprocess

import (
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/minutes/internal/segments"
)

// fillerWords covers single and multi word verbal filler. Multi word
// entries are matched against two and three word lookaheads.
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "ah": {}, "hmm": {}, "like": {},
	"you know": {}, "actually": {}, "basically": {}, "literally": {},
	"kind of": {}, "sort of": {}, "i mean": {}, "you see": {},
	"right": {}, "okay": {}, "so": {}, "well": {}, "yeah": {}, "yep": {},
	"sure": {}, "alright": {}, "ok": {}, "huh": {}, "wow": {}, "oh": {}, "ahh": {},
}

var smallTalkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(hi|hello|hey|good\s+morning|good\s+afternoon|good\s+evening)`),
	regexp.MustCompile(`^(thanks|thank\s+you|appreciate\s+it)`),
	regexp.MustCompile(`^(sure|okay|ok|yep|yeah|uh\s+huh)$`),
	regexp.MustCompile(`^(got\s+it|understood|makes\s+sense)$`),
	regexp.MustCompile(`^(sounds\s+good|sounds\s+great|perfect|great)$`),
}

var singleWordAcks = map[string]struct{}{
	"yeah": {}, "yep": {}, "ok": {}, "okay": {}, "sure": {}, "right": {},
}

var spaceRe = regexp.MustCompile(`\s+`)

// RemoveFillers strips filler words and phrases from a single utterance.
func RemoveFillers(text string) string {
	words := strings.Fields(text)
	var kept []string

	bare := func(w string) string {
		return strings.TrimRight(strings.ToLower(w), ".,!?;:")
	}

	i := 0
	for i < len(words) {
		if i < len(words)-1 {
			two := bare(words[i]) + " " + bare(words[i+1])
			if _, ok := fillerWords[two]; ok {
				i += 2
				continue
			}
			if i < len(words)-2 {
				three := two + " " + bare(words[i+2])
				if _, ok := fillerWords[three]; ok {
					i += 3
					continue
				}
			}
		}
		if _, ok := fillerWords[bare(words[i])]; !ok {
			kept = append(kept, words[i])
		}
		i++
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(strings.Join(kept, " "), " "))
}

// RemoveRepetitions collapses immediate word repeats ("yeah yeah", "no no no")
// down to a single occurrence, comparing case-insensitively and ignoring
// trailing punctuation.
func RemoveRepetitions(text string) string {
	words := strings.Fields(text)
	out := words[:0:0]
	prev := ""
	for _, w := range words {
		bare := strings.ToLower(strings.TrimRight(w, ".,!?;:"))
		if bare != "" && bare == prev {
			continue
		}
		out = append(out, w)
		prev = bare
	}
	return strings.Join(out, " ")
}

// removeSmallTalk drops greetings and bare acknowledgments.
func removeSmallTalk(segs []segments.Segment) (kept []segments.Segment, removed int) {
	for _, seg := range segs {
		lower := strings.ToLower(strings.TrimSpace(seg.Text))
		isSmallTalk := false
		for _, p := range smallTalkPatterns {
			if p.MatchString(lower) {
				isSmallTalk = true
				break
			}
		}
		words := strings.Fields(lower)
		if len(words) <= 3 && isSmallTalk {
			removed++
			continue
		}
		if len(words) == 1 {
			if _, ok := singleWordAcks[lower]; ok {
				removed++
				continue
			}
		}
		kept = append(kept, seg)
	}
	return kept, removed
}

// mergeShortTurns joins consecutive turns from the same speaker when the
// accumulated turn is under ten words. The merged segment keeps the first
// turn's ID and timestamp so provenance stays anchored.
func mergeShortTurns(segs []segments.Segment) (out []segments.Segment, merged int) {
	if len(segs) == 0 {
		return nil, 0
	}
	current := segs[0]
	for _, next := range segs[1:] {
		if current.Speaker != "" && current.Speaker == next.Speaker &&
			len(strings.Fields(current.Text)) < 10 {
			current.Text = strings.TrimSpace(current.Text + " " + next.Text)
			merged++
			continue
		}
		out = append(out, current)
		current = next
	}
	out = append(out, current)
	return out, merged
}

// normalizeSpeakers folds speaker name variants ("Sarah", "sarah k.",
// "Sarah Kim") onto the longest variant sharing a base name.
func normalizeSpeakers(segs []segments.Segment) (out []segments.Segment, changed int) {
	variants := make(map[string]map[string]struct{})
	for _, seg := range segs {
		if seg.Speaker == "" {
			continue
		}
		base := speakerBase(seg.Speaker)
		if variants[base] == nil {
			variants[base] = make(map[string]struct{})
		}
		variants[base][strings.TrimSpace(seg.Speaker)] = struct{}{}
	}

	canonical := make(map[string]string)
	for _, set := range variants {
		longest := ""
		for v := range set {
			if len(v) > len(longest) || (len(v) == len(longest) && v < longest) {
				longest = v
			}
		}
		for v := range set {
			canonical[v] = longest
		}
	}

	out = make([]segments.Segment, len(segs))
	for i, seg := range segs {
		out[i] = seg
		if c, ok := canonical[strings.TrimSpace(seg.Speaker)]; ok && c != seg.Speaker {
			out[i].Speaker = c
			changed++
		}
	}
	return out, changed
}

func speakerBase(name string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	if len(words) == 0 {
		return ""
	}
	// First name alone is the base so "Sarah" and "Sarah Kim" fold together.
	return strings.TrimRight(words[0], ".")
}

// cleanSegments applies filler and repetition removal, dropping segments
// that end up empty.
func cleanSegments(segs []segments.Segment) []segments.Segment {
	var out []segments.Segment
	for _, seg := range segs {
		text := RemoveRepetitions(RemoveFillers(seg.Text))
		if text == "" {
			continue
		}
		seg.Text = text
		out = append(out, seg)
	}
	return out
}
