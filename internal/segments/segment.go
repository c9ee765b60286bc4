package segments

import (
	"fmt"
	"sort"
	"strings"
)

// Segment is a single diarized transcript turn.
type Segment struct {
	ID        string `json:"id"`
	Speaker   string `json:"speaker,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Text      string `json:"text"`
}

// Store is an immutable, ordered collection of segments with ID lookup.
type Store struct {
	segments []Segment
	byID     map[string]int
}

// NewStore assigns stable ordinal IDs to any segments missing one and
// builds the lookup index.
func NewStore(segs []Segment) *Store {
	out := make([]Segment, len(segs))
	copy(out, segs)
	byID := make(map[string]int, len(out))
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("seg-%04d", i)
		}
		byID[out[i].ID] = i
	}
	return &Store{segments: out, byID: byID}
}

// Len returns the number of segments.
func (s *Store) Len() int { return len(s.segments) }

// All returns the ordered segments. Callers must not mutate the slice.
func (s *Store) All() []Segment { return s.segments }

// Get returns the segment with the given ID.
func (s *Store) Get(id string) (Segment, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Segment{}, false
	}
	return s.segments[i], true
}

// Slice returns the segments matching the given IDs, in transcript order.
func (s *Store) Slice(ids []string) []Segment {
	idx := make([]int, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.byID[id]; ok {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	out := make([]Segment, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.segments[i])
	}
	return out
}

// Speakers returns the sorted unique speaker names.
func (s *Store) Speakers() []string {
	set := make(map[string]struct{})
	for _, seg := range s.segments {
		if sp := strings.TrimSpace(seg.Speaker); sp != "" {
			set[sp] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for sp := range set {
		out = append(out, sp)
	}
	sort.Strings(out)
	return out
}

// ToText renders segments back to "Speaker: text" lines.
func ToText(segs []Segment) string {
	var b strings.Builder
	for i, seg := range segs {
		if i > 0 {
			b.WriteByte('\n')
		}
		if seg.Speaker != "" {
			b.WriteString(seg.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}
