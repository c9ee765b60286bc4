package segments

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Format identifies a transcript encoding.
type Format string

const (
	FormatText Format = "txt"
	FormatJSON Format = "json"
	FormatSRT  Format = "srt"
)

var (
	// "Chen, David   0:03" or "Chen, David (PM)   0:03"
	commaHeaderRe = regexp.MustCompile(`^([A-Z][a-z]+(?:\s*,\s*[A-Z][a-z]+)+(?:\s+\([^)]+\))?)\s+(\d{1,2}:\d{2}(?::\d{2})?)$`)
	// "David Chen   0:03"
	plainHeaderRe = regexp.MustCompile(`^([A-Z][a-z]+\s+[A-Z][a-z]+(?:\s+\([^)]+\))?)\s+(\d{1,2}:\d{2}(?::\d{2})?)$`)
	// "Speaker: text" or "[Speaker] text"
	inlineSpeakerRe = regexp.MustCompile(`^(\w+(?:\s+\w+)?)[:\[]\s*(.+)$`)
	timestampOnlyRe = regexp.MustCompile(`^(\d{1,2}:\d{2}(?::\d{2})?)$`)
	roleSuffixRe    = regexp.MustCompile(`\s*\([^)]+\)$`)
	srtTimestampRe  = regexp.MustCompile(`\d{2}:\d{2}:\d{2},\d{3}\s*-->\s*\d{2}:\d{2}:\d{2},\d{3}`)
	srtSpeakerRe    = regexp.MustCompile(`^\[([^\]]+)\]\s*(.+)$`)
)

// Parse decodes a transcript in the given format. An empty format triggers
// auto-detection.
func Parse(data []byte, format Format) ([]Segment, error) {
	if format == "" {
		format = DetectFormat("", data)
	}
	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatSRT:
		return parseSRT(string(data)), nil
	case FormatText:
		return parseText(string(data)), nil
	default:
		return nil, fmt.Errorf("unsupported transcript format: %s", format)
	}
}

// DetectFormat guesses the transcript format from the filename extension
// and, for plain text, the content's first lines.
func DetectFormat(filename string, data []byte) Format {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".json"):
		return FormatJSON
	case strings.HasSuffix(name, ".srt"):
		return FormatSRT
	}
	head := string(data)
	if len(head) > 512 {
		head = head[:512]
	}
	if srtTimestampRe.MatchString(head) {
		return FormatSRT
	}
	trimmed := strings.TrimSpace(head)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid(data) {
			return FormatJSON
		}
	}
	return FormatText
}

// parseText handles "Speaker: text" lines and "Last, First  0:03" block
// headers, accumulating continuation lines until the next header or blank.
func parseText(content string) []Segment {
	var (
		out       []Segment
		speaker   string
		timestamp string
		current   []string
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(current, " "))
		if text != "" {
			out = append(out, Segment{Speaker: speaker, Timestamp: timestamp, Text: text})
		}
		current = nil
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			speaker, timestamp = "", ""
			continue
		}

		m := commaHeaderRe.FindStringSubmatch(line)
		if m == nil {
			m = plainHeaderRe.FindStringSubmatch(line)
		}
		if m != nil {
			flush()
			speaker = normalizeHeaderName(m[1])
			timestamp = m[2]
			continue
		}

		if m := inlineSpeakerRe.FindStringSubmatch(line); m != nil {
			flush()
			speaker = strings.TrimSpace(m[1])
			current = append(current, strings.TrimSuffix(m[2], "]"))
			continue
		}

		if m := timestampOnlyRe.FindStringSubmatch(line); m != nil && len(current) == 0 {
			timestamp = m[1]
			continue
		}

		current = append(current, line)
	}
	flush()
	return out
}

// normalizeHeaderName converts "Last, First (Role)" to "First Last".
func normalizeHeaderName(raw string) string {
	name := roleSuffixRe.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.Contains(name, ",") {
		parts := strings.SplitN(name, ",", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0]))
		}
	}
	return name
}

func parseJSON(data []byte) ([]Segment, error) {
	var doc struct {
		Transcript json.RawMessage `json:"transcript"`
		Speakers   []string        `json:"speakers"`
		Timestamps []string        `json:"timestamps"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	if len(doc.Transcript) == 0 {
		return nil, fmt.Errorf("transcript field missing or empty")
	}

	// transcript can be a plain string or a list of strings/objects
	var asString string
	if err := json.Unmarshal(doc.Transcript, &asString); err == nil {
		return []Segment{{Text: strings.TrimSpace(asString)}}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(doc.Transcript, &items); err != nil {
		return nil, fmt.Errorf("transcript must be a string or array: %w", err)
	}

	var out []Segment
	for i, item := range items {
		seg := Segment{}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			seg.Text = strings.TrimSpace(s)
		} else {
			var obj struct {
				Text      string `json:"text"`
				Content   string `json:"content"`
				Speaker   string `json:"speaker"`
				Timestamp string `json:"timestamp"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				return nil, fmt.Errorf("transcript entry %d: %w", i, err)
			}
			seg.Text = strings.TrimSpace(obj.Text)
			if seg.Text == "" {
				seg.Text = strings.TrimSpace(obj.Content)
			}
			seg.Speaker = obj.Speaker
			seg.Timestamp = obj.Timestamp
		}
		if seg.Speaker == "" && i < len(doc.Speakers) {
			seg.Speaker = doc.Speakers[i]
		}
		if seg.Timestamp == "" && i < len(doc.Timestamps) {
			seg.Timestamp = doc.Timestamps[i]
		}
		if seg.Text != "" {
			out = append(out, seg)
		}
	}
	return out, nil
}

func parseSRT(content string) []Segment {
	var out []Segment
	for _, block := range regexp.MustCompile(`\n\s*\n`).Split(strings.TrimSpace(content), -1) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		timestamp := ""
		if srtTimestampRe.MatchString(lines[1]) {
			timestamp = strings.TrimSpace(lines[1])
		}
		var textLines []string
		for _, l := range lines[2:] {
			if l = strings.TrimSpace(l); l != "" {
				textLines = append(textLines, l)
			}
		}
		text := strings.Join(textLines, " ")
		if text == "" {
			continue
		}
		if m := srtSpeakerRe.FindStringSubmatch(text); m != nil {
			out = append(out, Segment{Speaker: m[1], Timestamp: timestamp, Text: m[2]})
		} else {
			out = append(out, Segment{Timestamp: timestamp, Text: text})
		}
	}
	return out
}
