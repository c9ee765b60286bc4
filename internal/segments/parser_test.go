package segments

import "testing"

func TestParseTextInlineSpeakers(t *testing.T) {
	in := "Sarah: We need to finalize the deployment plan.\nJohn: I will prepare the rollout checklist by Thursday.\n"
	segs := parseText(in)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Speaker != "Sarah" {
		t.Errorf("speaker = %q", segs[0].Speaker)
	}
	if segs[1].Text != "I will prepare the rollout checklist by Thursday." {
		t.Errorf("text = %q", segs[1].Text)
	}
}

func TestParseTextBlockHeaders(t *testing.T) {
	in := "Chen, David (PM)   0:03\nLet's review the migration timeline.\nIt slipped by a week.\n\nPatel, Mira   0:45\nUnderstood.\n"
	segs := parseText(in)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Speaker != "David Chen" {
		t.Errorf("speaker = %q", segs[0].Speaker)
	}
	if segs[0].Timestamp != "0:03" {
		t.Errorf("timestamp = %q", segs[0].Timestamp)
	}
	if segs[0].Text != "Let's review the migration timeline. It slipped by a week." {
		t.Errorf("text = %q", segs[0].Text)
	}
	if segs[1].Speaker != "Mira Patel" {
		t.Errorf("speaker = %q", segs[1].Speaker)
	}
}

func TestParseJSONObjects(t *testing.T) {
	in := []byte(`{"transcript":[{"text":"hello","speaker":"Ana","timestamp":"0:01"},{"content":"world"}],"speakers":["Ana","Ben"]}`)
	segs, err := parseJSON(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[1].Speaker != "Ben" {
		t.Errorf("positional speaker = %q", segs[1].Speaker)
	}
	if segs[1].Text != "world" {
		t.Errorf("content fallback = %q", segs[1].Text)
	}
}

func TestParseSRT(t *testing.T) {
	in := "1\n00:00:01,000 --> 00:00:04,000\n[Sarah] We agreed to ship on Friday.\n\n2\n00:00:05,000 --> 00:00:08,000\nNo speaker tag here.\n"
	segs := parseSRT(in)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Speaker != "Sarah" {
		t.Errorf("speaker = %q", segs[0].Speaker)
	}
	if segs[1].Speaker != "" {
		t.Errorf("speaker should be empty, got %q", segs[1].Speaker)
	}
}

func TestDetectFormat(t *testing.T) {
	if f := DetectFormat("notes.srt", nil); f != FormatSRT {
		t.Errorf("srt extension: %v", f)
	}
	if f := DetectFormat("x.txt", []byte("00:00:01,000 --> 00:00:04,000")); f != FormatSRT {
		t.Errorf("srt content sniff: %v", f)
	}
	if f := DetectFormat("", []byte(`{"transcript":["a"]}`)); f != FormatJSON {
		t.Errorf("json sniff: %v", f)
	}
	if f := DetectFormat("meeting.txt", []byte("Sarah: hi")); f != FormatText {
		t.Errorf("text default: %v", f)
	}
}

func TestStoreLookup(t *testing.T) {
	st := NewStore([]Segment{{Text: "a", Speaker: "X"}, {Text: "b", Speaker: "Y"}, {Text: "c", Speaker: "X"}})
	if st.Len() != 3 {
		t.Fatalf("len = %d", st.Len())
	}
	seg, ok := st.Get("seg-0001")
	if !ok || seg.Text != "b" {
		t.Fatalf("Get seg-0001 = %+v ok=%v", seg, ok)
	}
	sl := st.Slice([]string{"seg-0002", "seg-0000", "missing"})
	if len(sl) != 2 || sl[0].Text != "a" || sl[1].Text != "c" {
		t.Fatalf("Slice out of order: %+v", sl)
	}
	sp := st.Speakers()
	if len(sp) != 2 || sp[0] != "X" || sp[1] != "Y" {
		t.Fatalf("Speakers = %v", sp)
	}
}
