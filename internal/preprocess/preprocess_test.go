package preprocess

import (
	"context"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/segments"
)

func TestRemoveFillers(t *testing.T) {
	got := RemoveFillers("Um, I think we should, you know, ship the migration basically now")
	if strings.Contains(strings.ToLower(got), "you know") || strings.Contains(strings.ToLower(got), "basically") {
		t.Fatalf("fillers survived: %q", got)
	}
	if !strings.Contains(got, "ship the migration") {
		t.Fatalf("content lost: %q", got)
	}
}

func TestRemoveRepetitions(t *testing.T) {
	cases := map[string]string{
		"no no no that breaks prod": "no that breaks prod",
		"we agreed agreed on it":    "we agreed on it",
		"nothing repeated here":     "nothing repeated here",
	}
	for in, want := range cases {
		if got := RemoveRepetitions(in); got != want {
			t.Errorf("RemoveRepetitions(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMergeShortTurns(t *testing.T) {
	segs := []segments.Segment{
		{ID: "seg-0000", Speaker: "Sarah", Text: "One more thing."},
		{ID: "seg-0001", Speaker: "Sarah", Text: "The rollout has to finish before the audit window opens."},
		{ID: "seg-0002", Speaker: "John", Text: "Understood, that works for my team."},
	}
	merged, n := mergeShortTurns(segs)
	if n != 1 {
		t.Fatalf("expected 1 merge, got %d", n)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(merged))
	}
	if merged[0].ID != "seg-0000" {
		t.Fatalf("merged segment should keep first ID, got %s", merged[0].ID)
	}
	if !strings.Contains(merged[0].Text, "audit window") {
		t.Fatalf("merged text missing continuation: %q", merged[0].Text)
	}
}

func TestNormalizeSpeakers(t *testing.T) {
	segs := []segments.Segment{
		{ID: "a", Speaker: "Sarah", Text: "We should decide today."},
		{ID: "b", Speaker: "Sarah Kim", Text: "Agreed, deferring costs us a sprint."},
		{ID: "c", Speaker: "John", Text: "Fine by me."},
	}
	out, changed := normalizeSpeakers(segs)
	if changed != 1 {
		t.Fatalf("expected 1 speaker change, got %d", changed)
	}
	if out[0].Speaker != "Sarah Kim" || out[1].Speaker != "Sarah Kim" {
		t.Fatalf("variants not folded to longest: %s / %s", out[0].Speaker, out[1].Speaker)
	}
	if out[2].Speaker != "John" {
		t.Fatalf("unrelated speaker changed: %s", out[2].Speaker)
	}
}

func TestRemoveSmallTalk(t *testing.T) {
	segs := []segments.Segment{
		{ID: "a", Speaker: "Sarah", Text: "Good morning everyone"},
		{ID: "b", Speaker: "Sarah", Text: "We decided to migrate the user database to Postgres 16."},
		{ID: "c", Speaker: "John", Text: "sounds good"},
		{ID: "d", Speaker: "John", Text: "yeah"},
	}
	kept, removed := removeSmallTalk(segs)
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if len(kept) != 1 || kept[0].ID != "b" {
		t.Fatalf("wrong segments kept: %+v", kept)
	}
}

func TestRunProducesChunksWithoutEmbeddings(t *testing.T) {
	var segs []segments.Segment
	segs = append(segs,
		segments.Segment{Speaker: "Sarah", Text: "Good morning everyone"},
		segments.Segment{Speaker: "Sarah", Text: "We decided to migrate the user database to Postgres sixteen before the end of the quarter because the old cluster is out of support."},
		segments.Segment{Speaker: "John", Text: "I will draft the migration runbook and send it out by Thursday so operations can review it."},
	)
	for i := 0; i < 30; i++ {
		segs = append(segs, segments.Segment{Speaker: "John", Text: "The load test showed latency climbing from one hundred milliseconds to four hundred under peak traffic which worries me for the cutover window."})
	}

	cfg := config.PipelineConfig{
		TopicSimilarityThreshold: 0.7,
		TopicWindow:              3,
		ChunkMaxTokens:           600,
		ChunkMinTokens:           200,
	}
	p := New(cfg, nil, nil)
	res, err := p.Run(context.Background(), segments.NewStore(segs))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Metadata.OriginalSegments != len(segs) {
		t.Fatalf("original count = %d, want %d", res.Metadata.OriginalSegments, len(segs))
	}
	if len(res.Chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, c := range res.Chunks {
		if c.Tokens > 600+200 {
			t.Fatalf("chunk %s is %d tokens, over budget", c.ID, c.Tokens)
		}
		if len(c.SegmentIDs) == 0 {
			t.Fatalf("chunk %s has no segment IDs", c.ID)
		}
		for _, id := range c.SegmentIDs {
			if _, ok := res.Segments.Get(id); !ok {
				t.Fatalf("chunk %s references unknown segment %s", c.ID, id)
			}
		}
	}
	if res.Metadata.SmallTalkRemoved == 0 {
		t.Fatal("expected greeting to be dropped")
	}
}
