package index

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"

	"github.com/mohammad-safakhou/minutes/internal/segments"
)

// Document is one indexed transcript segment.
type Document struct {
	JobID   string `json:"job_id"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Hit is one search result with a display snippet.
type Hit struct {
	SegmentID string  `json:"segment_id"`
	JobID     string  `json:"job_id"`
	Speaker   string  `json:"speaker"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

// Index is a full-text index over transcript segments. The provenance
// tracker uses it to recover source anchors and the API exposes it for
// transcript search. Speaker and text live in bleve stored fields, so
// an on-disk index reopened after a restart serves complete hits.
type Index struct {
	idx    bleve.Index
	logger *log.Logger
}

// Open opens or creates an index at path. An empty path keeps the
// index in memory.
func Open(path string) (*Index, error) {
	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(buildMapping())
	} else if _, statErr := os.Stat(path); statErr == nil {
		idx, err = bleve.Open(path)
	} else {
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening segment index: %w", err)
	}
	return &Index{
		idx:    idx,
		logger: log.New(log.Writer(), "[INDEX] ", log.LstdFlags),
	}, nil
}

// buildMapping indexes job_id as an exact keyword so scoping by job
// survives analysis, and text with the standard analyzer.
func buildMapping() mapping.IndexMapping {
	jobField := bleve.NewTextFieldMapping()
	jobField.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("job_id", jobField)
	doc.AddFieldMappingsAt("text", bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt("speaker", bleve.NewTextFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// docID namespaces a segment by job so multiple transcripts share one index.
func docID(jobID, segID string) string { return jobID + "/" + segID }

func splitDocID(id string) (jobID, segID string) {
	if i := strings.Index(id, "/"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

// IndexSegments indexes the cleaned segments of one job.
func (x *Index) IndexSegments(jobID string, segs []segments.Segment) error {
	batch := x.idx.NewBatch()
	for _, seg := range segs {
		doc := Document{JobID: jobID, Speaker: seg.Speaker, Text: seg.Text}
		if err := batch.Index(docID(jobID, seg.ID), doc); err != nil {
			return err
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("indexing %d segments: %w", len(segs), err)
	}
	x.logger.Printf("indexed %d segments for job %s", len(segs), jobID)
	return nil
}

// SearchSegments returns segment IDs for one job matching the query,
// best first.
func (x *Index) SearchSegments(ctx context.Context, jobID, query string, limit int) ([]string, error) {
	hits, err := x.Hits(ctx, jobID, query, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.SegmentID)
	}
	return ids, nil
}

// Hits runs a transcript search scoped to one job and returns snippets.
func (x *Index) Hits(ctx context.Context, jobID, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	match := bleve.NewMatchQuery(query)
	match.SetField("text")
	jobTerm := bleve.NewTermQuery(jobID)
	jobTerm.SetField("job_id")
	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(jobTerm, match), limit, 0, false)
	req.Fields = []string{"speaker", "text"}

	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		_, segID := splitDocID(hit.ID)
		speaker, _ := hit.Fields["speaker"].(string)
		text, _ := hit.Fields["text"].(string)
		out = append(out, Hit{
			SegmentID: segID,
			JobID:     jobID,
			Speaker:   speaker,
			Snippet:   snippet(text),
			Score:     hit.Score,
		})
	}
	return out, nil
}

// DeleteJob drops one job's segments from the index. Deletion shrinks
// the result set, so re-searching from offset zero walks everything.
func (x *Index) DeleteJob(jobID string) error {
	jobTerm := bleve.NewTermQuery(jobID)
	jobTerm.SetField("job_id")
	for {
		req := bleve.NewSearchRequestOptions(jobTerm, 500, 0, false)
		res, err := x.idx.Search(req)
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := x.idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := x.idx.Batch(batch); err != nil {
			return err
		}
	}
}

// Close releases the underlying index.
func (x *Index) Close() error { return x.idx.Close() }

func snippet(text string) string {
	const maxLen = 160
	if len(text) <= maxLen {
		return text
	}
	cut := text[:maxLen]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
