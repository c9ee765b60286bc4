package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/dedup"
	"github.com/mohammad-safakhou/minutes/internal/extract"
	"github.com/mohammad-safakhou/minutes/internal/preprocess"
	"github.com/mohammad-safakhou/minutes/internal/provenance"
	"github.com/mohammad-safakhou/minutes/internal/quality"
	"github.com/mohammad-safakhou/minutes/internal/score"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/internal/semantic"
	"github.com/mohammad-safakhou/minutes/internal/summarize"
	"github.com/mohammad-safakhou/minutes/internal/telemetry"
	"github.com/mohammad-safakhou/minutes/models"
	"github.com/mohammad-safakhou/minutes/provider"
)

var pipelineTracer trace.Tracer = otel.Tracer("minutes/internal/pipeline")

// TranscriptIndex is the full-text index over transcript segments. The
// pipeline feeds it after cleaning; provenance uses it to recover
// source anchors for items that arrive without any.
type TranscriptIndex interface {
	IndexSegments(jobID string, segs []segments.Segment) error
	SearchSegments(ctx context.Context, jobID, query string, limit int) ([]string, error)
}

// jobSearcher scopes index lookups to one job for the provenance tracker.
type jobSearcher struct {
	index TranscriptIndex
	jobID string
}

func (s jobSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	return s.index.SearchSegments(ctx, s.jobID, query, limit)
}

// Job is one transcript to process.
type Job struct {
	ID         string
	Title      string
	Filename   string
	Transcript []byte
}

// Orchestrator runs the insight pipeline end to end and tracks in-flight
// job state.
type Orchestrator struct {
	config    *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	provider  provider.Provider
	index     TranscriptIndex

	processing map[string]*ProcessingStatus
	mu         sync.RWMutex

	semaphore chan struct{}
}

// New creates an orchestrator. idx may be nil, in which case provenance
// runs on extraction anchors alone.
func New(cfg *config.Config, logger *log.Logger, tel *telemetry.Telemetry, prov provider.Provider, idx TranscriptIndex) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	maxJobs := cfg.Pipeline.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}
	return &Orchestrator{
		config:     cfg,
		logger:     logger,
		telemetry:  tel,
		provider:   prov,
		index:      idx,
		processing: make(map[string]*ProcessingStatus),
		semaphore:  make(chan struct{}, maxJobs),
	}
}

// Status returns the in-flight status of a running job.
func (o *Orchestrator) Status(jobID string) (ProcessingStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.processing[jobID]
	if !ok {
		return ProcessingStatus{}, false
	}
	return *st, true
}

// passResult is everything one model tier produced for a job. The
// fallback pass builds a second one and the quality gate picks.
type passResult struct {
	Decisions  []models.Decision
	Actions    []models.ActionItem
	Risks      []models.Risk
	Facts      []models.QuantFact
	Summary    models.Summary
	ProvStats  models.ProvenanceStats
	Quality    models.QualityMetrics
	Prompt     int64
	Completion int64
	Cost       float64
	Models     []string
}

// Process runs the full pipeline for one transcript and returns the
// assembled meeting record.
func (o *Orchestrator) Process(ctx context.Context, job Job) (*models.MeetingRecord, error) {
	startTime := time.Now()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	ctx, span := pipelineTracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("job.id", job.ID)))
	defer span.End()

	status := &ProcessingStatus{
		JobID:       job.ID,
		State:       StatePending,
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
	}
	o.mu.Lock()
	o.processing[job.ID] = status
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.processing, job.ID)
		o.mu.Unlock()
	}()

	select {
	case o.semaphore <- struct{}{}:
		defer func() { <-o.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ev := telemetry.JobEvent{JobID: job.ID, StartTime: startTime}
	defer func() {
		ev.EndTime = time.Now()
		if o.telemetry != nil {
			o.telemetry.RecordJob(ev)
		}
	}()

	fail := func(stage string, err error) (*models.MeetingRecord, error) {
		o.setState(status, StateFailed, 0, err.Error())
		status.Error = err.Error()
		ev.Success = false
		ev.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	// Phase 1: parse and clean.
	o.setState(status, StatePreprocessing, 0.1, "Cleaning and chunking transcript")
	format := segments.DetectFormat(job.Filename, job.Transcript)
	segs, err := segments.Parse(job.Transcript, format)
	if err != nil {
		return fail("parse", err)
	}
	if len(segs) == 0 {
		return fail("parse", ErrEmptyTranscript)
	}

	routing := o.config.LLM.Routing
	embedder := semantic.NewProviderEmbedder(o.provider, routing.Embedding, nil)

	preCtx, preSpan := pipelineTracer.Start(ctx, "pipeline.preprocess")
	pre, err := preprocess.New(o.config.Pipeline, embedder, nil).Run(preCtx, segments.NewStore(segs))
	preSpan.End()
	if err != nil {
		return fail("preprocess", err)
	}
	span.AddEvent("preprocess.complete", trace.WithAttributes(
		attribute.Int("segments", pre.Segments.Len()),
		attribute.Int("chunks", len(pre.Chunks)),
	))

	var searcher provenance.Searcher
	if o.index != nil {
		if err := o.index.IndexSegments(job.ID, pre.Segments.All()); err != nil {
			o.logger.Printf("warn: indexing segments failed: %v", err)
		} else {
			searcher = jobSearcher{index: o.index, jobID: job.ID}
		}
	}

	// Phase 2: first pass at the routed model tier.
	first, err := o.runPass(ctx, pre, embedder, searcher, status,
		routing.Extraction, routing.Summarization, routing.Executive, true)
	if err != nil {
		return fail("pipeline", err)
	}

	// Phase 3: quality gate with one bounded fallback.
	o.setState(status, StateQualityCheck, 0.9, "Evaluating output quality")
	gate := quality.New(o.config.Pipeline, nil)
	best := first
	if gate.LowQuality(first.Quality) && routing.Fallback != "" && routing.Fallback != routing.Extraction {
		o.setState(status, StateFallingBack, 0.92, "Retrying with higher model tier")
		status.FellBack = true
		ev.FellBack = true

		fbCtx, fbSpan := pipelineTracer.Start(ctx, "pipeline.fallback")
		retry, ferr := o.runPass(fbCtx, pre, embedder, searcher, status,
			routing.Fallback, routing.Fallback, routing.Fallback, false)
		fbSpan.End()
		switch {
		case ferr != nil:
			o.logger.Printf("fallback pass failed, keeping first result: %v", ferr)
			first.Quality.QualityWarning = true
		case quality.Score(retry.Quality) > quality.Score(first.Quality):
			o.logger.Printf("fallback improved quality score %.3f -> %.3f",
				quality.Score(first.Quality), quality.Score(retry.Quality))
			retry.Prompt += first.Prompt
			retry.Completion += first.Completion
			retry.Cost += first.Cost
			retry.Models = append(first.Models, retry.Models...)
			best = retry
		default:
			o.logger.Printf("fallback did not improve quality, keeping first result")
			first.Prompt += retry.Prompt
			first.Completion += retry.Completion
			first.Cost += retry.Cost
			first.Quality.QualityWarning = true
		}
		best.Quality.UsedFallback = true
		o.setState(status, StateQualityCheck, 0.95, "Re-evaluating after fallback")
	}

	o.setState(status, StateDone, 1.0, "Complete")

	record := &models.MeetingRecord{
		ID:              uuid.New().String(),
		JobID:           job.ID,
		Title:           job.Title,
		Speakers:        pre.Segments.Speakers(),
		Summary:         best.Summary,
		Decisions:       best.Decisions,
		ActionItems:     best.Actions,
		Risks:           best.Risks,
		QuantFacts:      best.Facts,
		Quality:         best.Quality,
		Preprocess:      pre.Metadata,
		ProvenanceStats: best.ProvStats,
		ModelsUsed:      uniqueStrings(append(best.Models, routing.Embedding)),
		TokensUsed:      best.Prompt + best.Completion,
		CostEstimate:    best.Cost,
		ProcessingTime:  time.Since(startTime),
		CreatedAt:       time.Now(),
	}

	ev.Success = true
	ev.Cost = record.CostEstimate
	ev.PromptTokens = best.Prompt
	ev.CompletionTokens = best.Completion
	ev.ModelsUsed = record.ModelsUsed
	span.SetStatus(codes.Ok, "completed")
	span.AddEvent("record.complete", trace.WithAttributes(
		attribute.Int("decisions", len(record.Decisions)),
		attribute.Int("actions", len(record.ActionItems)),
		attribute.Int("risks", len(record.Risks)),
	))
	o.logger.Printf("job %s complete: %d decisions, %d actions, %d risks in %s",
		job.ID, len(record.Decisions), len(record.ActionItems), len(record.Risks),
		record.ProcessingTime.Round(time.Millisecond))
	return record, nil
}

// runPass executes extraction through executive synthesis at one model
// tier. advanceStates is true only for the first pass; the fallback
// pass reuses the states it already moved through.
func (o *Orchestrator) runPass(ctx context.Context, pre *preprocess.Result, embedder semantic.Embedder, searcher provenance.Searcher, status *ProcessingStatus, extractModel, sumModel, execModel string, advanceStates bool) (*passResult, error) {
	advance := func(s State, progress float64, msg string) {
		if advanceStates {
			o.setState(status, s, progress, msg)
		}
	}

	// Extraction. The LLM extractor is preferred, pattern extraction is
	// the fallback inside the extractor itself.
	advance(StateExtracting, 0.3, "Extracting decisions, actions and risks")
	exCtx, exSpan := pipelineTracer.Start(ctx, "pipeline.extract")
	tagger := extract.NewTagger(embedder, o.config.Pipeline)
	var llm *extract.LLMExtractor
	if o.provider != nil && extractModel != "" {
		llm = extract.NewLLMExtractor(o.provider, extractModel)
	}
	extractor := extract.NewExtractor(tagger, llm, nil)
	res, err := extractor.Run(exCtx, pre.Segments.All())
	exSpan.End()
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	// Narrative summary first: confidence recalibration compares each
	// item against the summary text.
	advance(StateScoring, 0.5, "Summarizing chunks and scoring items")
	summarizer := summarize.New(o.provider, sumModel, execModel, o.config.Pipeline.ChunkSummaryTokens, nil)
	sumCtx, sumSpan := pipelineTracer.Start(ctx, "pipeline.narrative")
	summary, err := summarizer.Narrative(sumCtx, pre.Chunks)
	sumSpan.End()
	if err != nil {
		return nil, fmt.Errorf("narrative summary: %w", err)
	}

	scorer := score.New(embedder, nil)
	scorer.Score(ctx, score.ScoreSet{
		Decisions: res.Decisions,
		Actions:   res.ActionItems,
		Risks:     res.Risks,
	}, narrativeText(summary))

	advance(StateDeduplicating, 0.6, "Merging duplicates and resolving provenance")
	deduper := dedup.New(embedder, o.config.Pipeline, nil)
	decisions := deduper.Decisions(ctx, res.Decisions)
	actions := deduper.Actions(ctx, res.ActionItems)
	risks := deduper.Risks(ctx, res.Risks)

	tracker := provenance.New(embedder, searcher, o.config.Pipeline, nil)
	provStats := tracker.Resolve(ctx, pre.Segments, provenance.Set{
		Decisions: decisions,
		Actions:   actions,
		Risks:     risks,
	})

	advance(StateSummarizing, 0.75, "Writing executive summary")
	execCtx, execSpan := pipelineTracer.Start(ctx, "pipeline.executive")
	executive, err := summarizer.Executive(execCtx, narrativeText(summary), decisions, actions, risks, res.QuantFacts)
	execSpan.End()
	if err != nil {
		return nil, fmt.Errorf("executive summary: %w", err)
	}
	summary.Executive = executive

	gate := quality.New(o.config.Pipeline, nil)
	metrics := gate.Evaluate(executive, decisions, actions, risks)

	prompt, completion := extractor.Usage()
	prompt += summarizer.PromptTokens
	completion += summarizer.CompletionTokens

	var cost float64
	if o.provider != nil {
		ep, ec := extractor.Usage()
		cost = o.provider.CalculateCost(ep, ec, extractModel) +
			o.provider.CalculateCost(summarizer.PromptTokens, summarizer.CompletionTokens, sumModel)
	}

	modelsUsed := []string{sumModel, execModel}
	if llm != nil {
		modelsUsed = append(modelsUsed, extractModel)
	}

	return &passResult{
		Decisions:  decisions,
		Actions:    actions,
		Risks:      risks,
		Facts:      res.QuantFacts,
		Summary:    summary,
		ProvStats:  provStats,
		Quality:    metrics,
		Prompt:     prompt,
		Completion: completion,
		Cost:       cost,
		Models:     modelsUsed,
	}, nil
}

func (o *Orchestrator) setState(status *ProcessingStatus, s State, progress float64, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := status.advance(s, progress, msg); err != nil {
		// A broken transition is a programming error; log it loudly but
		// keep the job moving rather than wedging it.
		o.logger.Printf("warn: %v", err)
		status.State = s
		status.Progress = progress
		status.Message = msg
		status.LastUpdated = time.Now()
		return
	}
	o.logger.Printf("job %s -> %s (%.0f%%)", status.JobID, s, progress*100)
}

// narrativeText returns the top merged narrative level.
func narrativeText(s models.Summary) string {
	if len(s.Levels) == 0 {
		return ""
	}
	return s.Levels[len(s.Levels)-1].Text
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
