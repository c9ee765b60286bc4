package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/pipeline"
	"github.com/mohammad-safakhou/minutes/internal/queue/streams"
	"github.com/mohammad-safakhou/minutes/internal/store"
	"github.com/mohammad-safakhou/minutes/models"
)

// StoreAPI captures the store methods required by the worker.
type StoreAPI interface {
	ClaimIdempotency(ctx context.Context, eventID string) (bool, error)
	GetUpload(ctx context.Context, id, userID string) (store.Upload, error)
	UpdateJobState(ctx context.Context, id, state, errMsg string) error
	SaveRecord(ctx context.Context, userID string, rec *models.MeetingRecord) error
	DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner runs one transcript through the pipeline. *pipeline.Orchestrator
// satisfies it.
type Runner interface {
	Process(ctx context.Context, job pipeline.Job) (*models.MeetingRecord, error)
}

// ReadFileFunc loads the raw transcript for an upload path. Tests
// substitute an in-memory map.
type ReadFileFunc func(path string) ([]byte, error)

// Processor consumes meeting.enqueued events, runs the pipeline and
// persists the record.
type Processor struct {
	logger   *log.Logger
	store    StoreAPI
	consumer *streams.Consumer
	runner   Runner
	readFile ReadFileFunc
	cfg      config.WorkerConfig
	tracer   trace.Tracer
}

// NewProcessor constructs a Processor. readFile may be nil; os.ReadFile
// is used then.
func NewProcessor(logger *log.Logger, st StoreAPI, cons *streams.Consumer, runner Runner, cfg config.WorkerConfig, readFile ReadFileFunc) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	if readFile == nil {
		readFile = os.ReadFile
	}
	return &Processor{
		logger:   logger,
		store:    st,
		consumer: cons,
		runner:   runner,
		readFile: readFile,
		cfg:      cfg,
		tracer:   otel.Tracer("minutes/internal/worker"),
	}
}

// Start blocks, continuously processing meeting.enqueued events until
// the context is cancelled. Messages a crashed worker left pending are
// periodically reclaimed.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker starting; consuming stream %s", p.cfg.JobStream)

	block := p.cfg.ReadBlock
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := p.cfg.ClaimMinIdle
	if claimIdle <= 0 {
		claimIdle = time.Minute
	}
	nextClaim := time.Now().Add(claimIdle)

	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		if time.Now().After(nextClaim) {
			claimed, err := p.consumer.Claim(ctx, claimIdle, 16)
			if err != nil {
				p.logger.Printf("warn: reclaiming stale messages: %v", err)
			} else if len(claimed) > 0 {
				p.logger.Printf("reclaimed %d stale messages", len(claimed))
				p.drain(ctx, claimed)
			}
			nextClaim = time.Now().Add(claimIdle)
		}

		msgs, err := p.consumer.Read(ctx, block, 16)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		p.drain(ctx, msgs)
	}
}

func (p *Processor) drain(ctx context.Context, msgs []streams.Message) {
	for _, msg := range msgs {
		if err := p.Handle(ctx, msg); err != nil {
			p.logger.Printf("error handling message %s: %v", msg.ID, err)
		}
		if err := p.consumer.Ack(ctx, msg.ID); err != nil {
			p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
		}
	}
}

// Handle processes a single queue message. Exported so tests can drive
// the processor without Redis.
func (p *Processor) Handle(ctx context.Context, msg streams.Message) error {
	ctx, span := p.tracer.Start(ctx, "worker.handle_meeting")
	defer span.End()

	if msg.Envelope.EventType != streams.EventMeetingEnqueued {
		p.logger.Printf("skip event %s: unexpected type %s", msg.Envelope.EventID, msg.Envelope.EventType)
		return nil
	}

	claimed, err := p.store.ClaimIdempotency(ctx, msg.Envelope.EventID)
	if err != nil {
		return fmt.Errorf("claim idempotency: %w", err)
	}
	if !claimed {
		p.logger.Printf("skip event %s: already processed", msg.Envelope.EventID)
		return nil
	}

	var payload streams.MeetingEnqueued
	if err := json.Unmarshal(msg.Envelope.Data, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.JobID == "" || payload.UploadID == "" {
		return fmt.Errorf("payload missing job_id or upload_id")
	}

	if err := p.store.UpdateJobState(ctx, payload.JobID, string(pipeline.StatePreprocessing), ""); err != nil {
		p.logger.Printf("warn: marking job %s running: %v", payload.JobID, err)
	}

	up, err := p.store.GetUpload(ctx, payload.UploadID, payload.UserID)
	if err != nil {
		return p.failJob(ctx, payload.JobID, fmt.Errorf("load upload: %w", err))
	}
	raw, err := p.readFile(up.Path)
	if err != nil {
		return p.failJob(ctx, payload.JobID, fmt.Errorf("read transcript: %w", err))
	}

	record, err := p.runner.Process(ctx, pipeline.Job{
		ID:         payload.JobID,
		Title:      payload.Title,
		Filename:   up.Filename,
		Transcript: raw,
	})
	if err != nil {
		return p.failJob(ctx, payload.JobID, err)
	}

	if err := p.store.SaveRecord(ctx, payload.UserID, record); err != nil {
		return p.failJob(ctx, payload.JobID, fmt.Errorf("save record: %w", err))
	}
	if err := p.store.UpdateJobState(ctx, payload.JobID, string(pipeline.StateDone), ""); err != nil {
		p.logger.Printf("warn: marking job %s done: %v", payload.JobID, err)
	}
	p.logger.Printf("job %s processed: %d items", payload.JobID, record.ItemCount())
	return nil
}

func (p *Processor) failJob(ctx context.Context, jobID string, cause error) error {
	if err := p.store.UpdateJobState(ctx, jobID, string(pipeline.StateFailed), cause.Error()); err != nil {
		p.logger.Printf("warn: marking job %s failed: %v", jobID, err)
	}
	return cause
}
