package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/pipeline"
	"github.com/mohammad-safakhou/minutes/internal/queue/streams"
	"github.com/mohammad-safakhou/minutes/internal/store"
	"github.com/mohammad-safakhou/minutes/models"
)

type fakeStore struct {
	claimed map[string]bool
	uploads map[string]store.Upload
	states  map[string]string
	errors  map[string]string
	saved      []*models.MeetingRecord
	deleted    int64
	cutoffSeen time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claimed: make(map[string]bool),
		uploads: make(map[string]store.Upload),
		states:  make(map[string]string),
		errors:  make(map[string]string),
	}
}

func (f *fakeStore) ClaimIdempotency(ctx context.Context, eventID string) (bool, error) {
	if f.claimed[eventID] {
		return false, nil
	}
	f.claimed[eventID] = true
	return true, nil
}

func (f *fakeStore) GetUpload(ctx context.Context, id, userID string) (store.Upload, error) {
	up, ok := f.uploads[id]
	if !ok {
		return store.Upload{}, models.ErrMeetingNotFound
	}
	return up, nil
}

func (f *fakeStore) UpdateJobState(ctx context.Context, id, state, errMsg string) error {
	f.states[id] = state
	f.errors[id] = errMsg
	return nil
}

func (f *fakeStore) SaveRecord(ctx context.Context, userID string, rec *models.MeetingRecord) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStore) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffSeen = cutoff
	return f.deleted, nil
}

type fakeRunner struct {
	err  error
	jobs []pipeline.Job
}

func (r *fakeRunner) Process(ctx context.Context, job pipeline.Job) (*models.MeetingRecord, error) {
	r.jobs = append(r.jobs, job)
	if r.err != nil {
		return nil, r.err
	}
	return &models.MeetingRecord{ID: "rec-1", JobID: job.ID}, nil
}

func enqueuedMessage(t *testing.T, eventID string) streams.Message {
	t.Helper()
	data, err := json.Marshal(streams.MeetingEnqueued{
		JobID: "job-1", UserID: "user-1", UploadID: "up-1", Title: "Sync",
	})
	if err != nil {
		t.Fatal(err)
	}
	return streams.Message{
		ID: "1-0",
		Envelope: streams.Envelope{
			EventID:        eventID,
			EventType:      streams.EventMeetingEnqueued,
			PayloadVersion: streams.PayloadVersionV1,
			Data:           data,
		},
	}
}

func newTestProcessor(st *fakeStore, runner *fakeRunner) *Processor {
	files := map[string][]byte{"/data/up-1.txt": []byte("Sarah: hello world")}
	readFile := func(path string) ([]byte, error) {
		b, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("no such file: %s", path)
		}
		return b, nil
	}
	return NewProcessor(nil, st, nil, runner, config.WorkerConfig{JobStream: "meeting.enqueued"}, readFile)
}

func TestHandleProcessesJob(t *testing.T) {
	st := newFakeStore()
	st.uploads["up-1"] = store.Upload{ID: "up-1", UserID: "user-1", Filename: "sync.txt", Path: "/data/up-1.txt"}
	runner := &fakeRunner{}
	p := newTestProcessor(st, runner)

	if err := p.Handle(context.Background(), enqueuedMessage(t, "evt-1")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(runner.jobs) != 1 || runner.jobs[0].ID != "job-1" || runner.jobs[0].Filename != "sync.txt" {
		t.Fatalf("unexpected pipeline jobs: %+v", runner.jobs)
	}
	if len(st.saved) != 1 {
		t.Fatalf("expected 1 saved record, got %d", len(st.saved))
	}
	if st.states["job-1"] != string(pipeline.StateDone) {
		t.Fatalf("job state = %q, want done", st.states["job-1"])
	}
}

func TestHandleSkipsDuplicateEvent(t *testing.T) {
	st := newFakeStore()
	st.uploads["up-1"] = store.Upload{ID: "up-1", UserID: "user-1", Filename: "sync.txt", Path: "/data/up-1.txt"}
	runner := &fakeRunner{}
	p := newTestProcessor(st, runner)

	msg := enqueuedMessage(t, "evt-1")
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle duplicate: %v", err)
	}
	if len(runner.jobs) != 1 {
		t.Fatalf("duplicate event reprocessed, runner saw %d jobs", len(runner.jobs))
	}
}

func TestHandleMarksJobFailed(t *testing.T) {
	st := newFakeStore()
	st.uploads["up-1"] = store.Upload{ID: "up-1", UserID: "user-1", Filename: "sync.txt", Path: "/data/up-1.txt"}
	runner := &fakeRunner{err: errors.New("model unreachable")}
	p := newTestProcessor(st, runner)

	if err := p.Handle(context.Background(), enqueuedMessage(t, "evt-1")); err == nil {
		t.Fatal("expected error from failed pipeline")
	}
	if st.states["job-1"] != string(pipeline.StateFailed) {
		t.Fatalf("job state = %q, want failed", st.states["job-1"])
	}
	if st.errors["job-1"] == "" {
		t.Fatal("expected failure reason recorded")
	}
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	st := newFakeStore()
	runner := &fakeRunner{}
	p := newTestProcessor(st, runner)

	msg := enqueuedMessage(t, "evt-1")
	msg.Envelope.EventType = "something.else"
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(runner.jobs) != 0 {
		t.Fatal("unexpected processing for unrelated event type")
	}
}

func TestRetentionSweep(t *testing.T) {
	st := newFakeStore()
	st.deleted = 3
	sw := NewRetentionSweeper(nil, st, config.WorkerConfig{RetentionMaxAge: 720 * time.Hour})
	now := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	sw.now = func() time.Time { return now }

	sw.Sweep(context.Background())

	if want := now.Add(-720 * time.Hour); !st.cutoffSeen.Equal(want) {
		t.Fatalf("cutoff = %s, want %s", st.cutoffSeen, want)
	}
}
