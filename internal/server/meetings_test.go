package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/index"
	"github.com/mohammad-safakhou/minutes/internal/pipeline"
	"github.com/mohammad-safakhou/minutes/internal/queue/streams"
	"github.com/mohammad-safakhou/minutes/internal/store"
)

type fakeQueue struct {
	stream  string
	payload streams.MeetingEnqueued
	err     error
}

func (f *fakeQueue) PublishMeetingEnqueued(ctx context.Context, stream string, payload streams.MeetingEnqueued, opts ...streams.PublishOption) (string, error) {
	f.stream = stream
	f.payload = payload
	if f.err != nil {
		return "", f.err
	}
	return "1-0", nil
}

type fakeStatuser struct {
	status pipeline.ProcessingStatus
	ok     bool
}

func (f *fakeStatuser) Status(jobID string) (pipeline.ProcessingStatus, bool) {
	return f.status, f.ok
}

type fakeSearcher struct {
	hits []index.Hit
}

func (f *fakeSearcher) Hits(ctx context.Context, jobID, query string, limit int) ([]index.Hit, error) {
	return f.hits, nil
}

func TestProcessQueuesJob(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	queue := &fakeQueue{}
	h := &MeetingsHandler{Store: &store.Store{DB: db}, Queue: queue, Stream: "meeting.enqueued"}

	mock.ExpectQuery(`FROM uploads WHERE id=\$1 AND user_id=\$2`).
		WithArgs("up-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "filename", "format", "size_bytes", "path", "created_at"}).
			AddRow("up-1", "user-1", "standup.txt", "txt", int64(512), "/data/uploads/up-1.txt", time.Now()))

	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs("user-1", "up-1", "Sprint standup", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/up-1/process", strings.NewReader(`{"title":"Sprint standup"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("up-1")

	if err := h.process(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
	var resp JobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != "job-1" {
		t.Fatalf("unexpected job id %q", resp.JobID)
	}
	if queue.stream != "meeting.enqueued" {
		t.Fatalf("published to stream %q", queue.stream)
	}
	if queue.payload.JobID != "job-1" || queue.payload.UploadID != "up-1" || queue.payload.Title != "Sprint standup" {
		t.Fatalf("unexpected payload: %+v", queue.payload)
	}
}

func TestProcessUploadNotFound(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &MeetingsHandler{Store: &store.Store{DB: db}, Queue: &fakeQueue{}, Stream: "meeting.enqueued"}

	mock.ExpectQuery(`FROM uploads WHERE id=\$1 AND user_id=\$2`).
		WithArgs("missing", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "filename", "format", "size_bytes", "path", "created_at"}))

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/missing/process", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("missing")

	err = h.process(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 error, got %#v", err)
	}
}

func TestJobStatusPrefersLiveState(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	orch := &fakeStatuser{
		status: pipeline.ProcessingStatus{JobID: "job-1", State: pipeline.StateExtracting, Progress: 0.4, Message: "extracting insight candidates"},
		ok:     true,
	}
	h := &MeetingsHandler{Store: &store.Store{DB: db}, Orch: orch}

	mock.ExpectQuery(`FROM jobs WHERE id=\$1 AND user_id=\$2`).
		WithArgs("job-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "upload_id", "title", "state", "error", "created_at", "updated_at"}).
			AddRow("job-1", "user-1", "up-1", "Standup", "preprocessing", "", time.Now(), time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("job-1")

	if err := h.jobStatus(ctx); err != nil {
		t.Fatalf("jobStatus: %v", err)
	}
	var resp JobStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "extracting" || resp.Progress != 0.4 {
		t.Fatalf("expected live state, got %+v", resp)
	}
}

func TestJobStatusFallsBackToRow(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &MeetingsHandler{Store: &store.Store{DB: db}, Orch: &fakeStatuser{}}

	mock.ExpectQuery(`FROM jobs WHERE id=\$1 AND user_id=\$2`).
		WithArgs("job-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "upload_id", "title", "state", "error", "created_at", "updated_at"}).
			AddRow("job-1", "user-1", "up-1", "Standup", "done", "", time.Now(), time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("job-1")

	if err := h.jobStatus(ctx); err != nil {
		t.Fatalf("jobStatus: %v", err)
	}
	var resp JobStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "done" {
		t.Fatalf("expected persisted state, got %+v", resp)
	}
}

func TestSearchReturnsScopedHits(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	searcher := &fakeSearcher{hits: []index.Hit{
		{SegmentID: "seg-0002", JobID: "job-1", Speaker: "John", Snippet: "there's a risk of data loss during migration", Score: 1.4},
	}}
	h := &MeetingsHandler{Store: &store.Store{DB: db}, Index: searcher}

	mock.ExpectQuery(`FROM jobs WHERE id=\$1 AND user_id=\$2`).
		WithArgs("job-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "upload_id", "title", "state", "error", "created_at", "updated_at"}).
			AddRow("job-1", "user-1", "up-1", "Standup", "done", "", time.Now(), time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/search?q=data+loss", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("job-1")

	if err := h.search(ctx); err != nil {
		t.Fatalf("search: %v", err)
	}
	var resp []SearchHitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].SegmentID != "seg-0002" || resp[0].Speaker != "John" {
		t.Fatalf("unexpected hits: %+v", resp)
	}
}

func TestUploadStoresTranscript(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	h := &MeetingsHandler{
		Store: &store.Store{DB: db},
		Files: config.FileConfig{UploadDir: dir, MaxUploadMB: 5},
	}

	body := "Sarah: We decided to move the deadline to next Friday.\nJohn: I'll take care of the migration by Thursday.\n"
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "standup.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(body)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	mock.ExpectQuery(`INSERT INTO uploads`).
		WithArgs("user-1", "standup.txt", "txt", int64(len(body)), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("up-1"))

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := h.upload(ctx); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "up-1" || resp.Format != "txt" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored file, found %d", len(entries))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
