package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/minutes/models"
)

func TestSaveRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	rec := &models.MeetingRecord{
		ID:           "rec-1",
		JobID:        "job-1",
		Title:        "Launch sync",
		TokensUsed:   1200,
		CostEstimate: 0.04,
		Decisions:    []models.Decision{{ID: "d-1", Description: "move the deadline"}},
	}

	query := regexp.QuoteMeta(`
INSERT INTO meeting_records (id, job_id, user_id, title, record, tokens_used, cost_estimate, processing_time_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (job_id) DO UPDATE SET
  title              = EXCLUDED.title,
  record             = EXCLUDED.record,
  tokens_used        = EXCLUDED.tokens_used,
  cost_estimate      = EXCLUDED.cost_estimate,
  processing_time_ms = EXCLUDED.processing_time_ms
`)
	mock.ExpectExec(query).
		WithArgs(rec.ID, rec.JobID, "user-1", rec.Title, sqlmock.AnyArg(), rec.TokensUsed, rec.CostEstimate, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveRecord(context.Background(), "user-1", rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRecordByJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	want := &models.MeetingRecord{ID: "rec-1", JobID: "job-1", Title: "Launch sync"}
	blob, _ := json.Marshal(want)

	query := regexp.QuoteMeta(`
SELECT record FROM meeting_records WHERE job_id=$1 AND user_id=$2
`)
	mock.ExpectQuery(query).
		WithArgs("job-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(blob))

	got, err := st.GetRecordByJob(context.Background(), "job-1", "user-1")
	if err != nil {
		t.Fatalf("GetRecordByJob: %v", err)
	}
	if got.ID != want.ID || got.Title != want.Title {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGetRecordByJobNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
SELECT record FROM meeting_records WHERE job_id=$1 AND user_id=$2
`)
	mock.ExpectQuery(query).
		WithArgs("job-missing", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	_, err = st.GetRecordByJob(context.Background(), "job-missing", "user-1")
	if !errors.Is(err, models.ErrMeetingNotFound) {
		t.Fatalf("err = %v, want ErrMeetingNotFound", err)
	}
}

func TestUpdateJobStateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
UPDATE jobs SET state=$2, error=$3, updated_at=NOW() WHERE id=$1
`)
	mock.ExpectExec(query).
		WithArgs("job-missing", "done", "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.UpdateJobState(context.Background(), "job-missing", "done", ""); !errors.Is(err, models.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestClaimIdempotency(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	query := regexp.QuoteMeta(`
INSERT INTO idempotency_keys (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING
`)
	mock.ExpectExec(query).WithArgs("evt-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("evt-1").WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := st.ClaimIdempotency(context.Background(), "evt-1")
	if err != nil || !claimed {
		t.Fatalf("first claim = (%v, %v), want (true, nil)", claimed, err)
	}
	claimed, err = st.ClaimIdempotency(context.Background(), "evt-1")
	if err != nil || claimed {
		t.Fatalf("second claim = (%v, %v), want (false, nil)", claimed, err)
	}
}
