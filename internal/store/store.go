package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/minutes/models"
)

// Store wraps the Postgres connection. All persistence for users,
// uploads, jobs and meeting records goes through it.
type Store struct {
	DB *sql.DB
}

// New constructs the Store from DATABASE_URL or the POSTGRES_* variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Upload operations

type Upload struct {
	ID        string
	UserID    string
	Filename  string
	Format    string
	SizeBytes int64
	Path      string
	CreatedAt time.Time
}

func (s *Store) CreateUpload(ctx context.Context, up Upload) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO uploads (user_id, filename, format, size_bytes, path)
VALUES ($1,$2,$3,$4,$5) RETURNING id
`, up.UserID, up.Filename, up.Format, up.SizeBytes, up.Path).Scan(&id)
	return id, err
}

func (s *Store) GetUpload(ctx context.Context, id, userID string) (Upload, error) {
	var up Upload
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, filename, format, size_bytes, path, created_at
FROM uploads WHERE id=$1 AND user_id=$2
`, id, userID).Scan(&up.ID, &up.UserID, &up.Filename, &up.Format, &up.SizeBytes, &up.Path, &up.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Upload{}, models.ErrMeetingNotFound
	}
	return up, err
}

func (s *Store) ListUploads(ctx context.Context, userID string, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, filename, format, size_bytes, path, created_at
FROM uploads WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Upload
	for rows.Next() {
		var up Upload
		if err := rows.Scan(&up.ID, &up.UserID, &up.Filename, &up.Format, &up.SizeBytes, &up.Path, &up.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, rows.Err()
}

// Job operations

type Job struct {
	ID        string
	UserID    string
	UploadID  string
	Title     string
	State     string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Store) CreateJob(ctx context.Context, j Job) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO jobs (user_id, upload_id, title, state)
VALUES ($1,$2,$3,$4) RETURNING id
`, j.UserID, j.UploadID, j.Title, j.State).Scan(&id)
	return id, err
}

func (s *Store) UpdateJobState(ctx context.Context, id, state, errMsg string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE jobs SET state=$2, error=$3, updated_at=NOW() WHERE id=$1
`, id, state, errMsg)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return models.ErrJobNotFound
	}
	return err
}

func (s *Store) GetJob(ctx context.Context, id, userID string) (Job, error) {
	var j Job
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, upload_id, title, state, COALESCE(error,''), created_at, updated_at
FROM jobs WHERE id=$1 AND user_id=$2
`, id, userID).Scan(&j.ID, &j.UserID, &j.UploadID, &j.Title, &j.State, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, models.ErrJobNotFound
	}
	return j, err
}

func (s *Store) ListJobs(ctx context.Context, userID string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, upload_id, title, state, COALESCE(error,''), created_at, updated_at
FROM jobs WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.UserID, &j.UploadID, &j.Title, &j.State, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Meeting record operations. The record is stored as a JSONB document
// with the hot query columns lifted out beside it.

func (s *Store) SaveRecord(ctx context.Context, userID string, rec *models.MeetingRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO meeting_records (id, job_id, user_id, title, record, tokens_used, cost_estimate, processing_time_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (job_id) DO UPDATE SET
  title              = EXCLUDED.title,
  record             = EXCLUDED.record,
  tokens_used        = EXCLUDED.tokens_used,
  cost_estimate      = EXCLUDED.cost_estimate,
  processing_time_ms = EXCLUDED.processing_time_ms
`, rec.ID, rec.JobID, userID, rec.Title, blob, rec.TokensUsed, rec.CostEstimate, rec.ProcessingTime.Milliseconds())
	return err
}

func (s *Store) GetRecordByJob(ctx context.Context, jobID, userID string) (*models.MeetingRecord, error) {
	var blob []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT record FROM meeting_records WHERE job_id=$1 AND user_id=$2
`, jobID, userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrMeetingNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.MeetingRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// RecordSummary is the list view of a stored record.
type RecordSummary struct {
	ID           string
	JobID        string
	Title        string
	TokensUsed   int64
	CostEstimate float64
	CreatedAt    time.Time
}

func (s *Store) ListRecords(ctx context.Context, userID string, limit int) ([]RecordSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, job_id, COALESCE(title,''), tokens_used, cost_estimate, created_at
FROM meeting_records WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecordSummary
	for rows.Next() {
		var r RecordSummary
		if err := rows.Scan(&r.ID, &r.JobID, &r.Title, &r.TokensUsed, &r.CostEstimate, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRecordsBefore removes records older than the cutoff, returning
// the number deleted. The retention sweep calls this.
func (s *Store) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM meeting_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClaimIdempotency records that an event is being processed. It returns
// false when another worker already claimed the same event.
func (s *Store) ClaimIdempotency(ctx context.Context, eventID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO idempotency_keys (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING
`, eventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
