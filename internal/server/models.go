package server

import "time"

// HTTPError is the generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// UploadResponse describes a stored transcript upload.
type UploadResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ProcessRequest starts a pipeline job for an upload.
type ProcessRequest struct {
	Title string `json:"title"`
}

// JobResponse is the queued-job acknowledgement.
type JobResponse struct {
	JobID string `json:"job_id"`
}

// JobStatusResponse reports where a job is in the pipeline. Progress and
// message are only present while the job is in flight on this process.
type JobStatusResponse struct {
	JobID    string  `json:"job_id"`
	State    string  `json:"state"`
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`
	Error    string  `json:"error,omitempty"`
	FellBack bool    `json:"fell_back,omitempty"`
}

// RecordSummaryResponse is the list view of a stored meeting record.
type RecordSummaryResponse struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	Title        string    `json:"title"`
	TokensUsed   int64     `json:"tokens_used"`
	CostEstimate float64   `json:"cost_estimate"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchHitResponse is a transcript search match.
type SearchHitResponse struct {
	SegmentID string  `json:"segment_id"`
	Speaker   string  `json:"speaker"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}
