package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/index"
	"github.com/mohammad-safakhou/minutes/internal/pipeline"
	"github.com/mohammad-safakhou/minutes/internal/queue/streams"
	"github.com/mohammad-safakhou/minutes/internal/segments"
	"github.com/mohammad-safakhou/minutes/internal/store"
	"github.com/mohammad-safakhou/minutes/models"
)

// Enqueuer publishes meeting jobs onto the work stream.
type Enqueuer interface {
	PublishMeetingEnqueued(ctx context.Context, stream string, payload streams.MeetingEnqueued, opts ...streams.PublishOption) (string, error)
}

// Statuser reports in-flight pipeline state for jobs running on this
// process. Jobs handled elsewhere fall back to the persisted row.
type Statuser interface {
	Status(jobID string) (pipeline.ProcessingStatus, bool)
}

// Searcher runs full-text queries over indexed transcript segments.
type Searcher interface {
	Hits(ctx context.Context, jobID, query string, limit int) ([]index.Hit, error)
}

// MeetingsHandler exposes transcript uploads, pipeline jobs and their
// results.
type MeetingsHandler struct {
	Store  *store.Store
	Queue  Enqueuer
	Orch   Statuser
	Index  Searcher
	Files  config.FileConfig
	Stream string
}

func (h *MeetingsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("/uploads", h.upload)
	g.GET("/uploads", h.listUploads)
	g.POST("/uploads/:id/process", h.process)
	g.GET("/jobs", h.listJobs)
	g.GET("/jobs/:id", h.jobStatus)
	g.GET("/jobs/:id/result", h.result)
	g.GET("/jobs/:id/export", h.export)
	g.GET("/jobs/:id/search", h.search)
	g.GET("/records", h.listRecords)
}

// Upload
//
//	@Summary		Upload a transcript
//	@Description	Accepts txt, json or srt transcripts as multipart form data
//	@Tags			meetings
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"Transcript file"
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		413		{object}	HTTPError
//	@Router			/api/uploads [post]
func (h *MeetingsHandler) upload(c echo.Context) error {
	userID := c.Get("user_id").(string)
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	maxBytes := int64(h.Files.MaxUploadMB) * 1024 * 1024
	if maxBytes > 0 && fh.Size > maxBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %dMB limit", h.Files.MaxUploadMB))
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	format := segments.DetectFormat(fh.Filename, data)
	if _, err := segments.Parse(data, format); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unreadable transcript: %v", err))
	}

	if err := os.MkdirAll(h.Files.UploadDir, 0o755); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	path := filepath.Join(h.Files.UploadDir, uuid.NewString()+filepath.Ext(fh.Filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	id, err := h.Store.CreateUpload(c.Request().Context(), store.Upload{
		UserID:    userID,
		Filename:  fh.Filename,
		Format:    string(format),
		SizeBytes: int64(len(data)),
		Path:      path,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, UploadResponse{
		ID:        id,
		Filename:  fh.Filename,
		Format:    string(format),
		SizeBytes: int64(len(data)),
	})
}

func (h *MeetingsHandler) listUploads(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ups, err := h.Store.ListUploads(c.Request().Context(), userID, queryLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]UploadResponse, 0, len(ups))
	for _, up := range ups {
		out = append(out, UploadResponse{
			ID:        up.ID,
			Filename:  up.Filename,
			Format:    up.Format,
			SizeBytes: up.SizeBytes,
			CreatedAt: up.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Process
//
//	@Summary		Queue an uploaded transcript for processing
//	@Tags			meetings
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Upload id"
//	@Param			payload	body		ProcessRequest	false	"Job options"
//	@Success		202		{object}	JobResponse
//	@Failure		404		{object}	HTTPError
//	@Router			/api/uploads/{id}/process [post]
func (h *MeetingsHandler) process(c echo.Context) error {
	userID := c.Get("user_id").(string)
	uploadID := c.Param("id")
	up, err := h.Store.GetUpload(c.Request().Context(), uploadID, userID)
	if err != nil {
		if errors.Is(err, models.ErrMeetingNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "upload not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var req ProcessRequest
	_ = c.Bind(&req)
	title := req.Title
	if title == "" {
		title = up.Filename
	}

	jobID, err := h.Store.CreateJob(c.Request().Context(), store.Job{
		UserID:   userID,
		UploadID: up.ID,
		Title:    title,
		State:    string(pipeline.StatePending),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	_, err = h.Queue.PublishMeetingEnqueued(c.Request().Context(), h.Stream, streams.MeetingEnqueued{
		JobID:    jobID,
		UserID:   userID,
		UploadID: up.ID,
		Title:    title,
	})
	if err != nil {
		_ = h.Store.UpdateJobState(c.Request().Context(), jobID, string(pipeline.StateFailed), "enqueue failed: "+err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "enqueue failed: "+err.Error())
	}
	return c.JSON(http.StatusAccepted, JobResponse{JobID: jobID})
}

func (h *MeetingsHandler) listJobs(c echo.Context) error {
	userID := c.Get("user_id").(string)
	jobs, err := h.Store.ListJobs(c.Request().Context(), userID, queryLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]JobStatusResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobStatusResponse{JobID: j.ID, State: j.State, Error: j.Error})
	}
	return c.JSON(http.StatusOK, out)
}

// JobStatus
//
//	@Summary	Pipeline state of a job
//	@Tags		meetings
//	@Produce	json
//	@Param		id	path		string	true	"Job id"
//	@Success	200	{object}	JobStatusResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/jobs/{id} [get]
func (h *MeetingsHandler) jobStatus(c echo.Context) error {
	userID := c.Get("user_id").(string)
	jobID := c.Param("id")
	j, err := h.Store.GetJob(c.Request().Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := JobStatusResponse{JobID: j.ID, State: j.State, Error: j.Error}
	// In-flight jobs on this process carry live progress.
	if h.Orch != nil {
		if st, ok := h.Orch.Status(jobID); ok {
			resp.State = string(st.State)
			resp.Progress = st.Progress
			resp.Message = st.Message
			resp.Error = st.Error
			resp.FellBack = st.FellBack
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Result
//
//	@Summary	Structured meeting record for a finished job
//	@Tags		meetings
//	@Produce	json
//	@Param		id	path		string	true	"Job id"
//	@Success	200	{object}	models.MeetingRecord
//	@Failure	404	{object}	HTTPError
//	@Router		/api/jobs/{id}/result [get]
func (h *MeetingsHandler) result(c echo.Context) error {
	userID := c.Get("user_id").(string)
	rec, err := h.Store.GetRecordByJob(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, models.ErrMeetingNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

// Export renders the record as minutes. format=md returns Markdown,
// anything else returns the raw record.
func (h *MeetingsHandler) export(c echo.Context) error {
	userID := c.Get("user_id").(string)
	rec, err := h.Store.GetRecordByJob(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, models.ErrMeetingNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch c.QueryParam("format") {
	case "md", "markdown":
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(pipeline.RenderMarkdown(rec)))
	default:
		return c.JSON(http.StatusOK, rec)
	}
}

// Search
//
//	@Summary	Full-text search over a job's transcript
//	@Tags		meetings
//	@Produce	json
//	@Param		id	path		string	true	"Job id"
//	@Param		q	query		string	true	"Query"
//	@Success	200	{array}		SearchHitResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/jobs/{id}/search [get]
func (h *MeetingsHandler) search(c echo.Context) error {
	userID := c.Get("user_id").(string)
	jobID := c.Param("id")
	if _, err := h.Store.GetJob(c.Request().Context(), jobID, userID); err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	if h.Index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search index not configured")
	}
	hits, err := h.Index.Hits(c.Request().Context(), jobID, q, queryLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]SearchHitResponse, 0, len(hits))
	for _, hit := range hits {
		out = append(out, SearchHitResponse{
			SegmentID: hit.SegmentID,
			Speaker:   hit.Speaker,
			Snippet:   hit.Snippet,
			Score:     hit.Score,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *MeetingsHandler) listRecords(c echo.Context) error {
	userID := c.Get("user_id").(string)
	recs, err := h.Store.ListRecords(c.Request().Context(), userID, queryLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]RecordSummaryResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecordSummaryResponse{
			ID:           r.ID,
			JobID:        r.JobID,
			Title:        r.Title,
			TokensUsed:   r.TokensUsed,
			CostEstimate: r.CostEstimate,
			CreatedAt:    r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func queryLimit(c echo.Context) int {
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
