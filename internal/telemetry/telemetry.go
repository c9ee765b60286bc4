package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/minutes/config"
)

// Telemetry aggregates job-level metrics and cost accounting for the
// pipeline. All recording is gated on config.Enabled so a disabled
// deployment pays only a mutex check.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu      sync.RWMutex
	metrics Metrics
	costs   *CostTracker

	jobsTotal   *prometheus.CounterVec
	jobDuration prometheus.Histogram
	tokensTotal *prometheus.CounterVec
	costTotal   prometheus.Counter
}

// Metrics is a running aggregate over all recorded jobs.
type Metrics struct {
	TotalJobs             int64         `json:"total_jobs"`
	SuccessfulJobs        int64         `json:"successful_jobs"`
	FailedJobs            int64         `json:"failed_jobs"`
	FallbackJobs          int64         `json:"fallback_jobs"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	TotalTokens           int64         `json:"total_tokens"`
	TotalCost             float64       `json:"total_cost"`
	LastEventTime         time.Time     `json:"last_event_time"`
}

// JobEvent describes one completed (or failed) pipeline run.
type JobEvent struct {
	JobID            string
	StartTime        time.Time
	EndTime          time.Time
	Success          bool
	FellBack         bool
	Error            string
	Cost             float64
	PromptTokens     int64
	CompletionTokens int64
	ModelsUsed       []string
}

// New creates a Telemetry instance. Collectors are registered with reg
// when it is non-nil; tests pass a private registry, the server passes
// prometheus.DefaultRegisterer.
func New(cfg config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		costs:  NewCostTracker(),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_jobs_total",
			Help: "Pipeline jobs by terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "minutes_job_duration_seconds",
			Help:    "Wall-clock pipeline duration per job.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_tokens_total",
			Help: "LLM tokens consumed, split by direction.",
		}, []string{"direction"}),
		costTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minutes_cost_usd_total",
			Help: "Cumulative LLM spend in USD.",
		}),
	}
	if reg != nil {
		reg.MustRegister(t.jobsTotal, t.jobDuration, t.tokensTotal, t.costTotal)
	}
	return t
}

// Tracer returns the tracer used for per-phase pipeline spans. Without
// an SDK installed this is a no-op tracer, which is the intended
// default for local runs.
func (t *Telemetry) Tracer() trace.Tracer {
	return otel.Tracer("minutes/pipeline")
}

// RecordJob folds one job into the running aggregates and prometheus
// collectors.
func (t *Telemetry) RecordJob(ev JobEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := ev.EndTime.Sub(ev.StartTime)
	m := &t.metrics
	m.TotalJobs++
	if ev.Success {
		m.SuccessfulJobs++
	} else {
		m.FailedJobs++
	}
	if ev.FellBack {
		m.FallbackJobs++
	}
	// Running average over all jobs, successes and failures alike.
	m.AverageProcessingTime = time.Duration(
		(int64(m.AverageProcessingTime)*(m.TotalJobs-1) + int64(elapsed)) / m.TotalJobs,
	)
	m.TotalTokens += ev.PromptTokens + ev.CompletionTokens
	m.TotalCost += ev.Cost
	m.LastEventTime = ev.EndTime

	status := "success"
	if !ev.Success {
		status = "failed"
	} else if ev.FellBack {
		status = "fallback"
	}
	t.jobsTotal.WithLabelValues(status).Inc()
	t.jobDuration.Observe(elapsed.Seconds())
	t.tokensTotal.WithLabelValues("prompt").Add(float64(ev.PromptTokens))
	t.tokensTotal.WithLabelValues("completion").Add(float64(ev.CompletionTokens))
	t.costTotal.Add(ev.Cost)

	if t.config.CostTracking {
		for _, model := range ev.ModelsUsed {
			t.costs.Record(model, ev.Cost/float64(max(len(ev.ModelsUsed), 1)))
		}
	}

	if ev.Success {
		t.logger.Printf("job %s done in %s (tokens=%d cost=$%.4f fallback=%v)",
			ev.JobID, elapsed.Round(time.Millisecond), ev.PromptTokens+ev.CompletionTokens, ev.Cost, ev.FellBack)
	} else {
		t.logger.Printf("job %s failed after %s: %s", ev.JobID, elapsed.Round(time.Millisecond), ev.Error)
	}
}

// Snapshot returns a copy of the aggregate metrics.
func (t *Telemetry) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// Costs returns per-model spend since startup.
func (t *Telemetry) Costs() map[string]float64 {
	return t.costs.Snapshot()
}

// CostTracker keeps per-model spend.
type CostTracker struct {
	mu      sync.Mutex
	byModel map[string]float64
}

func NewCostTracker() *CostTracker {
	return &CostTracker{byModel: make(map[string]float64)}
}

func (c *CostTracker) Record(model string, cost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byModel[model] += cost
}

func (c *CostTracker) Snapshot() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.byModel))
	for k, v := range c.byModel {
		out[k] = v
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
