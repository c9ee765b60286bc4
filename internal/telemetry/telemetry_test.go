package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/minutes/config"
)

func TestRecordJobAggregates(t *testing.T) {
	tel := New(config.TelemetryConfig{Enabled: true, CostTracking: true}, prometheus.NewRegistry())

	start := time.Now()
	tel.RecordJob(JobEvent{
		JobID:            "job-1",
		StartTime:        start,
		EndTime:          start.Add(2 * time.Second),
		Success:          true,
		Cost:             0.02,
		PromptTokens:     1000,
		CompletionTokens: 200,
		ModelsUsed:       []string{"gpt-5-mini"},
	})
	tel.RecordJob(JobEvent{
		JobID:     "job-2",
		StartTime: start,
		EndTime:   start.Add(4 * time.Second),
		Success:   false,
		Error:     "llm unreachable",
	})

	m := tel.Snapshot()
	if m.TotalJobs != 2 || m.SuccessfulJobs != 1 || m.FailedJobs != 1 {
		t.Fatalf("unexpected job counts: %+v", m)
	}
	if m.AverageProcessingTime != 3*time.Second {
		t.Fatalf("average = %s, want 3s", m.AverageProcessingTime)
	}
	if m.TotalTokens != 1200 {
		t.Fatalf("tokens = %d, want 1200", m.TotalTokens)
	}

	costs := tel.Costs()
	if costs["gpt-5-mini"] == 0 {
		t.Fatalf("expected cost recorded for gpt-5-mini, got %v", costs)
	}
}

func TestRecordJobDisabled(t *testing.T) {
	tel := New(config.TelemetryConfig{Enabled: false}, prometheus.NewRegistry())
	tel.RecordJob(JobEvent{JobID: "job-1", StartTime: time.Now(), EndTime: time.Now(), Success: true})

	if m := tel.Snapshot(); m.TotalJobs != 0 {
		t.Fatalf("disabled telemetry recorded %d jobs", m.TotalJobs)
	}
}

func TestFallbackCountsAsFallbackStatus(t *testing.T) {
	tel := New(config.TelemetryConfig{Enabled: true}, prometheus.NewRegistry())
	start := time.Now()
	tel.RecordJob(JobEvent{JobID: "job-1", StartTime: start, EndTime: start.Add(time.Second), Success: true, FellBack: true})

	if m := tel.Snapshot(); m.FallbackJobs != 1 {
		t.Fatalf("fallback jobs = %d, want 1", m.FallbackJobs)
	}
}
