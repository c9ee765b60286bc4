package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the pipeline. Callers branch on these
// with errors.Is.
var (
	ErrEmptyTranscript   = errors.New("transcript is empty")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// State is the processing phase of a job.
type State string

const (
	StatePending       State = "pending"
	StatePreprocessing State = "preprocessing"
	StateExtracting    State = "extracting"
	StateScoring       State = "scoring"
	StateDeduplicating State = "deduplicating"
	StateSummarizing   State = "summarizing"
	StateQualityCheck  State = "quality_check"
	StateFallingBack   State = "falling_back"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// validTransitions encodes the pipeline's state machine. Fallback is
// reachable from the quality check exactly once; the second pass goes
// straight to done.
var validTransitions = map[State][]State{
	StatePending:       {StatePreprocessing, StateFailed},
	StatePreprocessing: {StateExtracting, StateFailed},
	StateExtracting:    {StateScoring, StateFailed},
	StateScoring:       {StateDeduplicating, StateFailed},
	StateDeduplicating: {StateSummarizing, StateFailed},
	StateSummarizing:   {StateQualityCheck, StateFailed},
	StateQualityCheck:  {StateDone, StateFallingBack, StateFailed},
	StateFallingBack:   {StateQualityCheck, StateFailed},
	StateDone:          {},
	StateFailed:        {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends processing.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// ProcessingStatus is the in-flight view of one job, readable while the
// pipeline runs.
type ProcessingStatus struct {
	JobID       string    `json:"job_id"`
	State       State     `json:"state"`
	Progress    float64   `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	FellBack    bool      `json:"fell_back,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// advance moves the status to the next state, enforcing the machine.
func (st *ProcessingStatus) advance(to State, progress float64, message string) error {
	if !CanTransition(st.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.State, to)
	}
	st.State = to
	st.Progress = progress
	st.Message = message
	st.LastUpdated = time.Now()
	return nil
}
