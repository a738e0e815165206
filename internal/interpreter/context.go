package interpreter

import (
	"time"

	"github.com/google/uuid"

	"github.com/williampepple1/scrapebot/internal/config"
	sio "github.com/williampepple1/scrapebot/internal/io"
)

// RunStampLayout names the screenshots of one run
const RunStampLayout = "2006-01-02_15-04-05"

// State is the lifecycle position of a run
type State int

const (
	StateNotStarted State = iota
	StateInitializing
	StateRunning
	StateDeliveringResults
	StatePersistingCookies
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDeliveringResults:
		return "delivering results"
	case StatePersistingCookies:
		return "persisting cookies"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RunContext is the state of one process invocation
type RunContext struct {
	UID      string
	RunID    string
	Started  time.Time
	RunStamp string
	Config   config.Config
	Browser  Browser

	// Buffer collects results for remote delivery. It is nil when delivery
	// is disabled.
	Buffer *sio.Buffer

	state State
	step  int
}

func newRunContext(cfg config.Config, now time.Time) *RunContext {
	rc := &RunContext{
		UID:      cfg.UID,
		RunID:    uuid.NewString(),
		Started:  now,
		RunStamp: now.Format(RunStampLayout),
		Config:   cfg,
		state:    StateNotStarted,
		step:     -1,
	}
	if cfg.LogToREST {
		rc.Buffer = &sio.Buffer{}
	}
	return rc
}

// State returns the current lifecycle state
func (rc *RunContext) State() State {
	return rc.state
}

// Step returns the index of the step being executed, or -1
func (rc *RunContext) Step() int {
	return rc.step
}
