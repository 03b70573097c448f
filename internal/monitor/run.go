package monitor

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task names used for subjects, metrics labels and history rows.
const (
	TaskMSM   = "msm"
	TaskNodes = "nodes"
	TaskTemps = "temps"
)

// Alert is the content of a single outbound notification.
type Alert struct {
	Task    string    `json:"task"`
	Host    string    `json:"host"`
	Subject string    `json:"subject"`
	Lines   []string  `json:"lines"`
	At      time.Time `json:"at"`
}

// Run summarises one invocation of a task.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Task       string    `json:"task"`
	Host       string    `json:"host"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	AlertLines int       `json:"alert_lines"`
	Notified   bool      `json:"notified"`
	Error      string    `json:"error,omitempty"`

	// Measurements holds task specific values, e.g. sensor label to celsius.
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

// NewRun starts a run record for task on host.
func NewRun(task, host string, startedAt time.Time) Run {
	return Run{
		ID:        uuid.New(),
		Task:      task,
		Host:      host,
		StartedAt: startedAt,
	}
}

// Finish stamps the run with its outcome.
func (r *Run) Finish(finishedAt time.Time, err error) {
	r.FinishedAt = finishedAt
	if err != nil {
		r.Error = err.Error()
	}
}

// Succeeded reports whether the run completed without error.
func (r Run) Succeeded() bool { return r.Error == "" }

// Publisher forwards an alert to an event bus.
type Publisher interface {
	PublishAlert(ctx context.Context, runID uuid.UUID, alert Alert) error
}

// Recorder persists run history.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// MetricsWriter exports the outcome of a run.
type MetricsWriter interface {
	WriteRun(run Run) error
}

// Sinks are the optional destinations a finished run is reported to. Any of
// them may be nil. Sink failures are logged and never change the run outcome.
type Sinks struct {
	Publishers []Publisher
	Recorder   Recorder
	Metrics    MetricsWriter
	Logger     *slog.Logger
}

// Report delivers run (and alert, when one was sent) to every configured sink.
func (s Sinks) Report(ctx context.Context, run Run, alert *Alert) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if alert != nil && run.Notified {
		for _, p := range s.Publishers {
			if err := p.PublishAlert(ctx, run.ID, *alert); err != nil {
				logger.Warn("failed to publish alert", "task", run.Task, "run_id", run.ID, "error", err)
			}
		}
	}
	if s.Recorder != nil {
		if err := s.Recorder.RecordRun(ctx, run); err != nil {
			logger.Warn("failed to record run", "task", run.Task, "run_id", run.ID, "error", err)
		}
	}
	if s.Metrics != nil {
		if err := s.Metrics.WriteRun(run); err != nil {
			logger.Warn("failed to write metrics", "task", run.Task, "run_id", run.ID, "error", err)
		}
	}
}

// ShortHostname returns the host name up to the first dot.
func ShortHostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
