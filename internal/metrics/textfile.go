// Package metrics exports the outcome of each run as a node_exporter
// textfile, so cron tasks show up in Prometheus without a long-lived process.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

const namespace = "clustermon"

// Textfile writes <dir>/clustermon_<task>.prom after every run.
type Textfile struct {
	dir string
}

func NewTextfile(dir string) *Textfile {
	return &Textfile{dir: dir}
}

// Path returns the file a task's metrics are written to.
func (t *Textfile) Path(task string) string {
	return filepath.Join(t.dir, namespace+"_"+task+".prom")
}

// WriteRun replaces the task's textfile with the gauges for run. The file is
// renamed into place, so the collector never reads a partial write.
func (t *Textfile) WriteRun(run monitor.Run) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create textfile dir: %w", err)
	}

	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"task": run.Task, "host": run.Host}

	gauge := func(name, help string, v float64) error {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		g.Set(v)
		return reg.Register(g)
	}

	success := 0.0
	if run.Succeeded() {
		success = 1
	}
	notified := 0.0
	if run.Notified {
		notified = 1
	}

	for _, m := range []struct {
		name, help string
		v          float64
	}{
		{"last_run_timestamp_seconds", "Unix time the last run finished.", float64(run.FinishedAt.Unix())},
		{"last_run_duration_seconds", "Wall time of the last run.", run.FinishedAt.Sub(run.StartedAt).Seconds()},
		{"last_run_success", "Whether the last run completed without error.", success},
		{"alert_lines", "Lines included in the last alert.", float64(run.AlertLines)},
		{"notified", "Whether the last run sent an alert.", notified},
	} {
		if err := gauge(m.name, m.help, m.v); err != nil {
			return fmt.Errorf("register %s: %w", m.name, err)
		}
	}

	if len(run.Measurements) > 0 {
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "measurement",
			Help:        "Task specific readings from the last run, e.g. temperatures in celsius.",
			ConstLabels: labels,
		}, []string{"name"})
		for name, v := range run.Measurements {
			vec.WithLabelValues(name).Set(v)
		}
		if err := reg.Register(vec); err != nil {
			return fmt.Errorf("register measurement: %w", err)
		}
	}

	if err := prometheus.WriteToTextfile(t.Path(run.Task), reg); err != nil {
		return fmt.Errorf("write textfile: %w", err)
	}
	return nil
}
