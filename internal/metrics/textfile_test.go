package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

func TestWriteRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "textfile")
	tf := NewTextfile(dir)

	started := time.Unix(1791979200, 0)
	run := monitor.NewRun(monitor.TaskTemps, "node01", started)
	run.AlertLines = 1
	run.Notified = true
	run.Measurements = map[string]float64{"cpu0": 45, "cpu0_c1": 70.5}
	run.Finish(started.Add(2*time.Second), nil)

	if err := tf.WriteRun(run); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	path := tf.Path(monitor.TaskTemps)
	if filepath.Base(path) != "clustermon_temps.prom" {
		t.Errorf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`clustermon_last_run_success{host="node01",task="temps"} 1`,
		`clustermon_last_run_duration_seconds{host="node01",task="temps"} 2`,
		`clustermon_last_run_timestamp_seconds{host="node01",task="temps"} 1.791979202e+09`,
		`clustermon_notified{host="node01",task="temps"} 1`,
		`clustermon_alert_lines{host="node01",task="temps"} 1`,
		`clustermon_measurement{host="node01",name="cpu0_c1",task="temps"} 70.5`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteRun_Failure(t *testing.T) {
	tf := NewTextfile(t.TempDir())

	run := monitor.NewRun(monitor.TaskNodes, "head01", time.Now())
	run.Finish(time.Now(), errors.New("cmsh: exit status 1"))

	if err := tf.WriteRun(run); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	data, err := os.ReadFile(tf.Path(monitor.TaskNodes))
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `clustermon_last_run_success{host="head01",task="nodes"} 0`) {
		t.Errorf("expected failed run gauge, got:\n%s", data)
	}
	if strings.Contains(string(data), "clustermon_measurement") {
		t.Error("no measurement family expected without readings")
	}
}
