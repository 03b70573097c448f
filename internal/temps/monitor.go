// Package temps samples CPU package and core temperatures, keeps a daily CSV
// and plot of them, and mails an alert when a reading crosses the warning
// level.
package temps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MikeSquared-Agency/clustermon/internal/mail"
	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/runner"
)

const (
	DefaultDir       = "/var/log/temperature"
	DefaultCPUs      = 2
	DefaultCores     = 8
	DefaultWarnLevel = 63
)

type Config struct {
	CPUs      int
	Cores     int
	Dir       string
	WarnLevel float64
	Sensors   runner.Command
	Top       runner.Command

	Host      string
	Recipient string
	From      string
}

func DefaultConfig(host string) Config {
	return Config{
		CPUs:      DefaultCPUs,
		Cores:     DefaultCores,
		Dir:       DefaultDir,
		WarnLevel: DefaultWarnLevel,
		Sensors:   runner.Command{Name: "sensors"},
		Top:       runner.Command{Name: "top", Args: []string{"-b", "-n", "1"}},
		Host:      host,
		Recipient: mail.DefaultRecipient,
		From:      "system@" + host,
	}
}

// Subject is the alert subject for host.
func Subject(host string) string {
	return host + " overheating"
}

type Result struct {
	Readings []Reading
	Hot      []Reading
	CSVPath  string
	PlotPath string
	Notified bool
	Alert    *monitor.Alert

	// Measurements maps CSV column names to this run's readings.
	Measurements map[string]float64
}

// Monitor takes one temperature sample per Run.
type Monitor struct {
	cfg      Config
	runner   runner.Runner
	notifier mail.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewMonitor(cfg Config, r runner.Runner, n mail.Notifier, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{cfg: cfg, runner: r, notifier: n, now: time.Now, logger: logger}
}

// Run samples the sensors, appends the day's CSV, redraws the day's plot and
// mails the hot readings together with the current load. A plot failure does
// not prevent the alert; it is returned after notification.
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	if m.cfg.CPUs < 1 || m.cfg.Cores < 0 {
		return Result{}, fmt.Errorf("topology %d cpus x %d cores: %w", m.cfg.CPUs, m.cfg.Cores, monitor.ErrInvalidArgument)
	}
	now := m.now()

	if err := os.MkdirAll(m.cfg.Dir, 0o700); err != nil {
		return Result{}, fmt.Errorf("create output dir: %v: %w", err, monitor.ErrFilesystem)
	}

	output, err := m.runner.Run(ctx, m.cfg.Sensors)
	if err != nil {
		return Result{}, fmt.Errorf("read sensors: %w", err)
	}
	readings := ParseSensors(output)
	if len(readings) == 0 {
		return Result{}, fmt.Errorf("no temperatures in %s output: %w", m.cfg.Sensors.Name, monitor.ErrCommandFailure)
	}

	header := Header(m.cfg.CPUs, m.cfg.Cores)
	res := Result{
		Readings:     readings,
		CSVPath:      filepath.Join(m.cfg.Dir, "temp_"+now.Format("02012006")+".csv"),
		PlotPath:     filepath.Join(m.cfg.Dir, "core_temps_"+now.Format("2006_01_02")+".png"),
		Measurements: measurements(header, readings),
	}
	if len(readings) != len(header)-3 {
		m.logger.Warn("sensor count does not match topology",
			"readings", len(readings), "expected", len(header)-3)
	}

	if err := AppendSample(res.CSVPath, header, now, readings); err != nil {
		return res, fmt.Errorf("%v: %w", err, monitor.ErrFilesystem)
	}

	plotErr := m.plot(res.CSVPath, res.PlotPath, now)
	if plotErr != nil {
		m.logger.Error("failed to render plot", "path", res.PlotPath, "error", plotErr)
	}

	res.Hot = HotReadings(readings, m.cfg.WarnLevel)
	if len(res.Hot) == 0 {
		return res, plotErr
	}

	body := FormatHot(res.Hot) + m.loadSummary(ctx)
	msg := mail.Message{
		To:      m.cfg.Recipient,
		From:    m.cfg.From,
		Subject: Subject(m.cfg.Host),
		Body:    body,
	}
	if err := m.notifier.Notify(ctx, msg); err != nil {
		return res, errors.Join(plotErr, err)
	}
	res.Notified = true
	res.Alert = &monitor.Alert{
		Task:    monitor.TaskTemps,
		Host:    m.cfg.Host,
		Subject: msg.Subject,
		Lines:   hotLines(res.Hot),
		At:      now,
	}
	return res, plotErr
}

func (m *Monitor) plot(csvPath, pngPath string, day time.Time) error {
	samples, err := ReadSamples(csvPath)
	if err != nil {
		return fmt.Errorf("%v: %w", err, monitor.ErrFilesystem)
	}
	if err := RenderPlot(samples, m.cfg.CPUs, m.cfg.Cores, day, pngPath); err != nil {
		return fmt.Errorf("%v: %w", err, monitor.ErrFilesystem)
	}
	return nil
}

// loadSummary is best effort; the alert goes out even when top fails.
func (m *Monitor) loadSummary(ctx context.Context) string {
	if m.cfg.Top.Name == "" {
		return ""
	}
	out, err := m.runner.Run(ctx, m.cfg.Top)
	if err != nil {
		m.logger.Warn("failed to read load", "error", err)
		return "\nCurrent load: unavailable\n"
	}
	return LoadSummary(out)
}

func measurements(header []string, readings []Reading) map[string]float64 {
	out := make(map[string]float64, len(readings))
	for i, r := range readings {
		name := fmt.Sprintf("extra%d %s", i, r.Label)
		if col := i + 3; col < len(header) {
			name = header[col]
		}
		out[name] = r.Celsius
	}
	return out
}

func hotLines(hot []Reading) []string {
	lines := make([]string, len(hot))
	for i, r := range hot {
		lines[i] = fmt.Sprintf("%s %.1f dg C", r.Label, r.Celsius)
	}
	return lines
}
