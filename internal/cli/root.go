// Package cli wires configuration, logging and the optional sinks around the
// monitoring tasks and exposes them as cobra subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/clustermon/internal/config"
	"github.com/MikeSquared-Agency/clustermon/internal/hermes"
	"github.com/MikeSquared-Agency/clustermon/internal/mail"
	"github.com/MikeSquared-Agency/clustermon/internal/metrics"
	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/runner"
	"github.com/MikeSquared-Agency/clustermon/internal/slack"
	"github.com/MikeSquared-Agency/clustermon/internal/store"
)

type app struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
	now        func() time.Time

	newRunner   func(cfg config.Config, logger *slog.Logger) runner.Runner
	newNotifier func(cfg config.Config, host string, logger *slog.Logger) mail.Notifier
	openSinks   func(ctx context.Context, cfg config.Config, logger *slog.Logger) (monitor.Sinks, func())
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
		newRunner: func(cfg config.Config, logger *slog.Logger) runner.Runner {
			return runner.NewExec(cfg.CommandTimeout, logger)
		},
		newNotifier: func(cfg config.Config, host string, logger *slog.Logger) mail.Notifier {
			return mail.NewSMTP(cfg.Mail.Relay, host, logger)
		},
		openSinks: openSinks,
	}
}

// Execute runs clustermon with args and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return newApp(stdout, stderr).execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.stderr, "clustermon: %v\n", err)
		return monitor.ExitCode(err)
	}
	return monitor.ExitOK
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "clustermon",
		Short: "Cluster health checks for cron",
		Long: `clustermon runs the cluster's periodic health checks: MegaRAID log
alerts, compute node status and CPU temperatures. Each subcommand performs a
single run and mails root when something needs attention.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = setupLogging(cfg.LogLevel, a.stderr)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "config file")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%v: %w", err, monitor.ErrInvalidArgument)
	})

	root.AddCommand(
		a.msmCommand(),
		a.nodesCommand(),
		a.tempsCommand(),
		a.serveCommand(),
		a.migrateCommand(),
	)
	return root
}

func (a *app) host() string {
	if a.cfg.Host != "" {
		return a.cfg.Host
	}
	return monitor.ShortHostname()
}

// outcome is what a task reports back for its run record.
type outcome struct {
	alertLines   int
	notified     bool
	alert        *monitor.Alert
	measurements map[string]float64
}

// runTask executes fn as one recorded run of task and reports it to the
// configured sinks whatever the result.
func (a *app) runTask(ctx context.Context, task string, fn func(context.Context) (outcome, error)) error {
	run := monitor.NewRun(task, a.host(), a.now())
	logger := a.logger.With("task", task, "run_id", run.ID)

	out, err := fn(ctx)
	run.AlertLines = out.alertLines
	run.Notified = out.notified
	run.Measurements = out.measurements
	run.Finish(a.now(), err)

	if err != nil {
		logger.Error("run failed", "error", err)
	} else {
		logger.Info("run finished", "alert_lines", run.AlertLines, "notified", run.Notified)
	}

	sinks, closeSinks := a.openSinks(ctx, a.cfg, logger)
	defer closeSinks()
	sinks.Report(context.WithoutCancel(ctx), run, out.alert)
	return err
}

// openSinks connects the optional sinks that are configured. A sink that
// cannot be reached is logged and left out.
func openSinks(ctx context.Context, cfg config.Config, logger *slog.Logger) (monitor.Sinks, func()) {
	sinks := monitor.Sinks{Logger: logger}
	var closers []func()

	if cfg.NATS.URL != "" {
		client, err := hermes.NewClient(cfg.NATS.URL, cfg.NATS.Token, logger)
		if err != nil {
			logger.Warn("alert publishing disabled", "error", err)
		} else {
			sinks.Publishers = append(sinks.Publishers, client)
			closers = append(closers, client.Close)
		}
	}
	if cfg.Slack.BotToken != "" && cfg.Slack.Channel != "" {
		sinks.Publishers = append(sinks.Publishers, slack.NewPoster(cfg.Slack.BotToken, cfg.Slack.Channel, logger))
	}
	if cfg.Database.URL != "" {
		db, err := store.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Warn("run history disabled", "error", err)
		} else {
			sinks.Recorder = db
			closers = append(closers, db.Close)
		}
	}
	if cfg.Metrics.TextfileDir != "" {
		sinks.Metrics = metrics.NewTextfile(cfg.Metrics.TextfileDir)
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func setupLogging(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	if w == nil {
		w = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
