package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/msm"
	"github.com/MikeSquared-Agency/clustermon/internal/nodes"
	"github.com/MikeSquared-Agency/clustermon/internal/runner"
	"github.com/MikeSquared-Agency/clustermon/internal/temps"
)

func (a *app) msmCommand() *cobra.Command {
	var (
		filename   string
		day, month int
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "msm",
		Short: "Mail new MegaRAID (MRMON) messages from the system log",
		Long: `Scan the system log for MegaRAID monitor messages of one day and mail
them to root. Without flags the check is incremental: only messages logged since
the previous run of today are reported.

Examples:
  clustermon msm
  clustermon msm -d 3 -m 10
  clustermon msm --all -f /var/log/messages-20261012.gz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			host := a.host()
			cfg := msm.DefaultConfig(host)
			cfg.Tag = a.cfg.MSM.Tag
			cfg.Exclude = a.cfg.MSM.Exclude
			cfg.Tolerance = a.cfg.MSM.Tolerance
			cfg.LockTimeout = a.cfg.MSM.LockTimeout
			cfg.Unparseable = a.cfg.MSM.Unparseable
			cfg.TouchOnEmpty = a.cfg.MSM.TouchOnEmpty
			cfg.TouchOnIncludeAll = a.cfg.MSM.TouchOnIncludeAll
			cfg.Recipient = a.cfg.Mail.Recipient

			if filename == "" {
				filename = a.cfg.MSM.LogPath
			}
			checker := msm.NewChecker(cfg, a.newNotifier(a.cfg, host, a.logger), a.logger)
			req := msm.Request{Path: filename, Day: day, Month: month, IncludeAll: all}

			return a.runTask(cmd.Context(), monitor.TaskMSM, func(ctx context.Context) (outcome, error) {
				res, err := checker.Check(ctx, req)
				return outcome{alertLines: len(res.Lines), notified: res.Notified, alert: res.Alert}, err
			})
		},
	}
	cmd.Flags().StringVarP(&filename, "filename", "f", "", "log file to scan (default from config, /var/log/messages)")
	cmd.Flags().IntVarP(&day, "day", "d", 0, "day of month to report (default today)")
	cmd.Flags().IntVarP(&month, "month", "m", 0, "month to report, used together with --day (default current)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "report every message of the day, not only new ones")
	return cmd
}

func (a *app) nodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "Mail compute nodes that cmsh does not report UP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			host := a.host()
			cfg := nodes.DefaultConfig(host)
			cfg.CmshPath = a.cfg.Nodes.CmshPath
			cfg.Recipient = a.cfg.Mail.Recipient

			checker := nodes.NewChecker(cfg, a.newRunner(a.cfg, a.logger), a.newNotifier(a.cfg, host, a.logger), a.stdout, a.logger)
			return a.runTask(cmd.Context(), monitor.TaskNodes, func(ctx context.Context) (outcome, error) {
				res, err := checker.Check(ctx)
				return outcome{alertLines: len(res.Problems), notified: res.Notified, alert: res.Alert}, err
			})
		},
	}
}

func (a *app) tempsCommand() *cobra.Command {
	var (
		cpus, cores int
		dir         string
		warnLevel   float64
	)
	cmd := &cobra.Command{
		Use:   "temps",
		Short: "Sample CPU temperatures, update the daily CSV and plot, alert when hot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			host := a.host()
			cfg := temps.DefaultConfig(host)
			cfg.CPUs = a.cfg.Temps.CPUs
			cfg.Cores = a.cfg.Temps.Cores
			cfg.Dir = a.cfg.Temps.Dir
			cfg.WarnLevel = a.cfg.Temps.WarnLevel
			cfg.Sensors = runner.Parse(a.cfg.Temps.SensorsCommand)
			cfg.Top = runner.Parse(a.cfg.Temps.TopCommand)
			cfg.Recipient = a.cfg.Mail.Recipient

			flags := cmd.Flags()
			if flags.Changed("cpus") {
				cfg.CPUs = cpus
			}
			if flags.Changed("cores") {
				cfg.Cores = cores
			}
			if flags.Changed("path") {
				cfg.Dir = dir
			}
			if flags.Changed("warn-level") {
				cfg.WarnLevel = warnLevel
			}
			if cfg.CPUs < 1 || cfg.Cores < 0 {
				return fmt.Errorf("--cpus must be at least 1 and --cores not negative: %w", monitor.ErrInvalidArgument)
			}

			m := temps.NewMonitor(cfg, a.newRunner(a.cfg, a.logger), a.newNotifier(a.cfg, host, a.logger), a.logger)
			return a.runTask(cmd.Context(), monitor.TaskTemps, func(ctx context.Context) (outcome, error) {
				res, err := m.Run(ctx)
				return outcome{
					alertLines:   len(res.Hot),
					notified:     res.Notified,
					alert:        res.Alert,
					measurements: res.Measurements,
				}, err
			})
		},
	}
	cmd.Flags().IntVarP(&cpus, "cpus", "C", temps.DefaultCPUs, "number of CPU packages")
	cmd.Flags().IntVarP(&cores, "cores", "c", temps.DefaultCores, "cores per CPU package")
	cmd.Flags().StringVarP(&dir, "path", "p", temps.DefaultDir, "directory for the CSV and plot")
	cmd.Flags().Float64VarP(&warnLevel, "warn-level", "w", temps.DefaultWarnLevel, "alert above this temperature in degrees C")
	return cmd
}
