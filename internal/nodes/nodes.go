// Package nodes reports compute nodes that the cluster manager does not list
// as UP.
package nodes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clustermon/internal/mail"
	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/runner"
)

const (
	DefaultCmsh = "/cm/local/apps/cmd/bin/cmsh"
	Subject     = "server nodes down"

	statusCommand = "device status"
)

type Config struct {
	CmshPath  string
	Host      string
	Recipient string
	From      string
}

func DefaultConfig(host string) Config {
	return Config{
		CmshPath:  DefaultCmsh,
		Host:      host,
		Recipient: mail.DefaultRecipient,
		From:      "system@server",
	}
}

type Result struct {
	Problems []string
	Notified bool
	Alert    *monitor.Alert
}

// Checker polls cmsh for device status.
type Checker struct {
	cfg      Config
	runner   runner.Runner
	notifier mail.Notifier
	out      io.Writer
	now      func() time.Time
	logger   *slog.Logger
}

// NewChecker builds a Checker. Problem lines are echoed to out when it is not nil.
func NewChecker(cfg Config, r runner.Runner, n mail.Notifier, out io.Writer, logger *slog.Logger) *Checker {
	if cfg.CmshPath == "" {
		cfg.CmshPath = DefaultCmsh
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{cfg: cfg, runner: r, notifier: n, out: out, now: time.Now, logger: logger}
}

// Check runs "device status" through cmsh and mails every node line that is
// not UP.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	output, err := c.runner.Run(ctx, runner.Command{Name: c.cfg.CmshPath, Stdin: statusCommand + "\n"})
	if err != nil {
		return Result{}, fmt.Errorf("device status: %w", err)
	}

	problems := Problems(output)
	res := Result{Problems: problems}
	if len(problems) == 0 {
		c.logger.Debug("all nodes up")
		return res, nil
	}

	if c.out != nil {
		for _, p := range problems {
			fmt.Fprintln(c.out, p)
		}
	}
	c.logger.Info("nodes not up", "count", len(problems))

	msg := mail.Message{
		To:      c.cfg.Recipient,
		From:    c.cfg.From,
		Subject: Subject,
		Body:    strings.Join(problems, "\n") + "\n",
	}
	if err := c.notifier.Notify(ctx, msg); err != nil {
		return res, err
	}
	res.Notified = true
	res.Alert = &monitor.Alert{
		Task:    monitor.TaskNodes,
		Host:    c.cfg.Host,
		Subject: Subject,
		Lines:   problems,
		At:      c.now(),
	}
	return res, nil
}

// Problems returns the non-empty status lines that do not report UP. The
// echoed "device status" prompt line is ignored.
func Problems(output string) []string {
	var problems []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.Contains(line, statusCommand) {
			continue
		}
		if !strings.Contains(line, "UP") {
			problems = append(problems, line)
		}
	}
	return problems
}
