package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

// Command is an external program invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin string
}

// Shell wraps a pipeline string so it runs under /bin/sh.
func Shell(pipeline string) Command {
	return Command{Name: "/bin/sh", Args: []string{"-c", pipeline}}
}

// Fields splits a plain command line on whitespace. Quoting is not supported;
// use Shell for anything more involved.
func Fields(line string) Command {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}
	}
	return Command{Name: parts[0], Args: parts[1:]}
}

// Parse turns a configured command line into a Command. Lines with shell
// operators run through Shell, anything else through Fields.
func Parse(line string) Command {
	if strings.ContainsAny(line, "|&;<>$`*?") {
		return Shell(strings.TrimSpace(line))
	}
	return Fields(line)
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

var _ Runner = (*Exec)(nil)

// Exec runs commands as child processes.
type Exec struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExec builds an Exec. A zero timeout leaves the call bounded only by ctx.
func NewExec(timeout time.Duration, logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{timeout: timeout, logger: logger}
}

// Run starts cmd, waits for it and returns stdout. A non-zero exit status or
// empty output is reported as monitor.ErrCommandFailure.
func (e *Exec) Run(ctx context.Context, cmd Command) (string, error) {
	if cmd.Name == "" {
		return "", fmt.Errorf("empty command: %w", monitor.ErrCommandFailure)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	e.logger.Debug("command finished", "command", cmd.String(), "duration", time.Since(start), "error", err)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s: exit status %d: %s: %w",
				cmd.Name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()), monitor.ErrCommandFailure)
		}
		return "", fmt.Errorf("%s: %v: %w", cmd.Name, err, monitor.ErrCommandFailure)
	}
	if strings.TrimSpace(stdout.String()) == "" {
		return "", fmt.Errorf("%s: no output: %w", cmd.Name, monitor.ErrCommandFailure)
	}
	return stdout.String(), nil
}
