package msm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/clustermon/internal/mail"
	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/watermark"
)

const (
	DefaultLogPath     = "/var/log/messages"
	DefaultLockTimeout = 30 * time.Second
	Subject            = "MegaRAID messages"
)

// Config holds the settings of the MegaRAID log check.
type Config struct {
	Tag         string
	Exclude     []string
	Tolerance   time.Duration
	LockTimeout time.Duration
	Unparseable UnparseablePolicy

	// TouchOnEmpty advances the watermark on a today-run that found nothing.
	TouchOnEmpty bool
	// TouchOnIncludeAll advances the watermark on a today-run with IncludeAll.
	TouchOnIncludeAll bool

	Host      string
	Recipient string
	From      string
}

// DefaultConfig mirrors the behaviour of the original cron script.
func DefaultConfig(host string) Config {
	return Config{
		Tag:               DefaultTag,
		Exclude:           append([]string(nil), DefaultExclusions...),
		Tolerance:         DefaultTolerance,
		LockTimeout:       DefaultLockTimeout,
		Unparseable:       SkipUnparseable,
		TouchOnEmpty:      true,
		TouchOnIncludeAll: true,
		Host:              host,
		Recipient:         mail.DefaultRecipient,
		From:              "system_" + host,
	}
}

// Request selects the file and day to check. Zero Day/Month mean today.
type Request struct {
	Path       string
	Day        int
	Month      int
	IncludeAll bool
}

// Result describes what a check found and did.
type Result struct {
	Filter   Filter
	Lines    []string
	Skipped  int
	Windowed bool
	Notified bool
	Touched  bool
	Alert    *monitor.Alert
}

// Checker runs the incremental MegaRAID log check.
type Checker struct {
	cfg      Config
	notifier mail.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewChecker(cfg Config, notifier mail.Notifier, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{cfg: cfg, notifier: notifier, now: time.Now, logger: logger}
}

// Check scans req.Path for the requested day's monitor messages and mails
// them. Runs for today only report lines newer than the watermark (unless
// IncludeAll is set) and advance the watermark afterwards.
func (c *Checker) Check(ctx context.Context, req Request) (Result, error) {
	now := c.now()
	filter, err := ResolveFilter(req.Day, req.Month, now)
	if err != nil {
		return Result{}, err
	}
	if req.Path == "" {
		req.Path = DefaultLogPath
	}
	res := Result{Filter: filter}
	sentinel := watermark.SentinelPath(req.Path)

	if filter.IsToday {
		lock, err := watermark.Acquire(ctx, sentinel, c.cfg.LockTimeout)
		if err != nil {
			return res, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				c.logger.Warn("failed to release watermark lock", "path", sentinel, "error", err)
			}
		}()
	}

	lines, err := ScanLog(req.Path, Matcher{Prefix: filter.Key(), Tag: c.cfg.Tag, Exclude: c.cfg.Exclude})
	if err != nil {
		return res, err
	}
	c.logger.Debug("log scanned", "path", req.Path, "day", filter.String(), "matches", len(lines))

	if filter.IsToday && !req.IncludeAll && len(lines) > 0 {
		mark, ok, err := watermark.Read(sentinel)
		if err != nil {
			return res, err
		}
		if ok {
			window := SelectWindow(lines, mark, WindowOptions{
				Year:        now.Year(),
				Location:    now.Location(),
				Tolerance:   c.cfg.Tolerance,
				Unparseable: c.cfg.Unparseable,
			})
			if window.Skipped > 0 {
				c.logger.Warn("skipped lines without timestamp", "path", req.Path, "count", window.Skipped)
			}
			lines = window.Lines
			res.Skipped = window.Skipped
			res.Windowed = true
		}
	}
	res.Lines = lines

	if len(lines) > 0 {
		msg := mail.Message{
			To:      c.cfg.Recipient,
			From:    c.cfg.From,
			Subject: Subject,
			Body:    formatBody(filter, lines),
		}
		if err := c.notifier.Notify(ctx, msg); err != nil {
			return res, err
		}
		res.Notified = true
		res.Alert = &monitor.Alert{
			Task:    monitor.TaskMSM,
			Host:    c.cfg.Host,
			Subject: msg.Subject,
			Lines:   lines,
			At:      now,
		}
	}

	if c.shouldTouch(filter, req, len(lines) == 0) {
		if err := watermark.Touch(sentinel, c.now()); err != nil {
			return res, err
		}
		res.Touched = true
	}
	return res, nil
}

func (c *Checker) shouldTouch(filter Filter, req Request, empty bool) bool {
	switch {
	case !filter.IsToday:
		return false
	case req.IncludeAll && !c.cfg.TouchOnIncludeAll:
		return false
	case empty && !c.cfg.TouchOnEmpty:
		return false
	default:
		return true
	}
}

func formatBody(filter Filter, lines []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Messages from MSM were found for %s:\n\n", filter)
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
