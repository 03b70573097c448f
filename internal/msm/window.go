package msm

import (
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

const (
	// syslog "Jan _2 15:04:05" prefix, always 15 characters.
	stampLayout = time.Stamp
	stampWidth  = len(time.Stamp)

	DefaultTolerance = 60 * time.Second
)

// UnparseablePolicy decides what happens to lines without a readable timestamp
// when a watermark is applied.
type UnparseablePolicy string

const (
	SkipUnparseable UnparseablePolicy = "skip"
	KeepUnparseable UnparseablePolicy = "keep"
)

// ParsePolicy validates a policy name. Empty selects SkipUnparseable.
func ParsePolicy(s string) (UnparseablePolicy, error) {
	switch UnparseablePolicy(s) {
	case "", SkipUnparseable:
		return SkipUnparseable, nil
	case KeepUnparseable:
		return KeepUnparseable, nil
	default:
		return "", fmt.Errorf("unparseable policy %q (want skip or keep): %w", s, monitor.ErrInvalidArgument)
	}
}

// WindowOptions parameterise SelectWindow. Year is the calendar year given to
// the year-less syslog timestamps; Location is the zone they are written in.
type WindowOptions struct {
	Year        int
	Location    *time.Location
	Tolerance   time.Duration
	Unparseable UnparseablePolicy
}

// WindowResult holds the lines kept by SelectWindow.
type WindowResult struct {
	Lines   []string
	Skipped int // unparseable lines dropped
}

// LineTime reads the syslog timestamp at the start of line.
func LineTime(line string, year int, loc *time.Location) (time.Time, error) {
	if len(line) < stampWidth {
		return time.Time{}, fmt.Errorf("line shorter than timestamp: %q", line)
	}
	if loc == nil {
		loc = time.Local
	}
	ts, err := time.ParseInLocation(stampLayout, line[:stampWidth], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return time.Date(year, ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, loc), nil
}

// SelectWindow keeps the lines logged at or after watermark minus the
// tolerance. A zero watermark means no previous run and returns lines as is.
func SelectWindow(lines []string, watermark time.Time, opts WindowOptions) WindowResult {
	if watermark.IsZero() {
		return WindowResult{Lines: lines}
	}

	tolerance := opts.Tolerance
	if tolerance < 0 {
		tolerance = 0
	}
	bound := watermark.Truncate(time.Second).Add(-tolerance)

	var res WindowResult
	for _, line := range lines {
		ts, err := LineTime(line, opts.Year, opts.Location)
		if err != nil {
			if opts.Unparseable == KeepUnparseable {
				res.Lines = append(res.Lines, line)
			} else {
				res.Skipped++
			}
			continue
		}
		if !ts.Before(bound) {
			res.Lines = append(res.Lines, line)
		}
	}
	return res
}
