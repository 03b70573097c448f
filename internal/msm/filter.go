package msm

import (
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

var monthAbbrevs = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// MonthAbbrev returns the three letter name of month (1-12).
func MonthAbbrev(month int) (string, error) {
	if month < 1 || month > 12 {
		return "", fmt.Errorf("month %d out of range (1-12): %w", month, monitor.ErrInvalidArgument)
	}
	return monthAbbrevs[month-1], nil
}

// Filter is the calendar day a run looks at.
type Filter struct {
	Month   string // three letter abbreviation
	Day     int
	IsToday bool
}

// Key is the syslog timestamp prefix for the day, e.g. "Oct  4".
func (f Filter) Key() string {
	return fmt.Sprintf("%s %2d", f.Month, f.Day)
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %d", f.Month, f.Day)
}

// ResolveFilter turns the optional day and month arguments (zero means not
// given) into a concrete day. The month is only honoured together with a day;
// otherwise the current month applies. A missing day means today.
func ResolveFilter(day, month int, now time.Time) (Filter, error) {
	if day < 0 || day > 31 {
		return Filter{}, fmt.Errorf("day %d out of range (1-31): %w", day, monitor.ErrInvalidArgument)
	}
	if month < 0 || month > 12 {
		return Filter{}, fmt.Errorf("month %d out of range (1-12): %w", month, monitor.ErrInvalidArgument)
	}

	var (
		abbrev string
		err    error
	)
	if day != 0 && month != 0 {
		abbrev, err = MonthAbbrev(month)
		if err != nil {
			return Filter{}, err
		}
	} else {
		abbrev = monthAbbrevs[now.Month()-1]
	}
	if day == 0 {
		day = now.Day()
	}

	return Filter{
		Month:   abbrev,
		Day:     day,
		IsToday: abbrev == monthAbbrevs[now.Month()-1] && day == now.Day(),
	}, nil
}
