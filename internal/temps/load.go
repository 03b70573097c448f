package temps

import (
	"regexp"
	"strings"
)

var loadAverage = regexp.MustCompile(`load average: ([\d.]+),`)

// LoadSummary condenses batch-mode top output into the one-minute load
// average followed by the process table header and the top five processes.
func LoadSummary(top string) string {
	lines := strings.Split(strings.TrimRight(top, "\n"), "\n")

	var sb strings.Builder
	if m := loadAverage.FindStringSubmatch(lines[0]); m != nil {
		sb.WriteString("\nCurrent load: " + m[1])
	} else {
		sb.WriteString(lines[0])
	}
	sb.WriteString("\n\nThe top 5 processes are:\n")
	if len(lines) > 6 {
		end := min(len(lines), 12)
		sb.WriteString(strings.Join(lines[6:end], "\n"))
	}
	return sb.String()
}
