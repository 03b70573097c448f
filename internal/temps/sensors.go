package temps

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// "Core 0:        +42.0°C  (high = +80.0°C, crit = +100.0°C)"
var sensorLine = regexp.MustCompile(`^(.*:)\s+\+([0-9.]+)`)

// Reading is one temperature reported by lm-sensors.
type Reading struct {
	Label   string // including the trailing colon, e.g. "Core 0:"
	Celsius float64
}

// ParseSensors extracts the temperature readings from `sensors` output in
// the order they appear.
func ParseSensors(output string) []Reading {
	var readings []Reading
	for _, line := range strings.Split(output, "\n") {
		m := sensorLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		readings = append(readings, Reading{Label: m[1], Celsius: v})
	}
	return readings
}

// HotReadings returns the readings strictly above limit.
func HotReadings(readings []Reading, limit float64) []Reading {
	var hot []Reading
	for _, r := range readings {
		if r.Celsius > limit {
			hot = append(hot, r)
		}
	}
	return hot
}

// FormatHot renders one "<label> <temp> dg C" line per reading.
func FormatHot(hot []Reading) string {
	var sb strings.Builder
	for _, r := range hot {
		fmt.Fprintf(&sb, "%s %.1f dg C\n", r.Label, r.Celsius)
	}
	return sb.String()
}
