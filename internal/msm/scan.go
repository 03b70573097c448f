package msm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

const DefaultTag = "MRMON"

// DefaultExclusions are MegaRAID monitor messages considered noise.
var DefaultExclusions = []string{"fan speed", "power state"}

// Matcher selects the MegaRAID monitor lines of one day.
type Matcher struct {
	Prefix  string   // Filter.Key()
	Tag     string   // must appear, case-sensitive
	Exclude []string // must not appear, case-insensitive
}

// Match reports whether line belongs to the alert batch.
func (m Matcher) Match(line string) bool {
	if !strings.HasPrefix(line, m.Prefix) {
		return false
	}
	if m.Tag != "" && !strings.Contains(line, m.Tag) {
		return false
	}
	lower := strings.ToLower(line)
	for _, ex := range m.Exclude {
		if ex != "" && strings.Contains(lower, strings.ToLower(ex)) {
			return false
		}
	}
	return true
}

// ScanLog returns the matching lines of the file at path in file order.
// Files ending in .gz are decompressed on the fly.
func ScanLog(path string, m Matcher) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open log %s: %w", path, monitor.ErrCommandFailure)
		}
		return nil, fmt.Errorf("open log: %v: %w", err, monitor.ErrFilesystem)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("open gzip log %s: %v: %w", path, err, monitor.ErrCommandFailure)
		}
		defer gz.Close()
		r = gz
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m.Match(line) {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %v: %w", err, monitor.ErrCommandFailure)
	}
	return lines, nil
}
