package timecode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timePattern matches the elapsed-time token the media engine prints on
// its progress lines, e.g. "time=00:01:23.45".
var timePattern = regexp.MustCompile(`time=(\d{2,}):(\d{2}):(\d{2}(?:\.\d+)?)`)

// FormatMS renders a millisecond offset as HH:MM:SS.ff, the absolute
// timestamp form the engine expects for trim boundaries.
func FormatMS(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	cs := (ms % 1000) / 10
	return fmt.Sprintf("%02d:%02d:%02d.%02d", h, m, s, cs)
}

// ParseSeconds converts an HH:MM:SS[.ff] string to seconds.
func ParseSeconds(tc string) (float64, error) {
	parts := strings.Split(tc, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timecode %q", tc)
	}
	h, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", tc, err)
	}
	m, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", tc, err)
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", tc, err)
	}
	return h*3600 + m*60 + s, nil
}

// ExtractProgressSeconds scans one engine output line for a time= token
// and returns the elapsed encoded time in seconds. ok is false when the
// line carries no parseable token; such lines are ignored, not errors.
func ExtractProgressSeconds(line string) (float64, bool) {
	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.ParseFloat(m[1], 64)
	mi, _ := strconv.ParseFloat(m[2], 64)
	s, _ := strconv.ParseFloat(m[3], 64)
	return h*3600 + mi*60 + s, true
}
