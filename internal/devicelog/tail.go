package devicelog

import (
	"os"
	"strings"
)

// Clamp bounds shared by the one-shot tail and the streamer.
const (
	MinLines = 10
	MaxLines = 200
)

// ClampLines clamps a requested line count to [MinLines, MaxLines].
func ClampLines(n int) int {
	if n < MinLines {
		return MinLines
	}
	if n > MaxLines {
		return MaxLines
	}
	return n
}

// TailFile reads the last maxLines lines of the log sink, newest last. A
// missing or unreadable sink yields an empty slice, never an error: the
// log file is best-effort diagnostics, not data.
func TailFile(path string, maxLines int) []string {
	if path == "" {
		return []string{}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return []string{}
	}

	lines := splitLines(string(b))
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines
}

func splitLines(content string) []string {
	raw := strings.FieldsFunc(content, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
