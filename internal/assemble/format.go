package assemble

import (
	"fmt"
	"strings"
)

// FormatTranscript renders the final utterance sequence as display lines,
// one "[HH:MM:SS] SPEAKER: text" line per utterance, newline-joined.
func FormatTranscript(utterances []Utterance) string {
	lines := make([]string, len(utterances))
	for i, u := range utterances {
		lines[i] = fmt.Sprintf("[%s] %s: %s", formatTimestamp(u.Start), u.Speaker, u.Text)
	}
	return strings.Join(lines, "\n")
}

// formatTimestamp converts seconds to HH:MM:SS, truncating (not rounding) to
// whole seconds. Hours are unbounded above 24. Negative inputs clamp to zero
// so a slightly-early aligner timestamp cannot produce "00:00:-1".
func formatTimestamp(totalSeconds float64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	total := int64(totalSeconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
