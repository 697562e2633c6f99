package layout

import (
	"strings"

	"qrticket/internal/fonts"
)

func measure(s string, size float64, bold bool) float64 {
	return fonts.Measure(s, size, bold)
}

// wrap breaks text on spaces into lines no wider than width. Words wider than
// a line are split by rune. When more than maxLines are needed the last kept
// line ends with an ellipsis.
func wrap(text string, size float64, bold bool, width float64, maxLines int) []string {
	var lines []string
	cur := ""

	flush := func() {
		lines = append(lines, cur)
		cur = ""
	}

	for _, word := range strings.Fields(text) {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if measure(candidate, size, bold) <= width {
			cur = candidate
			continue
		}
		if cur != "" {
			flush()
		}
		for measure(word, size, bold) > width {
			head, tail := splitToWidth(word, size, bold, width)
			lines = append(lines, head)
			word = tail
		}
		cur = word
	}
	if cur != "" {
		flush()
	}

	if len(lines) <= maxLines {
		return lines
	}

	lines = lines[:maxLines]
	lines[maxLines-1] = clip(lines[maxLines-1]+ellipsis, size, bold, width)
	return lines
}

// splitToWidth returns the longest rune prefix that fits width (at least one
// rune) and the remainder.
func splitToWidth(word string, size float64, bold bool, width float64) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && measure(string(runes[:n+1]), size, bold) <= width {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

// clip shortens s to fit width, replacing the removed tail with an ellipsis.
func clip(s string, size float64, bold bool, width float64) string {
	if measure(s, size, bold) <= width {
		return s
	}
	runes := []rune(strings.TrimSuffix(s, ellipsis))
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		out := strings.TrimRight(string(runes), " ") + ellipsis
		if measure(out, size, bold) <= width {
			return out
		}
	}
	return ellipsis
}
