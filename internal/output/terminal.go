package output

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

const (
	fallbackWidth  = 80
	fallbackHeight = 24
)

// sizeFunc reports the current width and height of the display.
type sizeFunc func() (width, height int)

type fdWriter interface {
	Fd() uintptr
}

// terminalSize measures w when it is a terminal and falls back to 80x24 otherwise.
func terminalSize(w io.Writer) sizeFunc {
	f, ok := w.(fdWriter)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() (int, int) { return fallbackWidth, fallbackHeight }
	}
	fd := int(f.Fd())
	return func() (int, int) {
		width, height, err := term.GetSize(fd)
		if err != nil || width <= 0 || height <= 0 {
			return fallbackWidth, fallbackHeight
		}
		return width, height
	}
}

// progressBar renders current/total as a fixed-width bar followed by the percentage.
func progressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	total = max(total, 1)
	current = min(max(current, 0), total)
	percent := float64(current) / float64(total)
	filled := min(int(percent*float64(width)), width)
	bar := StyleSymbols["bullet"] + strings.Repeat(StyleSymbols["hline"], filled) + strings.Repeat(" ", width-filled) + StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// wrapText splits text into lines of at most width-indent runes.
func wrapText(text string, width, indent int) []string {
	limit := width - indent - 2
	if limit <= 10 {
		limit = fallbackWidth
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	lines := make([]string, 0, len(runes)/limit+1)
	for len(runes) > limit {
		lines = append(lines, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
