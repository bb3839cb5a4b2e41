package cli

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

// ANSI colors used by multi-relay output.
const (
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
)

// Palette holds the escape sequences for colored output. The zero value
// prints plain text.
type Palette struct {
	Name   string
	Header string
	Reset  string
}

// ColorPalette returns the colors for f: ANSI colors when f is a terminal
// and NO_COLOR is unset, plain otherwise.
func ColorPalette(f *os.File) Palette {
	if os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115 - fd fits in int
		return Palette{}
	}
	return Palette{Name: colorMagenta, Header: colorCyan, Reset: colorWhite}
}

// GetTerminalWidth returns the width of the terminal in columns.
// It tries the following methods in order:
// 1. The terminal size of stdout
// 2. COLUMNS environment variable
// 3. Default to 80 columns.
func GetTerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 { //nolint:gosec // G115 - fd fits in int
		return width
	}

	if width := getWidthFromEnv(); width > 0 {
		return width
	}

	return 80
}

// getWidthFromEnv reads the COLUMNS environment variable.
func getWidthFromEnv() int {
	if colStr := os.Getenv("COLUMNS"); colStr != "" {
		if width, err := strconv.Atoi(colStr); err == nil && width > 0 {
			return width
		}
	}
	return 0
}
