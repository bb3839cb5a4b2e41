package cli

import (
	"os"
	"testing"
)

func TestGetTerminalWidth(t *testing.T) {
	t.Setenv("COLUMNS", "")

	width := GetTerminalWidth()
	if width <= 0 {
		t.Errorf("GetTerminalWidth() returned %d, expected positive number", width)
	}
}

func TestGetWidthFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected int
	}{
		{"valid width", "120", 120},
		{"small width", "40", 40},
		{"invalid value", "abc", 0},
		{"empty value", "", 0},
		{"zero", "0", 0},
		{"negative", "-1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COLUMNS", tt.envValue)

			got := getWidthFromEnv()
			if got != tt.expected {
				t.Errorf("getWidthFromEnv() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestColorPaletteNotTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	if p := ColorPalette(f); p != (Palette{}) {
		t.Errorf("Expected plain palette for a regular file, got %+v", p)
	}
}

func TestColorPaletteNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if p := ColorPalette(os.Stdout); p != (Palette{}) {
		t.Errorf("Expected plain palette with NO_COLOR set, got %+v", p)
	}
}
