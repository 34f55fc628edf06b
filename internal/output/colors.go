package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Worker    *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Title     *color.Color
	Rule      *color.Color
	Value     *color.Color
	Latency   *color.Color
	Dim       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	scheme := &ColorScheme{
		Worker:    color.New(color.FgCyan),
		Success:   color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Error:     color.New(color.FgRed, color.Bold),
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Value:     color.New(color.FgCyan),
		Latency:   color.New(color.FgBlue),
		Dim:       color.New(color.Faint),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
	// Color use is decided per console, not by the package-wide stdout check.
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Worker, s.Success, s.Warn, s.Error, s.Title,
		s.Rule, s.Value, s.Latency, s.Dim, s.Highlight,
	}
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return icon(color.FgGreen, "✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return icon(color.FgRed, "✗")
}

// WarningIcon returns a warning symbol with appropriate color
func WarningIcon(noColor bool) string {
	if noColor {
		return "⚠"
	}
	return icon(color.FgYellow, "⚠")
}

func icon(attr color.Attribute, symbol string) string {
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(symbol)
}
