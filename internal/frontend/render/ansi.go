// Package render formats ledger entries and session status as ANSI console text.
package render

import (
	"fmt"
	"strings"
)

// ANSI escape codes used by the console renderer.
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Cyan    = "\033[36m"
	Magenta = "\033[35m"
	White   = "\033[37m"

	BrightRed    = "\033[91m"
	BrightYellow = "\033[93m"
	BrightCyan   = "\033[96m"
	BrightWhite  = "\033[97m"
)

// Styler applies colour codes, or passes text through when colour is off.
type Styler struct {
	Enabled bool
}

// Colorize wraps text with color and Reset.
//
// Postcondition: Returns text unchanged when s is disabled or color is empty.
func (s Styler) Colorize(color, text string) string {
	if !s.Enabled || color == "" {
		return text
	}
	return color + text + Reset
}

// Colorf formats args with format and wraps the result with color.
func (s Styler) Colorf(color, format string, args ...interface{}) string {
	return s.Colorize(color, fmt.Sprintf(format, args...))
}

// StripANSI removes every ESC[...m sequence from s.
//
// Postcondition: The result never contains a complete escape sequence.
func StripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			if end := strings.IndexByte(s[i+2:], 'm'); end >= 0 {
				i += end + 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
