package slug

import (
	"regexp"
	"strings"
)

// MaxLen bounds a slug so it stays a reasonable file-name segment.
const MaxLen = 32

var nonAlphaNum = regexp.MustCompile(`[^a-z0-9]+`)

// Make lowercases input and collapses every run of other characters to a single dash.
// An input with nothing left becomes fallback.
func Make(input, fallback string) string {
	s := nonAlphaNum.ReplaceAllString(strings.ToLower(input), "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxLen {
		s = strings.TrimRight(s[:MaxLen], "-")
	}
	if s == "" {
		return fallback
	}
	return s
}
