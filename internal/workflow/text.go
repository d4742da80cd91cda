package workflow

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanContent NFC-normalizes post text and truncates it to maxRunes runes.
// maxRunes <= 0 disables truncation. Blank input yields nil.
func CleanContent(s string, maxRunes int) *string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return nil
	}
	if maxRunes > 0 {
		runes := []rune(s)
		if len(runes) > maxRunes {
			s = string(runes[:maxRunes])
		}
	}
	return &s
}
