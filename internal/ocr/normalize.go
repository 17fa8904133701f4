package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^\s*[_\-|]{3,}\s*$`)
	reFormFeed   = regexp.MustCompile(`\f`)
)

// Normalize collapses engine whitespace. Field crops are short, so line
// breaks fold into single spaces.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reFormFeed.ReplaceAllString(s, "")
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reTabs.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	s = strings.Join(kept, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
