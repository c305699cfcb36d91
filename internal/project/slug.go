package project

import (
	"strings"
	"unicode"
)

const slugMaxLen = 99

// Slugify lowercases the name, maps runs of non-alphanumeric characters to a
// single hyphen and truncates to slugMaxLen, leaving room for a collision
// suffix under the 100-char column limit.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // swallow leading separators

	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > slugMaxLen {
		slug = strings.TrimRight(slug[:slugMaxLen], "-")
	}
	return slug
}
