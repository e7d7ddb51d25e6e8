// Package sanitize normalizes user-supplied text: prompts sent to the
// generate endpoint and names of files written to disk.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var transliterations = map[rune]string{ //nolint:gochecknoglobals
	'ä': "ae", 'Ä': "Ae", 'ö': "oe", 'Ö': "Oe",
	'ü': "ue", 'Ü': "Ue", 'ß': "ss",
	'&': "and", '+': "plus", '@': "at",
}

// Prompt returns s in NFC form with surrounding space trimmed, runs of
// whitespace collapsed to one space and control characters dropped.
// Visually identical prompts therefore compare equal.
func Prompt(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder

	b.Grow(len(s))

	space := false

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
		case unicode.IsControl(r):
		default:
			if space {
				b.WriteByte(' ')

				space = false
			}

			b.WriteRune(r)
		}
	}

	return b.String()
}

// FileName turns name into a portable ASCII file name: umlauts and a few
// symbols are spelled out, other accents are stripped, anything left
// outside [A-Za-z0-9._-] becomes '_', and runs of '_' collapse.
func FileName(name string) string {
	var spelled strings.Builder

	for _, r := range name {
		if repl, ok := transliterations[r]; ok {
			spelled.WriteString(repl)
		} else {
			spelled.WriteRune(r)
		}
	}

	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	plain, _, err := transform.String(stripAccents, spelled.String())
	if err != nil {
		plain = spelled.String()
	}

	var b strings.Builder

	for _, r := range plain {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)),
			r == '.', r == '-':
			b.WriteRune(r)
		default:
			if !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
		}
	}

	return strings.Trim(b.String(), "_-.")
}
