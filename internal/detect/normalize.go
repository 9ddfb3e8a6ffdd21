package detect

import (
	"strings"
	"unicode"
)

// bidi control characters that PDF producers sprinkle into Hebrew text
var bidiControls = map[rune]bool{
	'‎': true, '‏': true, // LRM, RLM
	'‪': true, '‫': true, '‬': true, '‭': true, '‮': true,
	'⁦': true, '⁧': true, '⁨': true, '⁩': true,
	'؜': true, // ALM
}

// normalizeText collapses whitespace, strips bidi control characters and
// unifies quote glyphs, so keyword matching sees one canonical form.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		if bidiControls[r] {
			continue
		}
		switch r {
		case '׳', '‘', '’', '`':
			r = '\''
		case '״', '“', '”', '„':
			r = '"'
		}
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

// hasHebrew reports whether the string contains at least one Hebrew letter.
func hasHebrew(s string) bool {
	for _, r := range s {
		if r >= 0x0590 && r <= 0x05ff {
			return true
		}
	}
	return false
}

// isUnderlineText reports whether the text, whitespace removed, consists
// solely of underscore/dash runs of at least minRun characters total.
func isUnderlineText(s string, minRun int) bool {
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '_', '-', '–', '—', '־':
			n++
		default:
			return false
		}
	}
	return n >= minRun
}
