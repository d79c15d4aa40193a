package api

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// combining accents of Latin letters; kana voicing marks are kept
func isLatinAccent(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
}

// slugify turns a lesson title into a download file name stem: accents are
// stripped, letters and digits kept, everything else collapsed to "-".
func slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isLatinAccent)), norm.NFC)
	s, _, err := transform.String(t, title)
	if err != nil {
		s = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if r := []rune(out); len(r) > 80 {
		out = strings.TrimRight(string(r[:80]), "-")
	}
	return out
}

// downloadName builds "<slug>-<track><ext>", falling back to the lesson id.
func downloadName(title, id, track, ext string) string {
	stem := slugify(title)
	if stem == "" {
		stem = id
	}
	return stem + "-" + track + ext
}
