package trapper

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugInvalid    = regexp.MustCompile(`[^\w\s-]`)
	slugSeparators = regexp.MustCompile(`[-\s]+`)
)

// asciiFold strips diacritics and drops remaining non-ASCII runes
var asciiFold = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// Slugify normalizes a name for use in canonical filenames and
// deployment identifiers: ASCII-folded, lowercased, punctuation
// stripped, whitespace and dash runs collapsed to single dashes.
func Slugify(value string) string {
	folded, _, err := transform.String(asciiFold, value)
	if err != nil {
		folded = value
	}

	folded = slugInvalid.ReplaceAllString(strings.ToLower(folded), "")
	folded = slugSeparators.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-_")
}
