package dedup

import (
	"regexp"
	"strings"

	"github.com/hbollon/go-edlib"
)

var nonWordChars = regexp.MustCompile(`[^\w\s]`)

// normalize lowercases, strips everything that is not a word character or
// whitespace, and trims. Comparison happens on this canonical form so
// punctuation and casing drift never count against a match.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWordChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Similarity scores two strings in [0,1] using normalized Levenshtein
// distance. Empty strings (after normalization) never match anything:
// an absent tag must not spuriously pair with every other absent tag.
func Similarity(a, b string) float64 {
	na := normalize(a)
	nb := normalize(b)

	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	dist := edlib.LevenshteinDistance(na, nb)

	la := len([]rune(na))
	lb := len([]rune(nb))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}

	return 1 - float64(dist)/float64(maxLen)
}
