// Package dedupe decides whether a candidate event was already accepted, by
// exact source URL or by fuzzy title similarity.
package dedupe

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/event-ingestor/internal/normalize"
)

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity is 1 - distance/longer length over case and accent folded,
// trimmed titles. Two empty titles are identical.
func Similarity(a, b string) float64 {
	fa, fb := Key(a), Key(b)
	longest := max(len([]rune(fa)), len([]rune(fb)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(fa, fb))/float64(longest)
}

// Key is the comparison form of a title.
func Key(title string) string {
	return normalize.Fold(normalize.CleanText(title))
}

// CanonicalURL normalizes a source URL for exact matching: lowercase scheme
// and host, no fragment, no trailing slash.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	return u.String()
}
