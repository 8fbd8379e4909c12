// Package normalize turns noisy source text into canonical titles, dates and
// locations.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	controlRune = regexp.MustCompile(`[\x{200B}-\x{200F}\x{FEFF}\x{00AD}]`)
)

// Fold lowercases s and strips diacritics so "Belém" and "belem" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// CleanText drops invalid UTF-8 and invisible runes, unescapes HTML entities
// and squeezes whitespace. Bytes that are not UTF-8 would otherwise count as
// characters toward the title minimum and be refused by Postgres on insert.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = controlRune.ReplaceAllString(s, "")
	s = norm.NFC.String(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Lines splits a description into trimmed, non-empty, cleaned lines.
func Lines(s string) []string {
	s = html.UnescapeString(s)
	raw := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = CleanText(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// RuneLen counts characters rather than bytes.
func RuneLen(s string) int {
	return len([]rune(s))
}

var connectors = map[string]struct{}{
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {}, "e": {}, "com": {},
	"no": {}, "na": {}, "nos": {}, "nas": {}, "em": {}, "para": {}, "pra": {},
	"at": {}, "in": {}, "the": {}, "and": {}, "with": {}, "@": {},
}

const trailingPunct = " \t-–—|:;,.!?/\\(['\"“”‘’…·•"

// TrimTrailing removes trailing punctuation and dangling connector words.
func TrimTrailing(s string) string {
	for {
		before := s
		s = strings.TrimRight(s, trailingPunct)
		if idx := strings.LastIndexByte(s, ' '); idx >= 0 {
			if _, ok := connectors[strings.ToLower(s[idx+1:])]; ok {
				s = s[:idx]
			}
		}
		if s == before {
			return strings.TrimLeft(s, " \t")
		}
	}
}

// TrimLeadingConnectors removes leading connector words and punctuation from
// a fragment such as "no Teatro Municipal".
func TrimLeadingConnectors(s string) string {
	s = strings.TrimLeft(s, " \t-–—|:;,.!@")
	for {
		idx := strings.IndexByte(s, ' ')
		if idx < 0 {
			return s
		}
		if _, ok := connectors[strings.ToLower(s[:idx])]; !ok {
			return s
		}
		s = strings.TrimLeft(s[idx+1:], " \t-–—|:;,.!@")
	}
}

// truncateWords cuts s to at most max runes without splitting a word.
func truncateWords(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	cut := string(r[:limit])
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return TrimTrailing(cut)
}

// Words folds text and collapses every run of non alphanumeric runes to a
// single space, so phrases can be matched on whole-word boundaries.
func Words(text string) string {
	return strings.Join(strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// ContainsPhrase reports whether the folded words of text contain phrase,
// which must already be in Words form.
func ContainsPhrase(words, phrase string) bool {
	if words == "" || phrase == "" {
		return false
	}
	return strings.Contains(" "+words+" ", " "+phrase+" ")
}
