package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule is one title truncation step. Cuts returns candidate byte offsets in
// title, in preference order; the first offset whose retained prefix is at
// least MinKeep characters long wins. Rules are pure and independent.
type Rule struct {
	Name    string
	MinKeep int
	// Venue marks rules whose discarded tail names the venue.
	Venue bool
	Cuts  func(title string) []int
}

// Apply runs the rule once. It reports the retained prefix, the discarded
// tail and whether the rule changed the title.
func (r Rule) Apply(title string) (kept, tail string, ok bool) {
	title = strings.TrimSpace(title)
	for _, idx := range r.Cuts(title) {
		if idx <= 0 || idx >= len(title) {
			continue
		}
		prefix := TrimTrailing(title[:idx])
		if RuneLen(prefix) < r.MinKeep || len(prefix) >= len(title) {
			continue
		}
		return prefix, TrimLeadingConnectors(strings.TrimSpace(title[idx:])), true
	}
	return title, "", false
}

// Truncation rule names.
const (
	RuleSeparator   = "separator"
	RuleCapsShift   = "caps_shift"
	RuleDia         = "dia_day"
	RuleCom         = "com_complement"
	RuleVenueWord   = "venue_keyword"
	RuleYearAcronym = "year_acronym"
	RuleRunTogether = "run_together"
)

var (
	separatorPattern = regexp.MustCompile(`\s*(?:\||!|–|—|\s-\s)`)
	diaPattern       = regexp.MustCompile(`(?i)\s+dia\s+\d{1,2}(?:\D|$)`)
	comPattern       = regexp.MustCompile(`\s+(?:com|COM|Com)\s+\p{Lu}`)
	venueWords       = `rua|r\.|avenida|av\.|travessa|pra[cç]a|igreja|par[oó]quia|catedral|clube|est[aá]dio|` +
		`arena|bar|boteco|pub|teatro|hotel|shopping|espa[cç]o|centro de conven[cç][oõ]es|` +
		`centro cultural|gin[aá]sio|audit[oó]rio|parque|casa de shows|sal[aã]o|chur?rascaria|restaurante`
	venuePattern = regexp.MustCompile(`(?i)(?:\s+(?:no|na|em|@|-|–))?\s+(?:` + venueWords + `)(?:[\s,.;:!]|$)`)
	// Acronym glued to the year, or a lone acronym token closing the title.
	yearGluedPattern = regexp.MustCompile(`(?:19|20)\d{2}\p{Lu}{2,}`)
	yearTailPattern  = regexp.MustCompile(`(?:19|20)\d{2}[\s.,:;–-]+\d*\p{Lu}[\p{Lu}\d]{0,5}[\s.,;:!]*$`)
	venueShape       = regexp.MustCompile(`^\p{Lu}[\p{L}'’&.]*(?:\s+(?:(?:d[aeo]s?|e|&)\s+)?\p{Lu}[\p{L}'’&.]*){0,5}$`)
)

// DefaultRules returns the truncation rules in application order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleSeparator, MinKeep: 10, Cuts: separatorCuts},
		{Name: RuleCapsShift, MinKeep: 8, Venue: true, Cuts: capsShiftCuts},
		{Name: RuleDia, MinKeep: 10, Cuts: patternCuts(diaPattern)},
		{Name: RuleCom, MinKeep: 12, Cuts: patternCuts(comPattern)},
		{Name: RuleVenueWord, MinKeep: 12, Venue: true, Cuts: patternCuts(venuePattern)},
		{Name: RuleYearAcronym, MinKeep: 10, Cuts: yearAcronymCuts},
		{Name: RuleRunTogether, MinKeep: 10, Venue: true, Cuts: runTogetherCuts},
	}
}

const maxRulePasses = 16

// Truncate applies rules until none changes the title. It returns the
// retained title, the first venue-shaped tail that was cut and the names of
// the rules that fired.
func Truncate(title string, rules []Rule) (string, string, []string) {
	kept := TrimTrailing(CleanText(title))
	venue := ""
	var fired []string
	for range maxRulePasses {
		changed := false
		for _, rule := range rules {
			next, tail, ok := rule.Apply(kept)
			if !ok {
				continue
			}
			if rule.Venue && venue == "" {
				venue = TrimTrailing(tail)
			}
			kept = next
			fired = append(fired, rule.Name)
			changed = true
			break
		}
		if !changed {
			break
		}
	}
	return kept, venue, fired
}

func patternCuts(re *regexp.Regexp) func(string) []int {
	return func(title string) []int {
		matches := re.FindAllStringIndex(title, -1)
		out := make([]int, 0, len(matches))
		for _, m := range matches {
			out = append(out, m[0])
		}
		return out
	}
}

func separatorCuts(title string) []int {
	return patternCuts(separatorPattern)(title)
}

// capsShiftCuts finds where an all-caps run gives way to mixed-case text,
// either glued ("ASSISSeu") or at a word boundary ("RIO Palco Mundo").
func capsShiftCuts(title string) []int {
	rs := []rune(title)
	var out []int
	upperSeen := 0
	offset := 0
	for i, r := range rs {
		if i > 0 && i+1 < len(rs) && unicode.IsUpper(r) && unicode.IsLower(rs[i+1]) && upperSeen >= 3 {
			prev := rs[i-1]
			if unicode.IsUpper(prev) || prev == ' ' {
				out = append(out, offset)
			}
		}
		if unicode.IsLower(r) {
			break
		}
		if unicode.IsUpper(r) {
			upperSeen++
		}
		offset += utf8.RuneLen(r)
	}
	return out
}

// yearAcronymCuts cuts right after a four-digit year that is followed by an
// uppercase acronym, keeping the year.
func yearAcronymCuts(title string) []int {
	var out []int
	for _, m := range yearGluedPattern.FindAllStringIndex(title, -1) {
		out = append(out, m[0]+4)
	}
	if m := yearTailPattern.FindStringIndex(title); m != nil {
		out = append(out, m[0]+4)
	}
	return out
}

// runTogetherCuts finds a lowercase letter immediately followed by an
// uppercase one ("LuaBar do Zé") whose tail looks like a venue name.
func runTogetherCuts(title string) []int {
	var out []int
	var prev rune
	for idx, r := range title {
		if idx > 0 && unicode.IsLower(prev) && unicode.IsUpper(r) {
			tail := strings.TrimSpace(title[idx:])
			if venueShape.MatchString(tail) || venuePattern.MatchString(" "+tail) {
				out = append(out, idx)
			}
		}
		prev = r
	}
	return out
}

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:ingressos?|inscri[cç][oõ]es|tickets?)\s*(?:para|pro|-|:)\s+`),
	regexp.MustCompile(`(?i)^(?:evento|event)\s*[:-]\s+`),
	regexp.MustCompile(`(?i)\s*[-|]\s*(?:sympla|eventbrite|ingresse|blueticket|even3|shotgun)\s*$`),
	regexp.MustCompile(`(?i)\s*\((?:esgotado|sold out|cancelado|adiado)\)\s*$`),
}

// StripBoilerplate removes ticketing-site prefixes and suffixes.
func StripBoilerplate(title string) string {
	title = CleanText(title)
	for _, re := range boilerplatePatterns {
		title = re.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(title)
}
