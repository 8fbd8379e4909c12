package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultEventTime is used when no time of day can be extracted.
const DefaultEventTime = "19:00:00"

var (
	isoDatePattern     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})`)
	slashDatePattern   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	dashDatePattern    = regexp.MustCompile(`\b(\d{1,2})[-.](\d{1,2})[-.](\d{4})\b`)
	ptPhrasePattern    = regexp.MustCompile(`\b(\d{1,2})(?:º|°|o)?\s*(?:de\s+)?([a-z]{3,9})\.?(?:\s*(?:de\s+|,\s*)?(\d{4}))?`)
	enPhrasePattern    = regexp.MustCompile(`\b([a-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	isoTimePattern     = regexp.MustCompile(`\dT(\d{2}):(\d{2})`)
	timeAsPattern      = regexp.MustCompile(`(?i)(?:às|as|a partir das|from|at)\s*(\d{1,2})\s*(?::|h)\s*(\d{2})?`)
	timeHourPattern    = regexp.MustCompile(`\b(\d{1,2})h(\d{2})?\b`)
	timeClockPattern   = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	monthsByName       = map[string]time.Month{}
	monthsByShortName  = map[string]time.Month{}
	englishMonthsShort = map[string]time.Month{}
)

func init() {
	pt := []string{
		"janeiro", "fevereiro", "marco", "abril", "maio", "junho",
		"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
	}
	en := []string{
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
	}
	for i, name := range pt {
		m := time.Month(i + 1)
		monthsByName[name] = m
		monthsByShortName[name[:3]] = m
	}
	for i, name := range en {
		m := time.Month(i + 1)
		englishMonthsShort[name[:3]] = m
		englishMonthsShort[name] = m
	}
	englishMonthsShort["sept"] = time.September
}

// DateParser parses free-text dates relative to a reference clock.
type DateParser struct {
	now func() time.Time
	loc *time.Location
}

// NewDateParser builds a parser. A nil now defaults to time.Now and a nil
// location to UTC.
func NewDateParser(now func() time.Time, loc *time.Location) *DateParser {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DateParser{now: now, loc: loc}
}

// Today returns the current calendar date at midnight in the parser's location.
func (p *DateParser) Today() time.Time {
	n := p.now().In(p.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, p.loc)
}

// Fallback is the date assigned when nothing parses: one month from today.
func (p *DateParser) Fallback() time.Time {
	return p.Today().AddDate(0, 1, 0)
}

// ParseDate extracts a calendar date. ok is false when nothing parsed; the
// returned date is then the fallback, so callers never need to reject.
func (p *DateParser) ParseDate(raw string) (time.Time, bool) {
	text := Fold(CleanText(raw))
	if text == "" {
		return p.Fallback(), false
	}
	if d, ok := p.parseISO(text); ok {
		return d, true
	}
	if d, ok := p.parseNumeric(text, dashDatePattern); ok {
		return d, true
	}
	if d, ok := p.parseNumeric(text, slashDatePattern); ok {
		return d, true
	}
	if d, ok := p.parsePortuguese(text); ok {
		return d, true
	}
	if d, ok := p.parseEnglish(text); ok {
		return d, true
	}
	return p.Fallback(), false
}

func (p *DateParser) parseISO(text string) (time.Time, bool) {
	m := isoDatePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return p.build(atoi(m[1]), atoi(m[2]), atoi(m[3]))
}

func (p *DateParser) parseNumeric(text string, re *regexp.Regexp) (time.Time, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		day, month := atoi(m[1]), atoi(m[2])
		if m[3] == "" {
			if d, ok := p.inferYear(day, month); ok {
				return d, true
			}
			continue
		}
		year := atoi(m[3])
		if year < 100 {
			year += 2000
		}
		if d, ok := p.build(year, month, day); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func (p *DateParser) parsePortuguese(text string) (time.Time, bool) {
	for _, m := range ptPhrasePattern.FindAllStringSubmatch(text, -1) {
		month, ok := lookupMonth(m[2], monthsByName, monthsByShortName)
		if !ok {
			continue
		}
		day := atoi(m[1])
		if m[3] != "" {
			if d, ok := p.build(atoi(m[3]), int(month), day); ok {
				return d, true
			}
			continue
		}
		if d, ok := p.inferYear(day, int(month)); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func (p *DateParser) parseEnglish(text string) (time.Time, bool) {
	for _, m := range enPhrasePattern.FindAllStringSubmatch(text, -1) {
		month, ok := englishMonthsShort[m[1]]
		if !ok {
			continue
		}
		day := atoi(m[2])
		if m[3] != "" {
			if d, ok := p.build(atoi(m[3]), int(month), day); ok {
				return d, true
			}
			continue
		}
		if d, ok := p.inferYear(day, int(month)); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func lookupMonth(word string, full, short map[string]time.Month) (time.Month, bool) {
	if m, ok := full[word]; ok {
		return m, true
	}
	if len(word) == 3 {
		m, ok := short[word]
		return m, ok
	}
	return 0, false
}

// inferYear picks the next occurrence of day/month on or after today.
func (p *DateParser) inferYear(day, month int) (time.Time, bool) {
	today := p.Today()
	d, ok := p.build(today.Year(), month, day)
	if !ok {
		// 29 February in a non-leap year: try the following years.
		for y := today.Year() + 1; y <= today.Year()+4; y++ {
			if d, ok := p.build(y, month, day); ok {
				return d, true
			}
		}
		return time.Time{}, false
	}
	if d.Before(today) {
		return p.build(today.Year()+1, month, day)
	}
	return d, true
}

// build validates the calendar values; time.Date silently normalizes
// overflow such as 31/02, which must not parse.
func (p *DateParser) build(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 || year > 2200 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, p.loc)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

// ParseTime extracts a time of day formatted as HH:MM:SS, trying each text
// in order. It falls back to DefaultEventTime.
func ParseTime(texts ...string) string {
	for _, raw := range texts {
		text := CleanText(raw)
		if text == "" {
			continue
		}
		for _, re := range []*regexp.Regexp{isoTimePattern, timeAsPattern, timeHourPattern, timeClockPattern} {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				if t, ok := clockTime(m[1], m[2]); ok {
					return t
				}
			}
		}
	}
	return DefaultEventTime
}

func clockTime(hour, minute string) (string, bool) {
	h := atoi(hour)
	mi := 0
	if minute != "" {
		mi = atoi(minute)
	}
	if h < 0 || h > 23 || mi < 0 || mi > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d:00", h, mi), true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
