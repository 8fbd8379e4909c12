package normalize

import (
	"regexp"
	"strings"
)

var (
	emCityPattern = regexp.MustCompile(`(?:^|[\s,(])(?:em|in)\s+(\p{Lu}[\p{L}'’.-]*(?:\s+(?:d[aeo]s?\s+)?\p{Lu}[\p{L}'’.-]*){0,3})`)
	ufSuffix      = regexp.MustCompile(`\s*[,/–—-]\s*\p{Lu}{2}\.?$`)
	postalCode    = regexp.MustCompile(`^\d{5}-?\d{3}$`)
	locationSplit = regexp.MustCompile(`\s*(?:,|\||\s-\s|–|—)\s*`)
)

// Location is the structured place of an event.
type Location struct {
	Venue string
	City  string
}

// String renders "Venue, City", dropping whichever part is empty.
func (l Location) String() string {
	switch {
	case l.Venue == "":
		return l.City
	case l.City == "" || strings.Contains(Fold(l.Venue), Fold(l.City)):
		return l.Venue
	default:
		return l.Venue + ", " + l.City
	}
}

// ExtractCity finds an explicit "em <Cidade>" phrase naming a known place,
// trying each text in order.
func ExtractCity(texts ...string) string {
	for _, raw := range texts {
		text := CleanText(raw)
		for _, m := range emCityPattern.FindAllStringSubmatch(text, -1) {
			if city := longestKnownPrefix(m[1]); city != "" {
				return city
			}
		}
	}
	return ""
}

// longestKnownPrefix returns the longest leading run of tokens in phrase
// that is a known place ("Porto Velho Shopping" yields "Porto Velho").
func longestKnownPrefix(phrase string) string {
	tokens := strings.Fields(strings.TrimRight(phrase, ".-"))
	for n := len(tokens); n > 0; n-- {
		candidate := strings.Join(tokens[:n], " ")
		if IsKnownPlace(candidate) {
			return candidate
		}
	}
	return ""
}

// cityFromRegion turns a source-provided region such as "Porto Velho - RO"
// into a city name. Bare state codes carry no city.
func cityFromRegion(region string) string {
	region = CleanText(region)
	if region == "" || statePattern.MatchString(region) {
		return ""
	}
	return strings.TrimSpace(ufSuffix.ReplaceAllString(region, ""))
}

// splitRawLocation separates a free-text location ("Teatro Municipal, Centro,
// Porto Velho - RO") into a venue head and a city tail.
func splitRawLocation(raw string) (venue, city string) {
	raw = CleanText(raw)
	if raw == "" {
		return "", ""
	}
	var parts []string
	for _, part := range locationSplit.Split(raw, -1) {
		part = TrimTrailing(part)
		if part == "" || statePattern.MatchString(part) || postalCode.MatchString(part) {
			continue
		}
		if f := Fold(part); f == "brasil" || f == "brazil" {
			continue
		}
		parts = append(parts, part)
	}
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		if IsKnownPlace(parts[0]) {
			return "", parts[0]
		}
		return parts[0], ""
	}
	last := parts[len(parts)-1]
	for i := len(parts) - 1; i > 0; i-- {
		if IsKnownPlace(parts[i]) {
			last = parts[i]
			break
		}
	}
	return parts[0], last
}

// LocationInput gathers every fragment the location builder may draw on.
type LocationInput struct {
	VenueHint   string
	Title       string
	Description string
	Region      string
	RawLocation string
	DefaultCity string
}

// BuildLocation picks the venue from the title residue or the raw location
// head, and the city from an explicit "em <Cidade>" phrase, the source
// region or the raw location tail, in that order. DefaultCity is used only
// when no other city is available.
func BuildLocation(in LocationInput) Location {
	rawVenue, rawCity := splitRawLocation(in.RawLocation)

	venue := TrimTrailing(CleanText(in.VenueHint))
	if venue == "" {
		venue = rawVenue
	}

	city := ExtractCity(in.Title, in.Description)
	if city == "" {
		city = cityFromRegion(in.Region)
	}
	if city == "" {
		city = rawCity
	}
	if city == "" {
		city = in.DefaultCity
	}
	if venue != "" && Fold(venue) == Fold(city) {
		venue = ""
	}
	return Location{Venue: venue, City: city}
}
