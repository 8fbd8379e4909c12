package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	cityStatePattern = regexp.MustCompile(`^\p{Lu}[\p{L}.'’ -]*?\s*[,/–—-]\s*\p{Lu}{2}\.?$`)
	statePattern     = regexp.MustCompile(`^\p{Lu}{2}$`)
	nameTokenPattern = regexp.MustCompile(`^\p{Lu}\p{Ll}+$`)
)

// Brazilian state names, state codes and capitals. Titles equal to any of
// these carry no information about the event itself.
var knownPlaces = buildSet(
	"brasil", "brazil",
	"acre", "alagoas", "amapa", "amazonas", "bahia", "ceara", "distrito federal",
	"espirito santo", "goias", "maranhao", "mato grosso", "mato grosso do sul",
	"minas gerais", "para", "paraiba", "parana", "pernambuco", "piaui",
	"rio de janeiro", "rio grande do norte", "rio grande do sul", "rondonia",
	"roraima", "santa catarina", "sao paulo", "sergipe", "tocantins",
	"rio branco", "maceio", "macapa", "manaus", "salvador", "fortaleza", "brasilia",
	"vitoria", "goiania", "sao luis", "cuiaba", "campo grande", "belo horizonte",
	"belem", "joao pessoa", "curitiba", "recife", "teresina", "natal",
	"porto alegre", "porto velho", "boa vista", "florianopolis", "aracaju", "palmas",
	"ji-parana", "ariquemes", "cacoal", "vilhena", "guajara-mirim", "campinas",
	"santos", "niteroi", "londrina", "joinville", "uberlandia",
)

// Words that make a two-token capitalized title an event rather than a name.
var eventNouns = buildSet(
	"show", "shows", "festa", "festival", "feira", "curso", "oficina", "workshop",
	"palestra", "congresso", "encontro", "teatro", "peca", "musical", "concerto",
	"rock", "samba", "forro", "pagode", "sertanejo", "jazz", "blues", "funk",
	"corrida", "maratona", "torneio", "campeonato", "copa", "baile", "balada",
	"exposicao", "mostra", "semana", "noite", "tarde", "luau", "live", "tour",
	"stand", "comedia", "seminario", "simposio", "summit", "meetup", "hackathon",
	"carnaval", "reveillon", "arraial", "quadrilha", "missa", "culto", "retiro",
)

func buildSet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// IsKnownPlace reports whether s is, after folding, a known state or city name.
func IsKnownPlace(s string) bool {
	_, ok := knownPlaces[Fold(s)]
	return ok
}

// IsBarePlace reports whether the title is only a place: "Belém, PA",
// "Porto Velho - RO", "SP" or a known city/state name.
func IsBarePlace(title string) bool {
	t := strings.TrimSpace(TrimTrailing(CleanText(title)))
	if t == "" {
		return false
	}
	if statePattern.MatchString(t) || IsKnownPlace(t) {
		return true
	}
	if !cityStatePattern.MatchString(t) {
		return false
	}
	return !containsEventNoun(t)
}

// IsBareName reports whether the title looks like a lone personal name such
// as "Maria Silva" or "João da Costa".
func IsBareName(title string) bool {
	tokens := strings.Fields(TrimTrailing(CleanText(title)))
	switch len(tokens) {
	case 2:
	case 3:
		if _, ok := connectors[strings.ToLower(tokens[1])]; !ok {
			return false
		}
		tokens = []string{tokens[0], tokens[2]}
	default:
		return false
	}
	for _, tok := range tokens {
		if !nameTokenPattern.MatchString(tok) {
			return false
		}
		if _, ok := eventNouns[Fold(tok)]; ok {
			return false
		}
	}
	return !IsKnownPlace(strings.Join(tokens, " "))
}

// IsBare reports whether the title is a bare place or a bare name.
func IsBare(title string) bool {
	return IsBarePlace(title) || IsBareName(title)
}

func containsEventNoun(s string) bool {
	for _, tok := range strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if _, ok := eventNouns[tok]; ok {
			return true
		}
	}
	return false
}
