// Package classify assigns a category, a regional flag and a quality score to
// normalized events.
package classify

import (
	"math"
	"regexp"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/normalize"
)

// Domain maps a category to the keywords that select it.
type Domain struct {
	Category ingest.Category
	Keywords []string
}

// DefaultDomains returns the keyword domains in precedence order. The first
// domain with a matching keyword wins.
func DefaultDomains() []Domain {
	return []Domain{
		{Category: ingest.CategoryMusic, Keywords: []string{
			"show", "shows", "banda", "musica", "cantor", "cantora", "dj", "rock", "samba",
			"pagode", "sertanejo", "forro", "mpb", "jazz", "blues", "funk", "rap", "hip hop",
			"reggae", "gospel", "concerto", "orquestra", "coral", "karaoke", "acustico",
			"live music", "concert",
		}},
		{Category: ingest.CategoryTheatre, Keywords: []string{
			"teatro", "peca", "espetaculo", "musical", "stand up", "comedia", "humor", "danca",
			"ballet", "bale", "opera", "circo", "monologo", "sarau", "poesia", "theatre", "theater",
		}},
		{Category: ingest.CategoryEducation, Keywords: []string{
			"workshop", "curso", "oficina", "palestra", "seminario", "simposio", "congresso",
			"aula", "treinamento", "capacitacao", "minicurso", "webinar", "masterclass",
			"formacao", "jornada academica", "semana academica", "mentoria",
		}},
		{Category: ingest.CategoryParty, Keywords: []string{
			"festa", "balada", "baile", "carnaval", "reveillon", "arraial", "luau", "happy hour",
			"resenha", "pool party", "open bar", "boate", "party", "after",
		}},
		{Category: ingest.CategorySports, Keywords: []string{
			"corrida", "maratona", "marathon", "meia maratona", "run", "caminhada", "ciclismo",
			"pedal", "futebol", "torneio", "campeonato", "copa", "volei", "basquete", "natacao",
			"triathlon", "jiu jitsu", "luta", "crossfit", "5k", "10k", "21k", "trilha", "skate",
			"surf", "esporte", "esportivo",
		}},
		{Category: ingest.CategoryBusiness, Keywords: []string{
			"feira", "expo", "negocios", "empreendedorismo", "networking", "startup", "summit",
			"meetup", "conferencia", "agronegocio", "hackathon", "business", "investimento",
			"marketing", "vendas", "lideranca",
		}},
	}
}

// Config carries the domains and the regional allow-list.
type Config struct {
	Domains        []Domain
	RegionalCities []string
}

// Input is what the classifier looks at for one event.
type Input struct {
	Title       string
	Description string
	City        string
	Venue       string
	Reliability float64
}

// Result is the classification of one event.
type Result struct {
	Category     ingest.Category
	IsRegional   bool
	QualityScore float64
}

type domain struct {
	category ingest.Category
	phrases  []string
}

// Classifier is safe for concurrent use; it holds only immutable tables.
type Classifier struct {
	domains  []domain
	regional map[string]struct{}
}

// New compiles the keyword tables.
func New(cfg Config) *Classifier {
	src := cfg.Domains
	if len(src) == 0 {
		src = DefaultDomains()
	}
	c := &Classifier{regional: make(map[string]struct{}, len(cfg.RegionalCities))}
	for _, d := range src {
		compiled := domain{category: d.Category}
		for _, kw := range d.Keywords {
			if w := normalize.Words(kw); w != "" {
				compiled.phrases = append(compiled.phrases, w)
			}
		}
		c.domains = append(c.domains, compiled)
	}
	for _, city := range cfg.RegionalCities {
		if f := normalize.Fold(city); f != "" {
			c.regional[f] = struct{}{}
		}
	}
	return c
}

// Classify assigns category, regional flag and quality score.
func (c *Classifier) Classify(in Input) Result {
	return Result{
		Category:     c.Category(in.Title, in.Description),
		IsRegional:   c.IsRegional(in.City),
		QualityScore: Score(in),
	}
}

// Category returns the first domain whose keywords appear in the title, then
// the description. Title matches take precedence so a passing mention in a
// long description does not override an explicit title.
func (c *Classifier) Category(title, description string) ingest.Category {
	for _, text := range []string{title, description} {
		words := normalize.Words(text)
		if words == "" {
			continue
		}
		for _, d := range c.domains {
			for _, p := range d.phrases {
				if normalize.ContainsPhrase(words, p) {
					return d.category
				}
			}
		}
	}
	return ingest.CategoryGeneral
}

// IsRegional reports whether city is on the regional allow-list.
func (c *Classifier) IsRegional(city string) bool {
	if city == "" {
		return false
	}
	_, ok := c.regional[normalize.Fold(city)]
	return ok
}

// Quality score weights. They sum to one.
const (
	weightDescription = 0.30
	weightVenue       = 0.20
	weightPrice       = 0.15
	weightOrganizer   = 0.15
	weightReliability = 0.20

	fullDescriptionLen = 200
)

var (
	pricePattern     = regexp.MustCompile(`(?i)(?:R\$\s*\d|\d+,\d{2}\s*reais|gratuit[oa]|gr[aá]tis|entrada franca|free entry|ingressos? a partir|valor:|lote\s+\d)`)
	organizerPattern = regexp.MustCompile(`(?i)(?:organiza[cç][aã]o|organizad[oa] por|realiza[cç][aã]o|produ[cç][aã]o|promovid[oa] por|apresenta[cç][aã]o|organizer|hosted by)`)
)

// Score is a ranking signal in [0,1]; it is never used to reject.
func Score(in Input) float64 {
	text := in.Title + "\n" + in.Description
	score := 0.0
	if n := normalize.RuneLen(in.Description); n > 0 {
		score += weightDescription * math.Min(float64(n)/fullDescriptionLen, 1)
	}
	if in.Venue != "" {
		score += weightVenue
	}
	if pricePattern.MatchString(text) {
		score += weightPrice
	}
	if organizerPattern.MatchString(text) {
		score += weightOrganizer
	}
	score += weightReliability * clamp(in.Reliability)
	return math.Round(clamp(score)*100) / 100
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
