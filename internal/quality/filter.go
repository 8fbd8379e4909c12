// Package quality rejects candidates that must never reach storage: records
// without a usable image, with disallowed content, or with a title that is
// too short or only names a place or a person.
package quality

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/normalize"
)

// DefaultDenylist covers explicit content, private gatherings and generic
// course/tour/advertising listings that are not public events.
var DefaultDenylist = []string{
	// explicit
	"conteudo adulto", "sexo", "erotico", "erotica", "nudes", "striptease", "casa de swing",
	// private gatherings
	"aniversario de", "cha de bebe", "cha de panela", "cha revelacao", "cha de fraldas",
	"casamento de", "festa particular", "evento privado", "confraternizacao da empresa",
	// generic courses, tours and ads
	"curso online", "curso ead", "curso gratuito online", "aula experimental gratis",
	"pacote de viagem", "pacotes de viagem", "excursao", "city tour", "passeio turistico",
	"compre agora", "vende se", "aluga se", "imovel", "emagrecer", "renda extra",
}

// DefaultPlaceholderMarkers match image URLs that are known stand-ins.
var DefaultPlaceholderMarkers = []string{
	"placeholder", "no-image", "noimage", "no_image", "sem-imagem", "semimagem",
	"default-image", "default_image", "default-event", "image-not-found", "spacer.gif",
	"blank.png", "blank.gif", "1x1.png", "pixel.gif", "logo-default",
}

// Config tunes the filter.
type Config struct {
	// RequireImages rejects candidates without an image. Placeholders are
	// rejected regardless.
	RequireImages bool
	Denylist      []string
	Placeholders  []string
	MinTitleLen   int
}

// Filter applies the quality and relevance rules.
type Filter struct {
	requireImages bool
	denylist      []string
	placeholders  []string
	minTitleLen   int
}

// New builds a Filter, falling back to the default term lists when the
// config leaves them empty.
func New(cfg Config) *Filter {
	f := &Filter{
		requireImages: cfg.RequireImages,
		minTitleLen:   cfg.MinTitleLen,
	}
	if f.minTitleLen <= 0 {
		f.minTitleLen = normalize.DefaultMinTitleLen
	}
	deny := cfg.Denylist
	if len(deny) == 0 {
		deny = DefaultDenylist
	}
	for _, term := range deny {
		if t := normalize.Words(term); t != "" {
			f.denylist = append(f.denylist, t)
		}
	}
	marks := cfg.Placeholders
	if len(marks) == 0 {
		marks = DefaultPlaceholderMarkers
	}
	for _, m := range marks {
		f.placeholders = append(f.placeholders, strings.ToLower(m))
	}
	return f
}

// Accept runs the checks that need only the raw candidate. It runs before
// normalization so obviously unusable records cost nothing further.
func (f *Filter) Accept(c ingest.RawCandidate) (bool, string) {
	if strings.TrimSpace(c.SourceURL) == "" {
		return false, ingest.ReasonMissingSourceURL
	}
	image := strings.TrimSpace(c.ImageURL)
	switch {
	case image == "":
		if f.requireImages {
			return false, ingest.ReasonMissingImage
		}
	case f.IsPlaceholder(image):
		return false, ingest.ReasonPlaceholderImage
	}
	if f.Denylisted(c.Title) || f.Denylisted(c.Description) {
		return false, ingest.ReasonDenylisted
	}
	return true, ""
}

// AcceptNormalized re-checks the title after normalization.
func (f *Filter) AcceptNormalized(fields normalize.Fields) (bool, string) {
	if normalize.RuneLen(fields.Title) < f.minTitleLen {
		return false, ingest.ReasonTitleTooShort
	}
	if normalize.IsBare(fields.Title) {
		return false, ingest.ReasonBareTitle
	}
	if f.Denylisted(fields.Title) {
		return false, ingest.ReasonDenylisted
	}
	return true, ""
}

// IsPlaceholder reports whether raw is a known stand-in image or not a
// fetchable http(s) URL at all.
func (f *Filter) IsPlaceholder(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return true
	}
	lower := strings.ToLower(u.Path + "?" + u.RawQuery)
	for _, m := range f.placeholders {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Denylisted reports whether text contains a denylisted term as whole words.
func (f *Filter) Denylisted(text string) bool {
	words := normalize.Words(text)
	for _, term := range f.denylist {
		if normalize.ContainsPhrase(words, term) {
			return true
		}
	}
	return false
}
