// Package detector decides when a listing page must be re-fetched through the
// headless renderer.
package detector

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// DefaultMinVisibleText is the visible text, in characters, below which a
// page is treated as an unrendered application shell.
const DefaultMinVisibleText = 200

// Heuristic promotes listing pages that look like client-rendered shells.
type Heuristic struct {
	// MinVisibleText is the least body text a server-rendered listing has.
	MinVisibleText int
}

// NewHeuristic creates a detector. A non-positive minVisibleText uses
// DefaultMinVisibleText.
func NewHeuristic(minVisibleText int) *Heuristic {
	if minVisibleText <= 0 {
		minVisibleText = DefaultMinVisibleText
	}
	return &Heuristic{MinVisibleText: minVisibleText}
}

// Mount points of the frameworks ticketing sites are built with.
var shellSelectors = []string{
	"#__next",
	"#__nuxt",
	"#root:empty",
	"#app:empty",
	"[data-reactroot]",
	"[ng-version]",
	"[data-v-app]",
}

// Fragments of "enable JavaScript" notices, in Portuguese and English.
var noscriptNotices = []string{
	"javascript",
	"habilite",
	"ative o",
}

// ShouldRender reports whether a plain fetch that matched matchedItems
// listing entries should be retried in a browser. Pages that already yielded
// items, error pages and rendered pages are never promoted.
func (h *Heuristic) ShouldRender(resp ingest.FetchResponse, matchedItems int) bool {
	if matchedItems > 0 || resp.Rendered || resp.StatusCode != 200 {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}
	if doc.Find(strings.Join(shellSelectors, ", ")).Length() > 0 {
		return true
	}
	if asksForJavaScript(doc) {
		return true
	}
	return doc.Find("script").Length() > 0 && visibleTextLen(doc) < h.MinVisibleText
}

func asksForJavaScript(doc *goquery.Document) bool {
	found := false
	doc.Find("noscript").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(s.Text())
		for _, notice := range noscriptNotices {
			if strings.Contains(text, notice) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// visibleTextLen counts body characters outside script, style and noscript.
func visibleTextLen(doc *goquery.Document) int {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, template").Remove()
	return utf8.RuneCountInString(strings.Join(strings.Fields(body.Text()), " "))
}
