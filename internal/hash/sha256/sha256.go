// Package sha256 fingerprints normalized events for the content_hash column.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"
	"time"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// fieldSep keeps "ab"+"c" and "a"+"bc" from hashing alike.
const fieldSep = "\x1f"

// Hasher implements ingest.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// HashEvent digests the fields that identify what an event is and where it
// happens. Title and location are compared case-insensitively and with
// collapsed whitespace, so a re-scrape with cosmetic changes keeps its hash.
// Description, image and scores are left out on purpose.
func (h *Hasher) HashEvent(event ingest.NormalizedEvent) (string, error) {
	d := sha256.New()
	fields := []string{
		canonical(event.Title),
		event.Date.Format(time.DateOnly),
		event.Time,
		canonical(event.Location),
		strings.TrimSpace(event.SourceURL),
	}
	if err := writeFields(d, fields); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

func writeFields(d hash.Hash, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if _, err := io.WriteString(d, fieldSep); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(d, f); err != nil {
			return err
		}
	}
	return nil
}

func canonical(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
