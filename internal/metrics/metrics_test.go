package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveRecordAndRun(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(ingestRecordsTotal.WithLabelValues("sympla", "inserted"))
	ObserveRecord("sympla", "inserted")
	ObserveRecord("sympla", "inserted")
	if got := testutil.ToFloat64(ingestRecordsTotal.WithLabelValues("sympla", "inserted")); got != before+2 {
		t.Errorf("expected ingest_records_total to grow by 2, got %f -> %f", before, got)
	}

	ObserveRun("completed")
	if got := testutil.ToFloat64(ingestRunsTotal.WithLabelValues("completed")); got < 1 {
		t.Errorf("expected completed run counted, got %f", got)
	}

	SetSourceHealth("eventbrite", 40)
	if got := testutil.ToFloat64(ingestSourceHealthScore.WithLabelValues("eventbrite")); got != 40 {
		t.Errorf("expected health gauge 40, got %f", got)
	}

	IncActiveRuns()
	DecActiveRuns()
	if got := testutil.ToFloat64(ingestActiveRuns); got != 0 {
		t.Errorf("expected no active runs, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
