package health

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/event-ingestor/internal/fetcher/colly"
	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

type probeAdapter struct {
	id     ingest.SourceID
	target ingest.ProbeTarget
}

func (a probeAdapter) ID() ingest.SourceID { return a.id }

func (a probeAdapter) ScrapeEvents(context.Context, ingest.Region, ingest.Filters) iter.Seq2[ingest.RawCandidate, error] {
	return func(func(ingest.RawCandidate, error) bool) {}
}

func (a probeAdapter) ProbeTarget() ingest.ProbeTarget { return a.target }

const listingPage = `<html><body>
<div class="event-list">
  <article class="event-card"><h3 class="event-title">Show</h3></article>
</div>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listingPage))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMonitorScoresMarkers(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	monitor := NewMonitor(collyfetcher.New(collyfetcher.Config{Timeout: time.Second}), Config{Floor: 60}, nil)

	results := monitor.Check(context.Background(), []ingest.Adapter{
		probeAdapter{id: "healthy", target: ingest.ProbeTarget{
			URL:     srv.URL + "/ok",
			Markers: []string{".event-list", ".event-card", ".event-title"},
		}},
		probeAdapter{id: "partial", target: ingest.ProbeTarget{
			URL:     srv.URL + "/ok",
			Markers: []string{".event-list", ".event-date"},
		}},
		probeAdapter{id: "down", target: ingest.ProbeTarget{
			URL:     srv.URL + "/down",
			Markers: []string{".event-list"},
		}},
	})
	require.Len(t, results, 3)

	require.Equal(t, ingest.SourceID("healthy"), results[0].SourceID)
	require.Equal(t, 100, results[0].Score)
	require.False(t, results[0].Degraded)
	require.True(t, results[0].Probed)

	require.Equal(t, 50, results[1].Score)
	require.True(t, results[1].Degraded)
	require.Contains(t, results[1].Detail, ".event-date")

	require.Equal(t, 0, results[2].Score)
	require.True(t, results[2].Degraded)
	require.Contains(t, results[2].Detail, "probe fetch failed")
}

func TestMonitorSkipsUnprobeableSources(t *testing.T) {
	t.Parallel()

	monitor := NewMonitor(collyfetcher.New(collyfetcher.Config{}), Config{}, nil)
	results := monitor.Check(context.Background(), []ingest.Adapter{
		probeAdapter{id: "no-url"},
	})
	require.Len(t, results, 1)
	require.False(t, results[0].Probed)
	require.False(t, results[0].Degraded)
	require.Equal(t, 100, results[0].Score)
}
