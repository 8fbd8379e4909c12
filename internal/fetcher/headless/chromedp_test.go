package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

func TestNewChromedpDefaultsAndSlots(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	require.Equal(t, defaultNavigationTimeout, fetcher.cfg.NavigationTimeout)
	require.Equal(t, defaultScrollPasses, fetcher.cfg.ScrollPasses)
	require.Equal(t, defaultSettleDelay, fetcher.cfg.SettleDelay)

	ctx := context.Background()
	require.NoError(t, fetcher.acquire(ctx))
	require.NoError(t, fetcher.acquire(ctx))
	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.Error(t, fetcher.acquire(blocked), "third tab must wait for a slot")
	fetcher.release()
	require.NoError(t, fetcher.acquire(ctx))
}

func TestScrollActions(t *testing.T) {
	t.Parallel()

	f := &Fetcher{cfg: Config{ScrollPasses: 3, SettleDelay: time.Millisecond}}
	require.Len(t, f.scrollActions(), 6)
	f.cfg.ScrollPasses = -1
	require.Empty(t, f.scrollActions())
}

func TestDocumentResponseKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn.example.com/app.js"},
	})
	doc.listen(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  203,
			URL:     "https://www.sympla.com.br/eventos/porto-velho-ro",
			Headers: network.Headers{"Content-Type": "text/html; charset=utf-8"},
		},
	})
	doc.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://ads.example.com/frame"},
	})

	status, headers, url := doc.result("https://req", "https://final")
	require.Equal(t, 203, status)
	require.Equal(t, "text/html; charset=utf-8", headers.Get("Content-Type"))
	require.Equal(t, "https://www.sympla.com.br/eventos/porto-velho-ro", url)
}

func TestDocumentResponseFallbacks(t *testing.T) {
	t.Parallel()

	status, headers, url := (&documentResponse{}).result("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, headers)
	require.Equal(t, "https://final", url)

	_, _, url = (&documentResponse{}).result("https://req", "")
	require.Equal(t, "https://req", url)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{"Accept-Language": {"pt-BR", "en"}})
	require.Equal(t, network.Headers{"Accept-Language": "pt-BR"}, got)
}

func TestNoopFetcherError(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), ingest.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, ingest.ErrFatal)
	require.ErrorIs(t, err, ErrRenderingDisabled)
}
