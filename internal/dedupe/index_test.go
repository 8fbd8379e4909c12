package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

type fakeLookup struct {
	known map[string]bool
	err   error
	calls atomic.Int32
}

func (f *fakeLookup) ExistsBySourceURL(_ context.Context, sourceURL string) (bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return false, f.err
	}
	return f.known[sourceURL], nil
}

func event(title, url string) ingest.NormalizedEvent {
	return ingest.NormalizedEvent{Title: title, SourceURL: url}
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"ação", "acao", 2},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "%s/%s", tt.a, tt.b)
	}
}

func TestSimilarityFoldsCaseAndSpace(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, Similarity("Festival de Jazz", "  FESTIVAL DE JAZZ "), 1e-9)
	require.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	require.InDelta(t, 0.75, Similarity("Festival de Jazz", "Festival de Rock"), 1e-9)
}

func TestThresholdProperty(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"Festival de Inverno 2025", "Festival de Inverno 2026"},
		{"Festival de Jazz", "Festival de Rock"},
		{"RESENHA DO ASSIS", "Resenha do Assis!"},
		{"Corrida de Rua Porto Velho", "Corrida de Rua Ji-Paraná"},
		{"Noite do Samba", "Noite do Samba com Convidados"},
		{"Workshop de Fotografia", "Workshop de Fotografia Digital"},
	}
	for i, p := range pairs {
		idx := NewIndex(Config{}, nil, zap.NewNop())
		ctx := context.Background()

		first, err := idx.Admit(ctx, event(p[0], fmt.Sprintf("https://example.com/%d/a", i)))
		require.NoError(t, err)
		require.False(t, first.Duplicate)

		second, err := idx.Admit(ctx, event(p[1], fmt.Sprintf("https://example.com/%d/b", i)))
		require.NoError(t, err)

		sim := Similarity(p[0], p[1])
		require.Equal(t, sim >= DefaultThreshold, second.Duplicate, "%q vs %q similarity %.3f", p[0], p[1], sim)
		if second.Duplicate {
			require.Equal(t, ReasonFuzzy, second.Reason)
			require.Equal(t, Key(p[0]), second.MatchedTitle)
		}
	}
}

func TestAdmitSameSourceURLTwice(t *testing.T) {
	t.Parallel()

	idx := NewIndex(Config{}, nil, nil)
	ctx := context.Background()

	v, err := idx.Admit(ctx, event("Festival de Inverno", "https://www.sympla.com.br/evento/123"))
	require.NoError(t, err)
	require.False(t, v.Duplicate)

	v, err = idx.Admit(ctx, event("Outro título qualquer", "https://WWW.SYMPLA.com.br/evento/123/#ingressos"))
	require.NoError(t, err)
	require.True(t, v.Duplicate)
	require.Equal(t, ReasonRunURL, v.Reason)
}

func TestAdmitConsultsStore(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{known: map[string]bool{"https://example.com/stored": true}}
	idx := NewIndex(Config{}, lookup, nil)

	v, err := idx.Admit(context.Background(), event("Festival de Inverno", "https://example.com/stored"))
	require.NoError(t, err)
	require.True(t, v.Duplicate)
	require.Equal(t, ReasonStoredURL, v.Reason)

	// The second sighting is answered from the run set.
	_, err = idx.Admit(context.Background(), event("Festival de Inverno", "https://example.com/stored"))
	require.NoError(t, err)
	require.EqualValues(t, 1, lookup.calls.Load())

	failing := NewIndex(Config{}, &fakeLookup{err: errors.New("db down")}, nil)
	_, err = failing.Admit(context.Background(), event("Festival de Inverno", "https://example.com/x"))
	require.ErrorContains(t, err, "db down")
	require.Zero(t, failing.Size())
}

func TestSeedCoversLookbackWindow(t *testing.T) {
	t.Parallel()

	idx := NewIndex(Config{}, nil, nil)
	idx.Seed([]string{"Festival de Inverno 2025", "  "})
	require.Equal(t, 1, idx.Size())

	v, err := idx.Admit(context.Background(), event("Festival de Inverno 2026", "https://example.com/new"))
	require.NoError(t, err)
	require.True(t, v.Duplicate)
	require.Equal(t, "festival de inverno 2025", v.MatchedTitle)
}

func TestPrefixBucketsLimitComparison(t *testing.T) {
	t.Parallel()

	idx := NewIndex(Config{Threshold: 0.9, PrefixLen: 3}, nil, nil)
	ctx := context.Background()

	_, err := idx.Admit(ctx, event("Festival de Jazz", "https://example.com/1"))
	require.NoError(t, err)
	v, err := idx.Admit(ctx, event("Xestival de Jazz", "https://example.com/2"))
	require.NoError(t, err)
	require.False(t, v.Duplicate)
	require.Equal(t, 2, idx.Size())
}

func TestConcurrentAdmitsFirstSeenWins(t *testing.T) {
	t.Parallel()

	idx := NewIndex(Config{}, nil, nil)
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := idx.Admit(context.Background(), event("Festival de Inverno", fmt.Sprintf("https://example.com/%d", i)))
			if err == nil && !v.Duplicate {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, admitted.Load())
}
