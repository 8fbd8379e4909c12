package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

func TestCategory(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	tests := []struct {
		title       string
		description string
		want        ingest.Category
	}{
		{"2ª PVH CITY HALF MARATHON 2025", "", ingest.CategorySports},
		{"Noite do Samba", "", ingest.CategoryMusic},
		{"Stand Up Comedy com Fulano", "", ingest.CategoryTheatre},
		{"Workshop de Fotografia", "", ingest.CategoryEducation},
		{"RESENHA DO ASSIS", "", ingest.CategoryParty},
		{"Feira do Empreendedor", "", ingest.CategoryBusiness},
		{"Encontro Anual de Egressos", "Palestra sobre carreira e mercado", ingest.CategoryEducation},
		{"Encontro Anual de Egressos", "", ingest.CategoryGeneral},
		{"Showroom de Decoração", "", ingest.CategoryGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Category(tt.title, tt.description), tt.title)
	}
}

func TestIsRegional(t *testing.T) {
	t.Parallel()

	c := New(Config{RegionalCities: []string{"Porto Velho", "Ji-Paraná"}})
	require.True(t, c.IsRegional("PORTO VELHO"))
	require.True(t, c.IsRegional("ji-parana"))
	require.False(t, c.IsRegional("Manaus"))
	require.False(t, c.IsRegional(""))
}

func TestScore(t *testing.T) {
	t.Parallel()

	require.Zero(t, Score(Input{}))

	full := Input{
		Title:       "Festival de Jazz",
		Description: strings.Repeat("a", 250) + "\nIngressos R$ 50\nRealização: Prefeitura",
		Venue:       "Teatro Municipal",
		Reliability: 1,
	}
	require.InDelta(t, 1.0, Score(full), 1e-9)

	half := Input{Description: strings.Repeat("a", 100), Reliability: 0.5}
	require.InDelta(t, 0.25, Score(half), 1e-9)

	require.InDelta(t, 0.2, Score(Input{Reliability: 7}), 1e-9)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	c := New(Config{RegionalCities: []string{"Porto Velho"}})
	res := c.Classify(Input{Title: "2ª PVH CITY HALF MARATHON 2025", City: "Porto Velho", Venue: "Parque da Cidade"})
	require.Equal(t, ingest.CategorySports, res.Category)
	require.True(t, res.IsRegional)
	require.InDelta(t, 0.2, res.QualityScore, 1e-9)
}
