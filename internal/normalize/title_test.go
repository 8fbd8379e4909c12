package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ruleByName(t *testing.T, name string) Rule {
	t.Helper()
	for _, r := range DefaultRules() {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("rule %q not found", name)
	return Rule{}
}

func TestRulesInIsolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule  string
		title string
		kept  string
		tail  string
	}{
		{RuleSeparator, "Festival de Inverno | Ingressos à venda", "Festival de Inverno", "Ingressos à venda"},
		{RuleCapsShift, "RESENHA DO ASSISSeu Geraldo Boteco", "RESENHA DO ASSIS", "Seu Geraldo Boteco"},
		{RuleDia, "Feijoada Beneficente dia 12 de outubro", "Feijoada Beneficente", "dia 12 de outubro"},
		{RuleCom, "Noite do Samba com Grupo Revelação", "Noite do Samba", "Grupo Revelação"},
		{RuleVenueWord, "Festa Junina Beneficente na Igreja Matriz", "Festa Junina Beneficente", "Igreja Matriz"},
		{RuleYearAcronym, "Congresso Nacional 2025UNIR", "Congresso Nacional 2025", "UNIR"},
		{RuleYearAcronym, "2ª PVH CITY HALF MARATHON 2025. 5K", "2ª PVH CITY HALF MARATHON 2025", "5K"},
		{RuleRunTogether, "Sarau de Poesia ContemporâneaBar do Zé", "Sarau de Poesia Contemporânea", "Bar do Zé"},
	}
	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.title, func(t *testing.T) {
			t.Parallel()
			kept, tail, ok := ruleByName(t, tt.rule).Apply(tt.title)
			require.True(t, ok)
			require.Equal(t, tt.kept, kept)
			require.Equal(t, tt.tail, TrimTrailing(tail))
		})
	}
}

func TestRuleRespectsMinimumKeep(t *testing.T) {
	t.Parallel()

	kept, _, ok := ruleByName(t, RuleSeparator).Apply("Show | Banda Legal Demais")
	require.False(t, ok)
	require.Equal(t, "Show | Banda Legal Demais", kept)

	_, _, ok = ruleByName(t, RuleCapsShift).Apply("DJ ALOK Ao Vivo")
	require.False(t, ok)
}

func TestTruncateScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
		venue string
		fired []string
	}{
		{
			name:  "caps run into venue",
			title: "RESENHA DO ASSISSeu Geraldo Boteco",
			want:  "RESENHA DO ASSIS",
			venue: "Seu Geraldo Boteco",
			fired: []string{RuleCapsShift},
		},
		{
			name:  "year followed by distance",
			title: "2ª PVH CITY HALF MARATHON 2025. 5K",
			want:  "2ª PVH CITY HALF MARATHON 2025",
			fired: []string{RuleYearAcronym},
		},
		{
			name:  "untouched",
			title: "Workshop de Fotografia Analógica",
			want:  "Workshop de Fotografia Analógica",
		},
		{
			name:  "trailing punctuation",
			title: "Encontro de Motociclistas -",
			want:  "Encontro de Motociclistas",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, venue, fired := Truncate(tt.title, DefaultRules())
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.venue, venue)
			require.Equal(t, tt.fired, fired)
		})
	}
}

func TestStripBoilerplate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Baile do Havaí", StripBoilerplate("Ingressos para Baile do Havaí - Sympla"))
	require.Equal(t, "Stand-up Comedy Night", StripBoilerplate("Stand-up Comedy Night (ESGOTADO)"))
	require.Equal(t, "Corrida &amp; Caminhada", StripBoilerplate("Corrida &amp;amp; Caminhada"))
}

func TestTrimTrailing(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Festa Julina", TrimTrailing("Festa Julina no"))
	require.Equal(t, "Festa Julina", TrimTrailing("Festa Julina - "))
	require.Equal(t, "Noite do Rock", TrimTrailing("Noite do Rock com ..."))
}
