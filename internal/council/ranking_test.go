package council

import (
	"fmt"
	"strings"
	"testing"

	"github.com/BaSui01/llmcouncil/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "numbered final ranking",
			text: "Response A is thin.\nResponse B is great.\n\nFINAL RANKING:\n1. Response B\n2. Response A\n3. Response C",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "numbered entries ignore evaluation text before marker",
			text: "I liked Response C best.\nFINAL RANKING:\n1.Response A\n2.  Response C",
			want: []string{"Response A", "Response C"},
		},
		{
			name: "unnumbered section falls back to bare labels",
			text: "FINAL RANKING:\nResponse C > Response A > Response B",
			want: []string{"Response C", "Response A", "Response B"},
		},
		{
			name: "no marker uses whole text",
			text: "Response B beats Response A.",
			want: []string{"Response B", "Response A"},
		},
		{
			name: "only the section up to a second marker counts",
			text: "FINAL RANKING:\n1. Response A\nFINAL RANKING:\n1. Response B",
			want: []string{"Response A"},
		},
		{
			name: "nothing to parse",
			text: "I refuse to rank.",
			want: []string{},
		},
		{
			name: "lowercase labels do not match",
			text: "FINAL RANKING:\n1. response a",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRanking(tt.text))
		})
	}
}

func TestAggregateRankings(t *testing.T) {
	labelToModel := map[string]string{
		"Response A": "openai/gpt-5.1",
		"Response B": "google/gemini-3-pro-preview",
		"Response C": "x-ai/grok-4",
	}
	stage2 := []types.StageTwoResult{
		{Model: "m1", ParsedRanking: []string{"Response B", "Response A", "Response C"}},
		{Model: "m2", ParsedRanking: []string{"Response B", "Response C", "Response A"}},
		{Model: "m3", ParsedRanking: []string{"Response A", "Response B", "Response Z"}},
	}

	got := AggregateRankings(stage2, labelToModel)
	require.Len(t, got, 3)

	assert.Equal(t, types.AggregateRanking{Model: "google/gemini-3-pro-preview", AverageRank: 1.33, RankingsCount: 3}, got[0])
	assert.Equal(t, types.AggregateRanking{Model: "openai/gpt-5.1", AverageRank: 2, RankingsCount: 3}, got[1])
	assert.Equal(t, types.AggregateRanking{Model: "x-ai/grok-4", AverageRank: 2.5, RankingsCount: 2}, got[2])
}

func TestAggregateRankings_TiesKeepFirstSeenOrder(t *testing.T) {
	labelToModel := map[string]string{"Response A": "a", "Response B": "b"}
	stage2 := []types.StageTwoResult{
		{ParsedRanking: []string{"Response B", "Response A"}},
		{ParsedRanking: []string{"Response A", "Response B"}},
	}

	got := AggregateRankings(stage2, labelToModel)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Model)
	assert.Equal(t, "a", got[1].Model)
	assert.Equal(t, 1.5, got[0].AverageRank)
}

func TestAggregateRankings_Empty(t *testing.T) {
	got := AggregateRankings(nil, map[string]string{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`  "Quantum Computing Basics"  `, "Quantum Computing Basics"},
		{`'Single quoted'`, "Single quoted"},
		{"Exactly fifty characters long title for the test!", "Exactly fifty characters long title for the test!"},
		{strings.Repeat("x", 51), strings.Repeat("x", 47) + "..."},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.in), "input %q", tt.in)
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Response A", Label(0))
	assert.Equal(t, "Response D", Label(3))
	assert.Equal(t, "Response Z", Label(25))
}

func TestProperty_ParseRankingRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 26).Draw(rt, "n")
		perm := rapid.Permutation(labels(n)).Draw(rt, "perm")
		preamble := rapid.StringMatching(`[a-z ,.]{0,80}`).Draw(rt, "preamble")

		var b strings.Builder
		b.WriteString(preamble)
		b.WriteString("\n\nFINAL RANKING:\n")
		for i, l := range perm {
			fmt.Fprintf(&b, "%d. %s\n", i+1, l)
		}

		assert.Equal(rt, perm, ParseRanking(b.String()))
	})
}

func TestProperty_AggregateRankingsInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		all := labels(n)
		labelToModel := make(map[string]string, n)
		for i, l := range all {
			labelToModel[l] = fmt.Sprintf("model-%d", i)
		}

		voters := rapid.IntRange(0, 8).Draw(rt, "voters")
		stage2 := make([]types.StageTwoResult, voters)
		for i := range stage2 {
			stage2[i].ParsedRanking = rapid.Permutation(all).Draw(rt, "ranking")
		}

		got := AggregateRankings(stage2, labelToModel)
		if voters == 0 {
			assert.Empty(rt, got)
			return
		}
		require.Len(rt, got, n)
		for i, r := range got {
			assert.Equal(rt, voters, r.RankingsCount)
			assert.GreaterOrEqual(rt, r.AverageRank, 1.0)
			assert.LessOrEqual(rt, r.AverageRank, float64(n))
			if i > 0 {
				assert.LessOrEqual(rt, got[i-1].AverageRank, r.AverageRank)
			}
		}
	})
}

func labels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}
