package council

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/llmcouncil/types"
)

var (
	numberedLabelRe = regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
	labelRe         = regexp.MustCompile(`Response [A-Z]`)
)

// ParseRanking extracts the ordered list of labels from a stage two evaluation.
//
// When the text contains "FINAL RANKING:", only the section after the first
// marker (up to a second marker, if any) is considered: numbered entries
// ("1. Response C") win, otherwise every bare label in that section is
// returned. Without the marker every label in the whole text is returned.
func ParseRanking(text string) []string {
	if idx := strings.Index(text, finalRankingMarker); idx >= 0 {
		section := text[idx+len(finalRankingMarker):]
		if next := strings.Index(section, finalRankingMarker); next >= 0 {
			section = section[:next]
		}
		if numbered := numberedLabelRe.FindAllString(section, -1); len(numbered) > 0 {
			out := make([]string, 0, len(numbered))
			for _, m := range numbered {
				out = append(out, labelRe.FindString(m))
			}
			return out
		}
		return nonNil(labelRe.FindAllString(section, -1))
	}
	return nonNil(labelRe.FindAllString(text, -1))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// AggregateRankings averages every model's 1-based position across all
// parsed rankings. Labels missing from labelToModel are ignored. Averages are
// rounded to two decimals; the result is sorted best first and ties keep the
// order in which models were first ranked.
func AggregateRankings(stage2 []types.StageTwoResult, labelToModel map[string]string) []types.AggregateRanking {
	positions := make(map[string][]int)
	var order []string

	for _, r := range stage2 {
		for pos, label := range r.ParsedRanking {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			if _, seen := positions[model]; !seen {
				order = append(order, model)
			}
			positions[model] = append(positions[model], pos+1)
		}
	}

	out := make([]types.AggregateRanking, 0, len(order))
	for _, model := range order {
		ps := positions[model]
		sum := 0
		for _, p := range ps {
			sum += p
		}
		out = append(out, types.AggregateRanking{
			Model:         model,
			AverageRank:   math.Round(float64(sum)/float64(len(ps))*100) / 100,
			RankingsCount: len(ps),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AverageRank < out[j].AverageRank
	})
	return out
}

// CleanTitle normalizes a model-generated title: surrounding whitespace and
// quotes are stripped and anything over 50 characters is cut to 47 plus "...".
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)

	runes := []rune(title)
	if len(runes) > 50 {
		title = string(runes[:47]) + "..."
	}
	return title
}
