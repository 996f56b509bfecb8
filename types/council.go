package types

// StageOneResult is one council member's individual answer.
type StageOneResult struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// StageTwoResult is one council member's evaluation of the anonymized answers.
type StageTwoResult struct {
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
}

// StageThreeResult is the chairman's final synthesis.
type StageThreeResult struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// AggregateRanking is a model's average position across all peer rankings.
// Lower is better.
type AggregateRanking struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// Metadata accompanies stage two. It is returned to clients but not persisted.
type Metadata struct {
	LabelToModel      map[string]string  `json:"label_to_model"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
}

// CouncilResult is the full output of one deliberation.
type CouncilResult struct {
	Stage1   []StageOneResult `json:"stage1"`
	Stage2   []StageTwoResult `json:"stage2"`
	Stage3   StageThreeResult `json:"stage3"`
	Metadata Metadata         `json:"metadata"`
}
