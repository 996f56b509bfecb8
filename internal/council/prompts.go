package council

import (
	"fmt"
	"strings"

	"github.com/BaSui01/llmcouncil/types"
)

// finalRankingMarker introduces the machine-readable part of a stage two evaluation.
const finalRankingMarker = "FINAL RANKING:"

// Label returns the anonymized label for the i-th stage one response
// ("Response A", "Response B", ...).
func Label(i int) string {
	return fmt.Sprintf("Response %c", 'A'+rune(i))
}

func buildRankingPrompt(query string, stage1 []types.StageOneResult) string {
	parts := make([]string, 0, len(stage1))
	for i, r := range stage1 {
		parts = append(parts, fmt.Sprintf("%s:\n%s", Label(i), r.Response))
	}

	var b strings.Builder
	b.WriteString("You are evaluating different responses to the following question:\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Here are the responses from different models (anonymized):\n\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString(`

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`)
	return b.String()
}

func buildChairmanPrompt(query string, stage1 []types.StageOneResult, stage2 []types.StageTwoResult) string {
	answers := make([]string, 0, len(stage1))
	for _, r := range stage1 {
		answers = append(answers, fmt.Sprintf("Model: %s\nResponse: %s", r.Model, r.Response))
	}
	rankings := make([]string, 0, len(stage2))
	for _, r := range stage2 {
		rankings = append(rankings, fmt.Sprintf("Model: %s\nRanking: %s", r.Model, r.Ranking))
	}

	var b strings.Builder
	b.WriteString("You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.\n\n")
	fmt.Fprintf(&b, "Original Question: %s\n\n", query)
	b.WriteString("STAGE 1 - Individual Responses:\n")
	b.WriteString(strings.Join(answers, "\n\n"))
	b.WriteString("\n\nSTAGE 2 - Peer Rankings:\n")
	b.WriteString(strings.Join(rankings, "\n\n"))
	b.WriteString(`

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`)
	return b.String()
}

func buildTitlePrompt(query string) string {
	return fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, query)
}
