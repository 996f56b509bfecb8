package openrouter

// Model identifiers routed by OpenRouter.
const (
	ModelGPT51             = "openai/gpt-5.1"
	ModelGemini3ProPreview = "google/gemini-3-pro-preview"
	ModelClaudeSonnet45    = "anthropic/claude-sonnet-4.5"
	ModelGrok4             = "x-ai/grok-4"
	ModelGemini25Flash     = "google/gemini-2.5-flash"
)

// DefaultCouncilModels is the default council membership, in query order.
var DefaultCouncilModels = []string{
	ModelGPT51,
	ModelGemini3ProPreview,
	ModelClaudeSonnet45,
	ModelGrok4,
}

const (
	// DefaultChairmanModel synthesizes the final answer.
	DefaultChairmanModel = ModelGemini3ProPreview
	// DefaultTitleModel generates conversation titles.
	DefaultTitleModel = ModelGemini25Flash
)
