package model

type WeightedFeedback struct {
	AgentName string
	Weight    float64
	Score     float64
	Feedback  string
}

type PromptOptimizeInput struct {
	Brief           string
	PreviousPrompt  string
	NegativePrompts string
	AggregateScore  float64
	Feedback        []WeightedFeedback

	Provider string
	Model    string

	Temperature *float32
	MaxTokens   *int
}

type PromptOptimizeOutput struct {
	Prompt string

	Usage LLMUsageMeta
}
