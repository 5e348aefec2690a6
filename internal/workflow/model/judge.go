package model

type JudgeEvaluateInput struct {
	Persona          string
	Categories       []string
	ReferenceContext string

	Brief           string
	PromptUsed      string
	IterationNumber int
	ImageURL        string

	Provider      string
	Model         string
	ThinkingLevel string

	Temperature *float32
	MaxTokens   *int
}

type JudgeVerdict struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`

	Usage LLMUsageMeta `json:"-"`
}
