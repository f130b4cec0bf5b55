package entity

// AiAnswer is the structured reply of the AI assistant in chat mode.
type AiAnswer struct {
	Text                string           `json:"response"`
	RecommendedProducts []map[string]any `json:"recommended_products,omitempty"`
	FollowupQuestions   []string         `json:"followup_questions,omitempty"`
}
