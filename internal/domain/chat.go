package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one stored exchange as the frontend keeps it.
type ChatTurn struct {
	Request  string `json:"request"`
	Response string `json:"response"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StructuredInsight struct {
	Insight         string   `json:"insight"`
	Recommendations []string `json:"recommendations"`
	Warnings        []string `json:"warnings"`
	MarketTrends    string   `json:"market_trends"`
	BestPractices   []string `json:"best_practices"`
	ROIInfo         string   `json:"roi_info"`
	Notes           string   `json:"notes"`
}

// EmptyStructuredInsight is returned when the model output cannot be parsed.
// Slices are non-nil so they encode as [] rather than null.
func EmptyStructuredInsight() StructuredInsight {
	return StructuredInsight{
		Recommendations: []string{},
		Warnings:        []string{},
		BestPractices:   []string{},
	}
}
