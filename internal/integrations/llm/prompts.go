package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mkulima/internal/domain"
)

var (
	ErrMissingPrediction     = errors.New("no previous prediction found")
	ErrMissingProfitAnalysis = errors.New("no profit analysis found")
)

const insightSystemPrompt = "You are an expert agronomist and data analyst. " +
	"Your job is to analyze agricultural data for Kenyan counties " +
	"and give structured, practical insights for smallholder farmers."

const chatSystemPrompt = "You are MkuliMA, an expert agronomist AI assistant helping Kenyan farmers " +
	"with crop planning, soil health, and profitability, part of the Mkulima app."

const insightInstructions = `Using the above data, provide a detailed analysis including:
1. Expected Yield and Profitability
2. Soil and Fertilizer Recommendations
3. Climate and Water Management Advice
4. Market and Pricing Outlook
5. Final Recommendation for the Farmer

Recommend intercropping when the farm size can handle it. Take the nitrogen, phosphorus and potassium levels into account and name only two crops that help boost the insufficient nutrient.

Use clear and short sentences suitable for an agricultural app interface. Keep it short and straight to the point. Stay under 250 words.`

const structuredInstructions = `Using the above data, respond with a JSON object with exactly these keys:
"insight": a short overall assessment (string),
"recommendations": practical actions for the farmer (array of strings),
"warnings": risks to watch for (array of strings),
"market_trends": the market and pricing outlook (string),
"best_practices": soil, fertilizer, water and intercropping practices (array of strings),
"roi_info": expected return on investment (string),
"notes": anything else worth knowing (string).
Keep the whole response under 250 words. Return only the JSON object.`

// BuildInsightPrompts renders the agronomy report prompt for the slot's last
// prediction and profit analysis.
func BuildInsightPrompts(snap domain.Snapshot) (string, string, error) {
	data, err := snapshotFacts(snap)
	if err != nil {
		return "", "", err
	}
	return insightSystemPrompt, data + "\n" + insightInstructions, nil
}

// BuildStructuredInsightPrompts asks for the same analysis as a JSON object.
func BuildStructuredInsightPrompts(snap domain.Snapshot) (string, string, error) {
	data, err := snapshotFacts(snap)
	if err != nil {
		return "", "", err
	}
	return insightSystemPrompt, data + "\n" + structuredInstructions, nil
}

func snapshotFacts(snap domain.Snapshot) (string, error) {
	if snap.Latest == nil {
		return "", ErrMissingPrediction
	}
	if snap.ProfitAnalysis == nil {
		return "", ErrMissingProfitAnalysis
	}
	latest, analysis := snap.Latest, snap.ProfitAnalysis

	var b strings.Builder
	fmt.Fprintf(&b, "County: %s\n", latest.County)
	fmt.Fprintf(&b, "Farm Size: %s acres\n", num(latest.FarmSize))
	fmt.Fprintf(&b, "Crop: %s\n\n", analysis.Crop)

	inputs := []struct {
		label, key, unit string
	}{
		{"Soil pH", domain.FeaturePH, ""},
		{"Average Rainfall", domain.FeaturePrecipitation, " mm/year"},
		{"Average Minimum Temperature", domain.FeatureMinTemp, " °C"},
		{"Average Maximum Temperature", domain.FeatureMaxTemp, " °C"},
		{"Soil Nitrogen", domain.FeatureNitrogen, ""},
		{"Soil Phosphorus", domain.FeaturePhosphorus, ""},
		{"Soil Potassium", domain.FeaturePotassium, ""},
	}
	for _, in := range inputs {
		if v, ok := latest.InputData[in.key]; ok {
			fmt.Fprintf(&b, "%s: %s%s\n", in.label, num(v), in.unit)
		}
	}

	fmt.Fprintf(&b, "\nPredicted Yield: %s t/acre\n", num(analysis.PredictedYield))
	fmt.Fprintf(&b, "Market Price: KES %s per tonne\n", num(analysis.MarketPrice))
	fmt.Fprintf(&b, "Estimated Profit: KES %s\n", num(analysis.Profit.TotalProfit))
	fmt.Fprintf(&b, "Profit Margin: %s%%\n", num(analysis.ProfitMargin))
	return b.String(), nil
}

// BuildChatMessages prepends the assistant persona and replays history as
// alternating user and assistant turns before the new message.
func BuildChatMessages(history []domain.ChatTurn, message string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, 2*len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: chatSystemPrompt})
	for _, turn := range history {
		messages = append(messages,
			domain.ChatMessage{Role: domain.RoleUser, Content: turn.Request},
			domain.ChatMessage{Role: domain.RoleAssistant, Content: turn.Response},
		)
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})
}

// ParseStructuredInsight decodes a model reply into a StructuredInsight.
// Malformed replies yield the empty payload and ok=false.
func ParseStructuredInsight(text string) (domain.StructuredInsight, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	out := domain.EmptyStructuredInsight()
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return domain.EmptyStructuredInsight(), false
	}
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	if out.BestPractices == nil {
		out.BestPractices = []string{}
	}
	return out, true
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
