package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jsadleir/callscope/internal/insights"
)

const recommenderSystemPrompt = `You are a call-center coaching assistant.
Given summaries of calls similar to the one under review, produce exactly 3
coaching suggestions for the agent. Respond with a JSON array of objects with
"title" and "suggestion" fields and nothing else. Keep each suggestion under
100 characters.`

// LLMRecommender generates coaching suggestions with a chat model instead of
// the canned catalog. Malformed or missing output is not repaired here;
// insights.SelectSuggestions filters and tops up downstream.
type LLMRecommender struct {
	client *openai.Client
	model  string
}

// LLMRecommenderConfig holds configuration for the recommender.
type LLMRecommenderConfig struct {
	APIKey string
	Model  string // defaults to gpt-4o-mini
}

func NewLLMRecommender(cfg LLMRecommenderConfig) *LLMRecommender {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLMRecommender{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
	}
}

func (r *LLMRecommender) Method() string { return "llm" }

func (r *LLMRecommender) Recommend(ctx context.Context, callID string, similar []insights.RankedCandidate) ([]insights.Suggestion, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0.7,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: recommenderSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: neighborContext(callID, similar)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var suggestions []insights.Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &suggestions); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}
	return suggestions, nil
}

func neighborContext(callID string, similar []insights.RankedCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call under review: %s\n", callID)
	if len(similar) == 0 {
		b.WriteString("No similar calls available.\n")
		return b.String()
	}
	b.WriteString("Similar calls:\n")
	for _, s := range similar {
		sentiment := "unknown"
		if s.SentimentScore != nil {
			sentiment = fmt.Sprintf("%.2f", *s.SentimentScore)
		}
		fmt.Fprintf(&b, "- %s by %s, similarity %.2f, customer sentiment %s\n",
			s.CallID, s.AgentID, s.Similarity, sentiment)
	}
	return b.String()
}
