package insights

import (
	"context"
	"log"
	"math/rand"
)

// MaxSuggestionLen is the character limit for a coaching suggestion. Longer
// suggestions are truncated with a trailing ellipsis.
const MaxSuggestionLen = 100

// suggestionCount is the fixed size of a coaching response.
const suggestionCount = 3

// Suggestion is one coaching nudge for an agent.
type Suggestion struct {
	Title      string `json:"title"`
	Suggestion string `json:"suggestion"`
}

// Recommender produces coaching suggestions for a call given its nearest
// neighbors. Implementations may be generative; CannedRecommender stands in
// with a randomized draw from a fixed catalog.
type Recommender interface {
	Recommend(ctx context.Context, callID string, similar []RankedCandidate) ([]Suggestion, error)

	// Method names the generation strategy ("catalog", "llm") for reporting
	// in API responses.
	Method() string
}

// suggestionCatalog is the canned pool CannedRecommender draws from.
var suggestionCatalog = []Suggestion{
	{Title: "Active Listening", Suggestion: "Ask more follow-up questions to better understand customer needs."},
	{Title: "Empathy Building", Suggestion: "Acknowledge customer frustrations before offering solutions."},
	{Title: "Solution Focus", Suggestion: "Provide clear next steps and timeline for resolution."},
	{Title: "Rapport Building", Suggestion: "Use customer's name and reference previous interactions."},
	{Title: "Clarity Improvement", Suggestion: "Explain technical terms in simple customer language."},
	{Title: "Problem Resolution", Suggestion: "Confirm understanding before proceeding with solutions."},
	{Title: "Customer Satisfaction", Suggestion: "Check customer satisfaction before ending the call."},
	{Title: "Professional Tone", Suggestion: "Maintain consistent professional tone throughout the conversation."},
	{Title: "Call Control", Suggestion: "Guide the conversation while allowing customer to express concerns."},
	{Title: "Follow-up", Suggestion: "Set clear expectations for follow-up actions and timeline."},
}

// defaultSuggestions substitutes when a recommender yields zero valid
// suggestions. A coaching response is never empty.
var defaultSuggestions = []Suggestion{
	{Title: "Active Listening", Suggestion: "Ask more follow-up questions to better understand customer needs."},
	{Title: "Empathy Building", Suggestion: "Acknowledge customer frustrations before offering solutions."},
	{Title: "Solution Focus", Suggestion: "Provide clear next steps and timeline for resolution."},
}

// CannedRecommender draws a random sample without replacement from the
// suggestion catalog. The neighbor context is accepted but unused; it exists
// so a generative implementation can slot in behind the same interface.
type CannedRecommender struct{}

func (CannedRecommender) Recommend(_ context.Context, _ string, _ []RankedCandidate) ([]Suggestion, error) {
	perm := rand.Perm(len(suggestionCatalog))
	out := make([]Suggestion, 0, suggestionCount)
	for _, i := range perm[:suggestionCount] {
		out = append(out, suggestionCatalog[i])
	}
	return out, nil
}

func (CannedRecommender) Method() string { return "catalog" }

// SelectSuggestions runs the recommender and shapes its output: malformed
// entries are skipped, oversized suggestions truncated, and the default
// triple substitutes when nothing valid survives. The result always holds
// exactly suggestionCount entries within the length limit.
func SelectSuggestions(ctx context.Context, rec Recommender, callID string, similar []RankedCandidate, logger *log.Logger) []Suggestion {
	generated, err := rec.Recommend(ctx, callID, similar)
	if err != nil {
		logger.Printf("insights: recommendation generation failed for %s: %v", callID, err)
	}

	var valid []Suggestion
	for _, s := range generated {
		if s.Title == "" || s.Suggestion == "" {
			logger.Printf("insights: skipping malformed suggestion for %s", callID)
			continue
		}
		valid = append(valid, truncateSuggestion(s))
	}

	if len(valid) == 0 {
		logger.Printf("insights: no valid suggestions for %s, using defaults", callID)
		valid = append(valid, defaultSuggestions...)
	}
	// Top up from the defaults so a partially filtered batch still yields a
	// full triple.
	for _, d := range defaultSuggestions {
		if len(valid) >= suggestionCount {
			break
		}
		if !containsTitle(valid, d.Title) {
			valid = append(valid, d)
		}
	}
	if len(valid) > suggestionCount {
		valid = valid[:suggestionCount]
	}
	return valid
}

func containsTitle(list []Suggestion, title string) bool {
	for _, s := range list {
		if s.Title == title {
			return true
		}
	}
	return false
}

func truncateSuggestion(s Suggestion) Suggestion {
	if len(s.Suggestion) > MaxSuggestionLen {
		s.Suggestion = s.Suggestion[:MaxSuggestionLen-3] + "..."
	}
	return s
}
