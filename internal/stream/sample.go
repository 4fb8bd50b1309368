package stream

import (
	"math"
	"time"
)

// Emotion labels derived from a sentiment score via fixed thresholds.
const (
	EmotionVeryPositive = "very_positive"
	EmotionPositive     = "positive"
	EmotionNeutral      = "neutral"
	EmotionNegative     = "negative"
	EmotionVeryNegative = "very_negative"
)

// Sample is one point of the simulated real-time sentiment signal.
type Sample struct {
	CallID         string    `json:"call_id"`
	Timestamp      time.Time `json:"timestamp"`
	SentimentScore float64   `json:"sentiment_score"`
	Confidence     float64   `json:"confidence"`
	Emotion        string    `json:"emotion"`
	Intensity      float64   `json:"intensity"`
}

// EmotionFor buckets a sentiment score into an emotion label.
func EmotionFor(score float64) string {
	switch {
	case score >= 0.6:
		return EmotionVeryPositive
	case score >= 0.2:
		return EmotionPositive
	case score >= -0.2:
		return EmotionNeutral
	case score >= -0.6:
		return EmotionNegative
	default:
		return EmotionVeryNegative
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
