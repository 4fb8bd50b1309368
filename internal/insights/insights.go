package insights

import (
	"context"
	"log"
	"strings"
)

// Sentiment label names as returned by the classifier. Labels outside this
// set carry no weight.
const (
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
	LabelPositive = "positive"
)

// LabelScore is one entry of a classifier's label distribution.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// SentimentClassifier scores a text blob against the negative/neutral/positive
// label set. Implementations may fault; callers degrade to neutral.
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) ([]LabelScore, error)
}

// Embedder turns text into a fixed-length embedding vector. Implementations
// may fault; callers degrade to "no embedding".
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Names of the model-backed extraction stages, recorded in CallMetrics.Faults
// when the corresponding stage degrades.
const (
	StageSentiment = "sentiment"
	StageEmbedding = "embedding"
)

// CallMetrics are the derived per-call metrics. Embedding is nil when no
// embedding could be produced. Faults lists the extraction stages that
// degraded instead of producing a real value.
type CallMetrics struct {
	AgentTalkRatio         float64
	CustomerSentimentScore float64
	Embedding              []float64
	Faults                 []string
}

// Service derives call metrics from raw transcripts. It never returns an
// error to the caller: a fault in the classifier or embedder degrades only
// the affected field.
type Service struct {
	classifier SentimentClassifier
	embedder   Embedder
	logger     *log.Logger
}

func NewService(classifier SentimentClassifier, embedder Embedder, logger *log.Logger) *Service {
	return &Service{classifier: classifier, embedder: embedder, logger: logger}
}

// Sentiment scores the customer side of the transcript in [-1, 1].
// A transcript with no customer utterances, or a classifier fault, scores
// neutral (0.0).
func (s *Service) Sentiment(ctx context.Context, transcript string) float64 {
	score, _ := s.sentiment(ctx, transcript)
	return score
}

func (s *Service) sentiment(ctx context.Context, transcript string) (float64, bool) {
	text := CustomerText(transcript)
	if text == "" {
		return 0.0, true
	}

	scores, err := s.classifier.Classify(ctx, text)
	if err != nil {
		s.logger.Printf("insights: sentiment classification failed: %v", err)
		return 0.0, false
	}

	weighted := 0.0
	for _, ls := range scores {
		switch strings.ToLower(ls.Label) {
		case LabelNegative:
			weighted -= ls.Score
		case LabelPositive:
			weighted += ls.Score
		case LabelNeutral:
			// weight 0
		}
	}
	return clamp(weighted, -1.0, 1.0), true
}

// Embed generates an embedding for the full transcript text. Returns nil on
// fault so downstream consumers can tell "no embedding" from a zero vector.
func (s *Service) Embed(ctx context.Context, transcript string) []float64 {
	vec, _ := s.embed(ctx, transcript)
	return vec
}

func (s *Service) embed(ctx context.Context, transcript string) ([]float64, bool) {
	vec, err := s.embedder.Embed(ctx, transcript)
	if err != nil {
		s.logger.Printf("insights: embedding generation failed: %v", err)
		return nil, false
	}
	return vec, true
}

// ExtractAll derives all metrics for one transcript. Each metric degrades
// independently; extraction never aborts the caller. Degraded stages are
// recorded in Faults.
func (s *Service) ExtractAll(ctx context.Context, transcript string) CallMetrics {
	m := CallMetrics{AgentTalkRatio: TalkRatio(transcript)}

	var ok bool
	if m.CustomerSentimentScore, ok = s.sentiment(ctx, transcript); !ok {
		m.Faults = append(m.Faults, StageSentiment)
	}
	if m.Embedding, ok = s.embed(ctx, transcript); !ok {
		m.Faults = append(m.Faults, StageEmbedding)
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
