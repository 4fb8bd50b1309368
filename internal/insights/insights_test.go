package insights

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"
)

type fakeClassifier struct {
	scores []LabelScore
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) ([]LabelScore, error) {
	f.calls++
	return f.scores, f.err
}

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return f.vec, f.err
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSentiment_WeightedScore(t *testing.T) {
	tests := []struct {
		name   string
		scores []LabelScore
		want   float64
	}{
		{
			name: "mostly positive",
			scores: []LabelScore{
				{Label: "negative", Score: 0.1},
				{Label: "neutral", Score: 0.2},
				{Label: "positive", Score: 0.7},
			},
			want: 0.6,
		},
		{
			name: "mostly negative",
			scores: []LabelScore{
				{Label: "negative", Score: 0.8},
				{Label: "neutral", Score: 0.1},
				{Label: "positive", Score: 0.1},
			},
			want: -0.7,
		},
		{
			name: "uppercase labels accepted",
			scores: []LabelScore{
				{Label: "NEGATIVE", Score: 0.5},
				{Label: "POSITIVE", Score: 0.5},
			},
			want: 0.0,
		},
		{
			name: "unknown labels carry no weight",
			scores: []LabelScore{
				{Label: "surprise", Score: 0.9},
				{Label: "positive", Score: 0.3},
			},
			want: 0.3,
		},
		{
			name: "clamped to upper bound",
			scores: []LabelScore{
				{Label: "positive", Score: 1.4},
			},
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&fakeClassifier{scores: tt.scores}, &fakeEmbedder{}, testLogger())
			got := svc.Sentiment(context.Background(), "Customer: something happened")
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Sentiment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentiment_NoCustomerUtterances(t *testing.T) {
	classifier := &fakeClassifier{scores: []LabelScore{{Label: "positive", Score: 1.0}}}
	svc := NewService(classifier, &fakeEmbedder{}, testLogger())

	got := svc.Sentiment(context.Background(), "Agent: Hello\nAgent: Anyone there?")
	if got != 0.0 {
		t.Errorf("Sentiment() = %v, want 0.0 for transcript without customer lines", got)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier invoked %d times, want 0", classifier.calls)
	}
}

func TestSentiment_ClassifierFaultIsNeutral(t *testing.T) {
	svc := NewService(&fakeClassifier{err: errors.New("model unavailable")}, &fakeEmbedder{}, testLogger())

	got := svc.Sentiment(context.Background(), "Customer: I am furious")
	if got != 0.0 {
		t.Errorf("Sentiment() = %v, want 0.0 on classifier fault", got)
	}
}

func TestEmbed_FaultReturnsNil(t *testing.T) {
	svc := NewService(&fakeClassifier{}, &fakeEmbedder{err: errors.New("timeout")}, testLogger())

	if vec := svc.Embed(context.Background(), "Agent: Hello"); vec != nil {
		t.Errorf("Embed() = %v, want nil on embedder fault", vec)
	}
}

func TestExtractAll_PartialDegradation(t *testing.T) {
	// Classifier faults, embedder works: only the sentiment field degrades.
	svc := NewService(
		&fakeClassifier{err: errors.New("down")},
		&fakeEmbedder{vec: []float64{0.1, 0.2}},
		testLogger(),
	)

	metrics := svc.ExtractAll(context.Background(), "Agent: Hello um there\nCustomer: Hi")

	if metrics.AgentTalkRatio != 0.5 {
		t.Errorf("AgentTalkRatio = %v, want 0.5", metrics.AgentTalkRatio)
	}
	if metrics.CustomerSentimentScore != 0.0 {
		t.Errorf("CustomerSentimentScore = %v, want 0.0 on classifier fault", metrics.CustomerSentimentScore)
	}
	if len(metrics.Embedding) != 2 {
		t.Errorf("Embedding length = %d, want 2", len(metrics.Embedding))
	}
	if len(metrics.Faults) != 1 || metrics.Faults[0] != StageSentiment {
		t.Errorf("Faults = %v, want [%q]", metrics.Faults, StageSentiment)
	}
}

func TestExtractAll_RecordsAllFaults(t *testing.T) {
	svc := NewService(
		&fakeClassifier{err: errors.New("down")},
		&fakeEmbedder{err: errors.New("timeout")},
		testLogger(),
	)

	metrics := svc.ExtractAll(context.Background(), "Agent: Hello\nCustomer: Hi")
	if len(metrics.Faults) != 2 {
		t.Fatalf("Faults = %v, want both stages", metrics.Faults)
	}
	if metrics.Faults[0] != StageSentiment || metrics.Faults[1] != StageEmbedding {
		t.Errorf("Faults = %v, want [%q %q]", metrics.Faults, StageSentiment, StageEmbedding)
	}
}

func TestExtractAll_NoFaultsOnCleanRun(t *testing.T) {
	svc := NewService(
		&fakeClassifier{scores: []LabelScore{{Label: "positive", Score: 0.9}}},
		&fakeEmbedder{vec: []float64{0.3}},
		testLogger(),
	)

	metrics := svc.ExtractAll(context.Background(), "Agent: Hello\nCustomer: Hi")
	if metrics.Faults != nil {
		t.Errorf("Faults = %v, want nil", metrics.Faults)
	}
}

func TestExtractAll_SentimentAlwaysInRange(t *testing.T) {
	svc := NewService(&fakeClassifier{scores: []LabelScore{
		{Label: "negative", Score: 2.0},
	}}, &fakeEmbedder{}, testLogger())

	metrics := svc.ExtractAll(context.Background(), "Customer: terrible")
	if metrics.CustomerSentimentScore < -1 || metrics.CustomerSentimentScore > 1 {
		t.Errorf("CustomerSentimentScore = %v, outside [-1,1]", metrics.CustomerSentimentScore)
	}
}
