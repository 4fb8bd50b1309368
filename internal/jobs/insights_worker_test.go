package jobs

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jsadleir/callscope/internal/eventlog"
	"github.com/jsadleir/callscope/internal/insights"
	"github.com/jsadleir/callscope/internal/store"
)

type stubClassifier struct {
	scores []insights.LabelScore
}

func (c stubClassifier) Classify(context.Context, string) ([]insights.LabelScore, error) {
	return c.scores, nil
}

type stubEmbedder struct {
	vec []float64
}

func (e stubEmbedder) Embed(context.Context, string) ([]float64, error) {
	return e.vec, nil
}

func getTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	t.Cleanup(db.Close)

	return store.New(db)
}

func testWorker(s *store.Store) *InsightsWorker {
	logger := log.New(os.Stderr, "", 0)
	svc := insights.NewService(
		stubClassifier{scores: []insights.LabelScore{{Label: "positive", Score: 0.9}}},
		stubEmbedder{vec: []float64{0.1, 0.2, 0.3}},
		logger,
	)
	return NewInsightsWorker(s, svc, nil, eventlog.New(nil), nil, logger, time.Minute)
}

func TestProcessCallPersistsMetrics(t *testing.T) {
	s := getTestStore(t)
	w := testWorker(s)
	ctx := context.Background()

	callID := fmt.Sprintf("worker_test_%d", time.Now().UnixNano())
	err := s.CreateCall(ctx, store.Call{
		CallID:          callID,
		AgentID:         "agent_worker",
		CustomerID:      "customer_worker",
		Language:        "en",
		StartTime:       time.Now().UTC(),
		DurationSeconds: 120,
		Transcript:      "Agent: Hello there\nCustomer: Great service today",
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}

	if err := w.ProcessCall(ctx, callID); err != nil {
		t.Fatalf("ProcessCall: %v", err)
	}

	call, err := s.GetCall(ctx, callID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if call.AgentTalkRatio == nil || call.CustomerSentimentScore == nil {
		t.Fatal("expected metrics populated after processing")
	}
	if *call.CustomerSentimentScore <= 0 {
		t.Errorf("sentiment = %v, want positive for positive classifier", *call.CustomerSentimentScore)
	}
	if len(call.Embedding) != 3 {
		t.Errorf("embedding dims = %d, want 3", len(call.Embedding))
	}
}

func TestProcessCallUnknownID(t *testing.T) {
	s := getTestStore(t)
	w := testWorker(s)

	if err := w.ProcessCall(context.Background(), "worker_test_missing"); err == nil {
		t.Error("expected error for unknown call")
	}
}

func TestSweepProcessesUnprocessedCalls(t *testing.T) {
	s := getTestStore(t)
	w := testWorker(s)
	ctx := context.Background()

	callID := fmt.Sprintf("worker_sweep_%d", time.Now().UnixNano())
	err := s.CreateCall(ctx, store.Call{
		CallID:          callID,
		AgentID:         "agent_sweep",
		CustomerID:      "customer_sweep",
		Language:        "en",
		StartTime:       time.Now().UTC(),
		DurationSeconds: 60,
		Transcript:      "Agent: Hi\nCustomer: Hello",
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}

	// Each sweep drains up to a batch of backlog; loop in case other
	// unprocessed rows precede ours.
	for i := 0; i < 10; i++ {
		w.sweep()
		call, err := s.GetCall(ctx, callID)
		if err != nil {
			t.Fatalf("get call: %v", err)
		}
		if call.AgentTalkRatio != nil {
			return
		}
	}
	t.Error("expected sweep to process the unprocessed call")
}

func TestStartStop(t *testing.T) {
	s := getTestStore(t)
	w := testWorker(s)

	w.Start()
	// Stop must return promptly with no queue consumer attached.
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
