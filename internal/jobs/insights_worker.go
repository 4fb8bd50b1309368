package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jsadleir/callscope/internal/analytics"
	"github.com/jsadleir/callscope/internal/eventlog"
	"github.com/jsadleir/callscope/internal/insights"
	"github.com/jsadleir/callscope/internal/queue"
	"github.com/jsadleir/callscope/internal/store"
)

const sweepBatchSize = 50

// InsightsWorker derives metrics for ingested calls in the background. It
// consumes extraction tasks from the queue and additionally sweeps the
// database on an interval so calls whose task was lost still get processed.
type InsightsWorker struct {
	store       *store.Store
	svc         *insights.Service
	queue       *queue.Client
	events      *eventlog.Logger
	leaderboard *analytics.Leaderboard
	logger      *log.Logger
	interval    time.Duration
	cancel      context.CancelFunc
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewInsightsWorker creates the worker. q may be nil, in which case only
// the periodic sweep runs. lb may be nil when no cache is configured.
func NewInsightsWorker(s *store.Store, svc *insights.Service, q *queue.Client, events *eventlog.Logger, lb *analytics.Leaderboard, logger *log.Logger, interval time.Duration) *InsightsWorker {
	if interval == 0 {
		interval = 1 * time.Minute
	}
	return &InsightsWorker{
		store:       s,
		svc:         svc,
		queue:       q,
		events:      events,
		leaderboard: lb,
		logger:      logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background worker.
func (w *InsightsWorker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.runSweep()

	if w.queue != nil {
		tasks, err := w.queue.Consume(ctx)
		if err != nil {
			w.logger.Printf("InsightsWorker: queue consume unavailable, sweep only: %v", err)
		} else {
			w.wg.Add(1)
			go w.runConsumer(tasks)
		}
	}

	w.logger.Printf("InsightsWorker: started (sweep interval=%v)", w.interval)
}

// Stop gracefully stops the background worker.
func (w *InsightsWorker) Stop() {
	close(w.stopCh)
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Println("InsightsWorker: stopped")
}

func (w *InsightsWorker) runSweep() {
	defer w.wg.Done()

	// Run immediately on start
	w.sweep()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stopCh:
			return
		}
	}
}

func (w *InsightsWorker) runConsumer(tasks <-chan queue.ProcessTask) {
	defer w.wg.Done()

	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.ProcessCall(context.Background(), task.CallID); err != nil {
				w.logger.Printf("InsightsWorker: failed to process queued call %s: %v", task.CallID, err)
			}
		case <-w.stopCh:
			return
		}
	}
}

func (w *InsightsWorker) sweep() {
	ctx := context.Background()

	calls, err := w.store.ListUnprocessed(ctx, sweepBatchSize)
	if err != nil {
		w.logger.Printf("InsightsWorker: failed to list unprocessed calls: %v", err)
		return
	}

	for _, c := range calls {
		if err := w.ProcessCall(ctx, c.CallID); err != nil {
			w.logger.Printf("InsightsWorker: failed to process call %s: %v", c.CallID, err)
		}
	}

	if len(calls) > 0 {
		w.logger.Printf("InsightsWorker: swept %d unprocessed calls", len(calls))
	}
}

// ProcessCall runs insight extraction for one call and persists the result.
// Model faults degrade to neutral values inside the service, so the only
// errors here are storage errors.
func (w *InsightsWorker) ProcessCall(ctx context.Context, callID string) error {
	call, err := w.store.GetCall(ctx, callID)
	if err != nil {
		return err
	}

	w.events.LogAsync(callID, eventlog.EventInsightsStarted, nil)

	m := w.svc.ExtractAll(ctx, call.Transcript)
	for _, stage := range m.Faults {
		w.events.LogAsync(callID, eventlog.EventModelFault, map[string]any{"stage": stage})
	}

	err = w.store.SaveMetrics(ctx, callID, store.CallMetrics{
		AgentTalkRatio:         m.AgentTalkRatio,
		CustomerSentimentScore: m.CustomerSentimentScore,
		Embedding:              m.Embedding,
	})
	if err != nil {
		return err
	}

	if w.leaderboard != nil {
		w.leaderboard.Invalidate()
	}
	w.events.LogAsync(callID, eventlog.EventInsightsCompleted, map[string]any{
		"agent_talk_ratio": m.AgentTalkRatio,
		"sentiment_score":  m.CustomerSentimentScore,
		"embedding_dims":   len(m.Embedding),
	})
	return nil
}
