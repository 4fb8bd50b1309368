package stream

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"
)

// DefaultInterval is the cadence of the simulated sentiment signal.
const DefaultInterval = 2 * time.Second

// Random-walk bounds for the simulated signal. This is explicitly a
// generator, not a live audio analyzer: each tick perturbs the running
// score by a small delta and clamps it to [-1, 1].
const (
	maxStepDelta = 0.1
	confidenceLo = 0.70
	confidenceHi = 0.95
)

// Streamer owns one emission task per actively streamed call. Start is
// idempotent; Stop is cooperative and takes effect at the next loop
// iteration, never mid-broadcast.
//
// Histories grow without bound for the process lifetime. This is a known
// trade-off: a late joiner always receives the complete backfill, at the
// cost of memory on long-running streams. Bounding it would change the
// reconnect semantics, so it stays unbounded and operators should watch it.
type Streamer struct {
	mu       sync.Mutex
	sessions map[string]*session

	registry *Registry
	logger   *log.Logger
	interval time.Duration
}

type session struct {
	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
	history []Sample
}

func NewStreamer(registry *Registry, interval time.Duration, logger *log.Logger) *Streamer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Streamer{
		sessions: make(map[string]*session),
		registry: registry,
		logger:   logger,
		interval: interval,
	}
}

// Start launches the emission task for a call. Concurrent or repeated calls
// for the same call are no-ops while a task is running; exactly one loop
// emits per call. Returns true when a new task was launched.
//
// History survives Stop: restarting a call appends to the existing buffer
// rather than clearing it, so reconnect backfill keeps earlier samples.
func (s *Streamer) Start(callID string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	if !ok {
		sess = &session{}
		s.sessions[callID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	if sess.active {
		sess.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess.active = true
	sess.cancel = cancel
	sess.mu.Unlock()

	s.logger.Printf("stream: starting sentiment emission for call %s", callID)
	go s.emit(ctx, callID, sess)
	return true
}

// Stop requests the emission task for a call to end. The task observes the
// cancellation at its next iteration boundary; callers that need a
// deterministic cutoff should wait for the streaming_stopped acknowledgment
// rather than assume immediate cessation.
func (s *Streamer) Stop(callID string) {
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	if sess.active && sess.cancel != nil {
		sess.cancel()
	}
	sess.mu.Unlock()

	s.logger.Printf("stream: stop requested for call %s", callID)
}

// Active reports whether an emission task is currently running for a call.
func (s *Streamer) Active(callID string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.active
}

// History returns a copy of the samples emitted for a call so far, in
// generation order.
func (s *Streamer) History(callID string) []Sample {
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Sample, len(sess.history))
	copy(out, sess.history)
	return out
}

// emit is the per-call emission loop. It appends every sample to history
// before broadcasting, so a backfill snapshot taken between ticks is always
// a prefix of what live listeners have seen.
func (s *Streamer) emit(ctx context.Context, callID string, sess *session) {
	defer func() {
		sess.mu.Lock()
		sess.active = false
		sess.cancel = nil
		sess.mu.Unlock()
		s.logger.Printf("stream: sentiment emission ended for call %s", callID)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	score := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		score = clampUnit(score + (rand.Float64()*2-1)*maxStepDelta)
		sample := Sample{
			CallID:         callID,
			Timestamp:      time.Now().UTC(),
			SentimentScore: round3(score),
			Confidence:     confidenceLo + rand.Float64()*(confidenceHi-confidenceLo),
			Emotion:        EmotionFor(score),
			Intensity:      round3(clampUnit(absFloat(score))),
		}

		sess.mu.Lock()
		sess.history = append(sess.history, sample)
		sess.mu.Unlock()

		msg, err := json.Marshal(UpdateMessage(sample))
		if err != nil {
			s.logger.Printf("stream: emission fault for call %s: %v", callID, err)
			return
		}
		s.registry.Broadcast(callID, msg)
	}
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
