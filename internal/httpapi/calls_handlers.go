package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jsadleir/callscope/internal/eventlog"
	"github.com/jsadleir/callscope/internal/insights"
	"github.com/jsadleir/callscope/internal/store"
)

// similarCallCount is how many nearest neighbors a recommendation response
// carries.
const similarCallCount = 5

const maxListLimit = 100

type callRequest struct {
	CallID          string    `json:"call_id"`
	AgentID         string    `json:"agent_id"`
	CustomerID      string    `json:"customer_id"`
	Language        string    `json:"language"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
	Transcript      string    `json:"transcript"`
}

func (c *callRequest) validate() string {
	switch {
	case c.CallID == "":
		return "call_id is required"
	case c.AgentID == "":
		return "agent_id is required"
	case c.CustomerID == "":
		return "customer_id is required"
	case c.Transcript == "":
		return "transcript is required"
	case c.StartTime.IsZero():
		return "start_time is required"
	case c.DurationSeconds <= 0:
		return "duration_seconds must be positive"
	}
	return ""
}

func (c *callRequest) toStore() store.Call {
	lang := c.Language
	if lang == "" {
		lang = "en"
	}
	return store.Call{
		CallID:          c.CallID,
		AgentID:         c.AgentID,
		CustomerID:      c.CustomerID,
		Language:        lang,
		StartTime:       c.StartTime,
		DurationSeconds: c.DurationSeconds,
		Transcript:      c.Transcript,
	}
}

// handleCreateCall ingests a single call and enqueues insight extraction.
func (r *Router) handleCreateCall(w http.ResponseWriter, req *http.Request) {
	var body callRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if msg := body.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	exists, err := r.store.CallExists(req.Context(), body.CallID)
	if err != nil {
		r.logger.Printf("calls: existence check failed for %s: %v", body.CallID, err)
		captureError(req, err, "calls: existence check failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	if exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "call with this call_id already exists",
		})
		return
	}

	if err := r.store.CreateCall(req.Context(), body.toStore()); err != nil {
		r.logger.Printf("calls: create failed for %s: %v", body.CallID, err)
		captureError(req, err, "calls: create failed")
		http.Error(w, `{"error": "failed to create call"}`, http.StatusInternalServerError)
		return
	}

	r.eventLog.LogAsync(body.CallID, eventlog.EventCallIngested, map[string]any{
		"agent_id": body.AgentID,
	})
	r.enqueueProcessing(req, body.CallID)

	call, err := r.store.GetCall(req.Context(), body.CallID)
	if err != nil {
		http.Error(w, `{"error": "failed to load created call"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

// handleCreateCallsBulk ingests a batch atomically. Either every call is
// recorded or none are.
func (r *Router) handleCreateCallsBulk(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Calls []callRequest `json:"calls"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if len(body.Calls) == 0 {
		http.Error(w, `{"error": "calls must not be empty"}`, http.StatusBadRequest)
		return
	}

	calls := make([]store.Call, 0, len(body.Calls))
	for i, c := range body.Calls {
		if msg := c.validate(); msg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": msg, "index": i,
			})
			return
		}
		calls = append(calls, c.toStore())
	}

	if err := r.store.CreateCallsBulk(req.Context(), calls); err != nil {
		r.logger.Printf("calls: bulk create of %d calls failed: %v", len(calls), err)
		captureError(req, err, "calls: bulk create failed")
		http.Error(w, `{"error": "failed to create calls"}`, http.StatusInternalServerError)
		return
	}

	for _, c := range calls {
		r.eventLog.LogAsync(c.CallID, eventlog.EventCallIngested, map[string]any{
			"agent_id": c.AgentID,
			"bulk":     true,
		})
		r.enqueueProcessing(req, c.CallID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"created": len(calls)})
}

// invalidateLeaderboard drops the cached agent aggregates after a metrics
// write so dashboards never serve numbers older than the write.
func (r *Router) invalidateLeaderboard() {
	if r.leaderboard != nil {
		r.leaderboard.Invalidate()
	}
}

// enqueueProcessing hands a call to the extraction queue. A missing or
// failing queue is tolerated; the background sweep picks the call up later.
func (r *Router) enqueueProcessing(req *http.Request, callID string) {
	if r.queue == nil {
		return
	}
	if err := r.queue.PublishProcess(req.Context(), callID); err != nil {
		r.logger.Printf("calls: failed to enqueue processing for %s: %v", callID, err)
	}
}

func parseCallFilter(req *http.Request) (store.CallFilter, error) {
	q := req.URL.Query()
	f := store.CallFilter{
		AgentID: q.Get("agent_id"),
		Limit:   50,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	if v := q.Get("from_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("from_date must be RFC3339")
		}
		f.From = &t
	}
	if v := q.Get("to_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("to_date must be RFC3339")
		}
		f.To = &t
	}
	if v := q.Get("min_sentiment"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errors.New("min_sentiment must be a number")
		}
		f.MinSentiment = &s
	}
	if v := q.Get("max_sentiment"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errors.New("max_sentiment must be a number")
		}
		f.MaxSentiment = &s
	}
	return f, nil
}

func (r *Router) handleListCalls(w http.ResponseWriter, req *http.Request) {
	filter, err := parseCallFilter(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	calls, err := r.store.ListCalls(req.Context(), filter)
	if err != nil {
		r.logger.Printf("calls: list failed: %v", err)
		captureError(req, err, "calls: list failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"calls":  calls,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (r *Router) handleGetCall(w http.ResponseWriter, req *http.Request) {
	callID := req.PathValue("callID")

	call, err := r.store.GetCall(req.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "call not found"})
			return
		}
		r.logger.Printf("calls: get %s failed: %v", callID, err)
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, call)
}

// handleUpdateCall overwrites stored metrics by hand. Only the fields present
// in the body change; re-processing later overwrites them again
// (last-write-wins).
func (r *Router) handleUpdateCall(w http.ResponseWriter, req *http.Request) {
	callID := req.PathValue("callID")

	var body struct {
		AgentTalkRatio         *float64  `json:"agent_talk_ratio"`
		CustomerSentimentScore *float64  `json:"customer_sentiment_score"`
		Embedding              []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.AgentTalkRatio == nil && body.CustomerSentimentScore == nil && body.Embedding == nil {
		http.Error(w, `{"error": "no fields to update"}`, http.StatusBadRequest)
		return
	}
	if body.CustomerSentimentScore != nil && (*body.CustomerSentimentScore < -1 || *body.CustomerSentimentScore > 1) {
		http.Error(w, `{"error": "customer_sentiment_score must be in [-1, 1]"}`, http.StatusBadRequest)
		return
	}
	if body.AgentTalkRatio != nil && (*body.AgentTalkRatio < 0 || *body.AgentTalkRatio > 1) {
		http.Error(w, `{"error": "agent_talk_ratio must be in [0, 1]"}`, http.StatusBadRequest)
		return
	}

	err := r.store.UpdateMetrics(req.Context(), callID, body.AgentTalkRatio, body.CustomerSentimentScore, body.Embedding)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "call not found"})
			return
		}
		r.logger.Printf("calls: update %s failed: %v", callID, err)
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	r.invalidateLeaderboard()

	call, err := r.store.GetCall(req.Context(), callID)
	if err != nil {
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// handleProcessCall runs insight extraction synchronously for one call.
func (r *Router) handleProcessCall(w http.ResponseWriter, req *http.Request) {
	callID := req.PathValue("callID")

	call, err := r.store.GetCall(req.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "call not found"})
			return
		}
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	r.eventLog.LogAsync(callID, eventlog.EventInsightsStarted, nil)
	m := r.insights.ExtractAll(req.Context(), call.Transcript)
	for _, stage := range m.Faults {
		r.eventLog.LogAsync(callID, eventlog.EventModelFault, map[string]any{"stage": stage})
	}

	err = r.store.SaveMetrics(req.Context(), callID, store.CallMetrics{
		AgentTalkRatio:         m.AgentTalkRatio,
		CustomerSentimentScore: m.CustomerSentimentScore,
		Embedding:              m.Embedding,
	})
	if err != nil {
		r.logger.Printf("calls: saving metrics for %s failed: %v", callID, err)
		captureError(req, err, "calls: metrics save failed")
		http.Error(w, `{"error": "failed to save metrics"}`, http.StatusInternalServerError)
		return
	}
	r.invalidateLeaderboard()

	r.eventLog.LogAsync(callID, eventlog.EventInsightsCompleted, map[string]any{
		"agent_talk_ratio": m.AgentTalkRatio,
		"sentiment_score":  m.CustomerSentimentScore,
		"embedding_dims":   len(m.Embedding),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"call_id":                  callID,
		"agent_talk_ratio":         m.AgentTalkRatio,
		"customer_sentiment_score": m.CustomerSentimentScore,
		"embedding_dims":           len(m.Embedding),
	})
}

type similarCall struct {
	CallID          string   `json:"call_id"`
	AgentID         string   `json:"agent_id"`
	SimilarityScore float64  `json:"similarity_score"`
	SentimentScore  *float64 `json:"customer_sentiment_score"`
	StartTime       string   `json:"start_time"`
}

// handleRecommendations returns the nearest calls by transcript embedding
// plus a coaching triple. A call without an embedding is a client error, not
// a missing resource: the call exists but has not been processed yet.
func (r *Router) handleRecommendations(w http.ResponseWriter, req *http.Request) {
	callID := req.PathValue("callID")

	call, err := r.store.GetCall(req.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "call not found"})
			return
		}
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	if len(call.Embedding) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "embeddings not available for this call",
		})
		return
	}

	stored, err := r.store.ListCandidates(req.Context(), callID)
	if err != nil {
		r.logger.Printf("calls: candidate listing for %s failed: %v", callID, err)
		captureError(req, err, "calls: candidate listing failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	candidates := make([]insights.Candidate, 0, len(stored))
	for _, c := range stored {
		candidates = append(candidates, insights.Candidate{
			CallID:         c.CallID,
			AgentID:        c.AgentID,
			Embedding:      c.Embedding,
			SentimentScore: c.SentimentScore,
			StartTime:      c.StartTime,
		})
	}

	ranked := insights.Rank(call.Embedding, candidates, similarCallCount)
	suggestions := insights.SelectSuggestions(req.Context(), r.recommender, callID, ranked, r.logger)

	similar := make([]similarCall, 0, len(ranked))
	for _, rc := range ranked {
		similar = append(similar, similarCall{
			CallID:          rc.CallID,
			AgentID:         rc.AgentID,
			SimilarityScore: rc.Similarity,
			SentimentScore:  rc.SentimentScore,
			StartTime:       rc.StartTime.Format(time.RFC3339),
		})
	}

	r.eventLog.LogAsync(callID, eventlog.EventRecommendationsServed, map[string]any{
		"similar_calls": len(similar),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"call_id":           callID,
		"similar_calls":     similar,
		"coaching_nudges":   suggestions,
		"generation_method": r.recommender.Method(),
	})
}
