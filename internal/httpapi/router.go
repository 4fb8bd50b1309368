package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jsadleir/callscope/internal/analytics"
	"github.com/jsadleir/callscope/internal/eventlog"
	"github.com/jsadleir/callscope/internal/insights"
	"github.com/jsadleir/callscope/internal/queue"
	"github.com/jsadleir/callscope/internal/store"
	"github.com/jsadleir/callscope/internal/stream"
)

type RouterConfig struct {
	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration
}

// Deps holds the services handlers dispatch to. Queue may be nil (ingest
// then relies on the background sweep) and Leaderboard may carry a nil
// cache.
type Deps struct {
	Store       *store.Store
	EventLog    *eventlog.Logger
	Insights    *insights.Service
	Recommender insights.Recommender
	Streamer    *stream.Streamer
	Registry    *stream.Registry
	Leaderboard *analytics.Leaderboard
	Queue       *queue.Client
	Sessions    *SessionRegistry
}

// callLookup is the slice of the store the stream handler needs. Keeping it
// narrow lets websocket tests run against a stub instead of Postgres.
type callLookup interface {
	GetCall(ctx context.Context, callID string) (*store.Call, error)
}

type Router struct {
	cfg         RouterConfig
	logger      *log.Logger
	store       *store.Store
	calls       callLookup
	eventLog    *eventlog.Logger
	insights    *insights.Service
	recommender insights.Recommender
	streamer    *stream.Streamer
	registry    *stream.Registry
	leaderboard *analytics.Leaderboard
	queue       *queue.Client
	sessions    *SessionRegistry
	users       *UserDirectory
	mux         *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, d Deps) http.Handler {
	r := &Router{
		cfg:         cfg,
		logger:      logger,
		store:       d.Store,
		calls:       d.Store,
		eventLog:    d.EventLog,
		insights:    d.Insights,
		recommender: d.Recommender,
		streamer:    d.Streamer,
		registry:    d.Registry,
		leaderboard: d.Leaderboard,
		queue:       d.Queue,
		sessions:    d.Sessions,
		users:       DefaultUserDirectory(),
		mux:         http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Auth endpoints
	r.mux.HandleFunc("POST /api/v1/auth/login", r.handleLogin)
	r.mux.HandleFunc("GET /api/v1/auth/me", r.withAuth(r.handleGetMe))

	// Call CRUD and insight extraction
	r.mux.HandleFunc("POST /api/v1/calls", r.withAuth(r.withManager(r.handleCreateCall)))
	r.mux.HandleFunc("POST /api/v1/calls/bulk", r.withAuth(r.withManager(r.handleCreateCallsBulk)))
	r.mux.HandleFunc("GET /api/v1/calls", r.withAuth(r.handleListCalls))
	r.mux.HandleFunc("GET /api/v1/calls/{callID}", r.withAuth(r.handleGetCall))
	r.mux.HandleFunc("PUT /api/v1/calls/{callID}", r.withAuth(r.withManager(r.handleUpdateCall)))
	r.mux.HandleFunc("POST /api/v1/calls/{callID}/process", r.withAuth(r.withManager(r.handleProcessCall)))
	r.mux.HandleFunc("GET /api/v1/calls/{callID}/recommendations", r.withAuth(r.handleRecommendations))

	// Analytics (manager only)
	r.mux.HandleFunc("GET /api/v1/analytics/agents", r.withAuth(r.withManager(r.handleAgentAnalytics)))

	// Real-time sentiment stream (token auth via query param)
	r.mux.HandleFunc("GET /ws/sentiment/{callID}", r.handleSentimentWS)
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports not-ready once draining starts so load balancers stop
// routing new stream connections here during shutdown.
func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions.IsDraining() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":           "draining",
			"active_sessions":  r.sessions.ActiveCount(),
			"sessions_by_call": r.sessions.Snapshot(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
