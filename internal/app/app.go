package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jsadleir/callscope/internal/ai"
	"github.com/jsadleir/callscope/internal/analytics"
	"github.com/jsadleir/callscope/internal/eventlog"
	"github.com/jsadleir/callscope/internal/httpapi"
	"github.com/jsadleir/callscope/internal/insights"
	"github.com/jsadleir/callscope/internal/jobs"
	"github.com/jsadleir/callscope/internal/queue"
	"github.com/jsadleir/callscope/internal/store"
	"github.com/jsadleir/callscope/internal/stream"
)

type App struct {
	cfg         Config
	logger      *log.Logger
	db          *pgxpool.Pool
	store       *store.Store
	eventLog    *eventlog.Logger
	insights    *insights.Service
	streamer    *stream.Streamer
	registry    *stream.Registry
	cache       *redis.Client
	queue       *queue.Client
	worker      *jobs.InsightsWorker
	leaderboard *analytics.Leaderboard
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := store.New(db)
	el := eventlog.New(db)

	// Migrations are applied externally by the CI deploy job (docker exec psql).
	// No automatic migration runner at startup.

	classifier := ai.NewSentimentClient(ai.SentimentConfig{
		Endpoint: cfg.SentimentEndpoint,
		APIKey:   cfg.SentimentAPIKey,
	})
	if cfg.SentimentEndpoint == "" {
		logger.Printf("Warning: SENTIMENT_ENDPOINT not set, sentiment scores degrade to neutral")
	}
	embedder := ai.NewOpenAIEmbedder(ai.OpenAIEmbedderConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.EmbeddingModel,
	})
	if cfg.OpenAIAPIKey == "" {
		logger.Printf("Warning: OPENAI_API_KEY not set, embeddings will be unavailable")
	}
	svc := insights.NewService(classifier, embedder, logger)

	registry := stream.NewRegistry(logger)
	registry.OnDrop(func(callID string) {
		el.LogAsync(callID, eventlog.EventListenerDropped, nil)
	})
	streamer := stream.NewStreamer(registry, cfg.StreamInterval, logger)

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := cache.Ping().Err(); err != nil {
			logger.Printf("Warning: redis unreachable, analytics caching disabled: %v", err)
			cache.Close()
			cache = nil
		}
	}

	var q *queue.Client
	if cfg.AMQPURL != "" {
		q, err = queue.Dial(cfg.AMQPURL, logger)
		if err != nil {
			logger.Printf("Warning: rabbitmq unreachable, extraction falls back to periodic sweep: %v", err)
			q = nil
		}
	}

	lb := analytics.NewLeaderboard(s, cache, cfg.AnalyticsTTL, logger)
	worker := jobs.NewInsightsWorker(s, svc, q, el, lb, logger, cfg.SweepInterval)

	return &App{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		store:       s,
		eventLog:    el,
		insights:    svc,
		streamer:    streamer,
		registry:    registry,
		cache:       cache,
		queue:       q,
		worker:      worker,
		leaderboard: lb,
	}, nil
}

func (a *App) Router(sessions *httpapi.SessionRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		JWTSecret: a.cfg.JWTSecret,
		JWTExpiry: a.cfg.JWTExpiry,
	}

	var recommender insights.Recommender = insights.CannedRecommender{}
	if a.cfg.RecommenderMode == "llm" && a.cfg.OpenAIAPIKey != "" {
		recommender = ai.NewLLMRecommender(ai.LLMRecommenderConfig{
			APIKey: a.cfg.OpenAIAPIKey,
			Model:  a.cfg.RecommenderModel,
		})
		a.logger.Printf("coaching suggestions via LLM")
	}

	return httpapi.NewRouter(routerCfg, a.logger, httpapi.Deps{
		Store:       a.store,
		EventLog:    a.eventLog,
		Insights:    a.insights,
		Recommender: recommender,
		Streamer:    a.streamer,
		Registry:    a.registry,
		Leaderboard: a.leaderboard,
		Queue:       a.queue,
		Sessions:    sessions,
	})
}

// StartWorker launches the background insight-extraction worker.
func (a *App) StartWorker() {
	a.worker.Start()
}

func (a *App) Close() error {
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
