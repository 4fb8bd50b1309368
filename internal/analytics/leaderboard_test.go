package analytics

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jsadleir/callscope/internal/store"
)

func getTestDeps(t *testing.T) (*store.Store, *redis.Client) {
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
	t.Cleanup(db.Close)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	cache := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := cache.Ping().Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	t.Cleanup(func() {
		cache.Del(leaderboardKey)
		cache.Close()
	})

	return store.New(db), cache
}

func TestAgentsCachesResult(t *testing.T) {
	st, cache := getTestDeps(t)
	logger := log.New(os.Stderr, "", 0)
	lb := NewLeaderboard(st, cache, time.Minute, logger)

	cache.Del(leaderboardKey)

	first, err := lb.Agents(context.Background())
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if err := cache.Get(leaderboardKey).Err(); err != nil {
		t.Fatalf("expected leaderboard cached after read, got %v", err)
	}

	second, err := lb.Agents(context.Background())
	if err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("cached read returned %d entries, want %d", len(second), len(first))
	}
}

func TestAgentsCorruptCacheFallsBack(t *testing.T) {
	st, cache := getTestDeps(t)
	logger := log.New(os.Stderr, "", 0)
	lb := NewLeaderboard(st, cache, time.Minute, logger)

	if err := cache.Set(leaderboardKey, "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}
	if _, err := lb.Agents(context.Background()); err != nil {
		t.Fatalf("expected fallback to db, got %v", err)
	}
}

func TestInvalidateDropsKey(t *testing.T) {
	st, cache := getTestDeps(t)
	logger := log.New(os.Stderr, "", 0)
	lb := NewLeaderboard(st, cache, time.Minute, logger)

	if _, err := lb.Agents(context.Background()); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	lb.Invalidate()
	if err := cache.Get(leaderboardKey).Err(); err != redis.Nil {
		t.Errorf("expected key deleted, got %v", err)
	}
}

func TestAgentsNilCache(t *testing.T) {
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
	defer db.Close()

	lb := NewLeaderboard(store.New(db), nil, time.Minute, log.New(os.Stderr, "", 0))
	if _, err := lb.Agents(context.Background()); err != nil {
		t.Fatalf("nil-cache read: %v", err)
	}
}
