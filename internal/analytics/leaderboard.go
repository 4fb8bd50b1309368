package analytics

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis"

	"github.com/jsadleir/callscope/internal/store"
)

const leaderboardKey = "analytics:agents"

// Leaderboard serves per-agent aggregates, caching the aggregation result
// in Redis so repeated dashboard loads do not hit Postgres each time.
type Leaderboard struct {
	store  *store.Store
	cache  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewLeaderboard builds a leaderboard service. cache may be nil, in which
// case every request aggregates from the database directly.
func NewLeaderboard(st *store.Store, cache *redis.Client, ttl time.Duration, logger *log.Logger) *Leaderboard {
	return &Leaderboard{store: st, cache: cache, ttl: ttl, logger: logger}
}

// Agents returns the per-agent stats, preferring the cached copy. Cache
// failures fall through to the database rather than failing the request.
func (l *Leaderboard) Agents(ctx context.Context) ([]store.AgentStats, error) {
	if l.cache != nil {
		raw, err := l.cache.Get(leaderboardKey).Result()
		if err == nil {
			var stats []store.AgentStats
			if err := json.Unmarshal([]byte(raw), &stats); err == nil {
				return stats, nil
			}
			l.logger.Printf("analytics: discarding corrupt cache entry")
		} else if err != redis.Nil {
			l.logger.Printf("analytics: cache read failed: %v", err)
		}
	}

	stats, err := l.store.AgentLeaderboard(ctx)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := l.cache.Set(leaderboardKey, raw, l.ttl).Err(); err != nil {
				l.logger.Printf("analytics: cache write failed: %v", err)
			}
		}
	}
	return stats, nil
}

// Invalidate drops the cached leaderboard, forcing the next read to
// re-aggregate. Called after new metrics land.
func (l *Leaderboard) Invalidate() {
	if l.cache == nil {
		return
	}
	if err := l.cache.Del(leaderboardKey).Err(); err != nil {
		l.logger.Printf("analytics: cache invalidate failed: %v", err)
	}
}
