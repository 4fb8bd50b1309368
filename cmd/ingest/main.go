package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/jsadleir/callscope/internal/app"
	"github.com/jsadleir/callscope/internal/ingest"
	"github.com/jsadleir/callscope/internal/queue"
	"github.com/jsadleir/callscope/internal/store"
)

const batchSize = 100

func main() {
	count := flag.Int("count", 200, "number of synthetic calls to generate")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	enqueue := flag.Bool("enqueue", false, "publish extraction tasks for generated calls")
	flag.Parse()

	_ = godotenv.Load()
	cfg := app.LoadConfigFromEnv()

	logger := log.New(os.Stdout, "ingest: ", log.LstdFlags)

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		logger.Fatalf("ping database: %v", err)
	}
	s := store.New(db)

	var q *queue.Client
	if *enqueue {
		if cfg.AMQPURL == "" {
			logger.Fatal("-enqueue requires AMQP_URL")
		}
		q, err = queue.Dial(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatalf("connect to rabbitmq: %v", err)
		}
		defer q.Close()
	}

	logger.Printf("generating %d synthetic calls (seed=%d)", *count, *seed)
	calls := ingest.NewGenerator(*seed).Generate(*count)

	inserted := 0
	for start := 0; start < len(calls); start += batchSize {
		end := start + batchSize
		if end > len(calls) {
			end = len(calls)
		}
		if err := s.CreateCallsBulk(ctx, calls[start:end]); err != nil {
			logger.Fatalf("bulk insert batch starting at %d: %v", start, err)
		}
		inserted += end - start
	}
	logger.Printf("inserted %d calls", inserted)

	if q != nil {
		for _, c := range calls {
			if err := q.PublishProcess(ctx, c.CallID); err != nil {
				logger.Printf("enqueue %s failed: %v", c.CallID, err)
			}
		}
		logger.Printf("enqueued %d extraction tasks", len(calls))
	}
}
