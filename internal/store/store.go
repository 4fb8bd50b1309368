package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested call does not exist.
var ErrNotFound = pgx.ErrNoRows

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Call is one recorded call-center conversation. The metric fields are nil
// until insight extraction has run; re-processing overwrites them
// (last-write-wins, no versioning).
type Call struct {
	ID                     string    `json:"id,omitempty"`
	CallID                 string    `json:"call_id"`
	AgentID                string    `json:"agent_id"`
	CustomerID             string    `json:"customer_id"`
	Language               string    `json:"language"`
	StartTime              time.Time `json:"start_time"`
	DurationSeconds        int       `json:"duration_seconds"`
	Transcript             string    `json:"transcript"`
	AgentTalkRatio         *float64  `json:"agent_talk_ratio,omitempty"`
	CustomerSentimentScore *float64  `json:"customer_sentiment_score,omitempty"`
	Embedding              []float64 `json:"embedding,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// CallMetrics is the insight payload written back after extraction.
type CallMetrics struct {
	AgentTalkRatio         float64
	CustomerSentimentScore float64
	Embedding              []float64
}

// Candidate is the similarity-search projection of a call. Embedding may be
// nil when the call has not been processed.
type Candidate struct {
	CallID         string
	AgentID        string
	Embedding      []float64
	SentimentScore *float64
	StartTime      time.Time
}

// CallFilter narrows ListCalls. Zero values mean "no constraint"; Limit is
// capped by the handler, not here.
type CallFilter struct {
	AgentID      string
	From         *time.Time
	To           *time.Time
	MinSentiment *float64
	MaxSentiment *float64
	Limit        int
	Offset       int
}

// AgentStats is one leaderboard row. Averages are nil when an agent has no
// processed calls yet.
type AgentStats struct {
	AgentID      string   `json:"agent_id"`
	TotalCalls   int      `json:"total_calls"`
	AvgSentiment *float64 `json:"avg_sentiment"`
	AvgTalkRatio *float64 `json:"avg_talk_ratio"`
}

// CallExists reports whether a call with this external call ID is recorded.
func (s *Store) CallExists(ctx context.Context, callID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM calls WHERE call_id = $1)
	`, callID).Scan(&exists)
	return exists, err
}

// CreateCall inserts a new call record.
func (s *Store) CreateCall(ctx context.Context, c Call) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO calls (id, call_id, agent_id, customer_id, language, start_time, duration_seconds, transcript)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
	`, c.CallID, c.AgentID, c.CustomerID, c.Language, c.StartTime, c.DurationSeconds, c.Transcript)
	return err
}

// CreateCallsBulk inserts several calls in one transaction. Either all rows
// land or none do.
func (s *Store) CreateCallsBulk(ctx context.Context, calls []Call) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range calls {
		_, err := tx.Exec(ctx, `
			INSERT INTO calls (id, call_id, agent_id, customer_id, language, start_time, duration_seconds, transcript)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		`, c.CallID, c.AgentID, c.CustomerID, c.Language, c.StartTime, c.DurationSeconds, c.Transcript)
		if err != nil {
			return fmt.Errorf("insert call %s: %w", c.CallID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetCall fetches a single call by its external call ID. Returns ErrNotFound
// when no such call exists.
func (s *Store) GetCall(ctx context.Context, callID string) (*Call, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, call_id, agent_id, customer_id, language, start_time, duration_seconds,
		       transcript, agent_talk_ratio, customer_sentiment_score, embedding, created_at, updated_at
		FROM calls
		WHERE call_id = $1
	`, callID)
	return scanCall(row)
}

// ListCalls returns calls matching the filter, newest first.
func (s *Store) ListCalls(ctx context.Context, f CallFilter) ([]Call, error) {
	query := `
		SELECT id, call_id, agent_id, customer_id, language, start_time, duration_seconds,
		       transcript, agent_talk_ratio, customer_sentiment_score, embedding, created_at, updated_at
		FROM calls
		WHERE 1=1`
	var args []any

	if f.AgentID != "" {
		args = append(args, f.AgentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND start_time <= $%d", len(args))
	}
	if f.MinSentiment != nil {
		args = append(args, *f.MinSentiment)
		query += fmt.Sprintf(" AND customer_sentiment_score >= $%d", len(args))
	}
	if f.MaxSentiment != nil {
		args = append(args, *f.MaxSentiment)
		query += fmt.Sprintf(" AND customer_sentiment_score <= $%d", len(args))
	}

	query += " ORDER BY start_time DESC"
	args = append(args, f.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SaveMetrics writes the derived insight metrics onto a call. A nil/empty
// embedding is stored as SQL NULL so unprocessed and failed embeddings look
// the same to ranking: absent.
func (s *Store) SaveMetrics(ctx context.Context, callID string, m CallMetrics) error {
	embJSON, err := marshalEmbedding(m.Embedding)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE calls
		SET agent_talk_ratio = $1,
		    customer_sentiment_score = $2,
		    embedding = $3,
		    updated_at = now()
		WHERE call_id = $4
	`, m.AgentTalkRatio, m.CustomerSentimentScore, embJSON, callID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMetrics applies a partial manual metric update. Nil fields are left
// untouched.
func (s *Store) UpdateMetrics(ctx context.Context, callID string, talkRatio, sentiment *float64, embedding []float64) error {
	var embJSON []byte
	if embedding != nil {
		var err error
		embJSON, err = marshalEmbedding(embedding)
		if err != nil {
			return err
		}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE calls
		SET agent_talk_ratio = COALESCE($1, agent_talk_ratio),
		    customer_sentiment_score = COALESCE($2, customer_sentiment_score),
		    embedding = COALESCE($3, embedding),
		    updated_at = now()
		WHERE call_id = $4
	`, talkRatio, sentiment, embJSON, callID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCandidates returns the similarity projection of every call except the
// excluded one. Calls without an embedding are included; the ranker filters
// them out so "unknown" is never scored.
func (s *Store) ListCandidates(ctx context.Context, excludeCallID string) ([]Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT call_id, agent_id, embedding, customer_sentiment_score, start_time
		FROM calls
		WHERE call_id != $1
		ORDER BY created_at
	`, excludeCallID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var embJSON []byte
		if err := rows.Scan(&c.CallID, &c.AgentID, &embJSON, &c.SentimentScore, &c.StartTime); err != nil {
			return nil, err
		}
		if c.Embedding, err = unmarshalEmbedding(embJSON); err != nil {
			return nil, fmt.Errorf("call %s: %w", c.CallID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListUnprocessed returns calls still missing one or more insight metrics,
// oldest first, for the background sweep.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]Call, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, call_id, agent_id, customer_id, language, start_time, duration_seconds,
		       transcript, agent_talk_ratio, customer_sentiment_score, embedding, created_at, updated_at
		FROM calls
		WHERE agent_talk_ratio IS NULL
		   OR customer_sentiment_score IS NULL
		   OR embedding IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AgentLeaderboard aggregates per-agent call counts and metric averages,
// best average sentiment first. Agents whose calls are all unprocessed sort
// last.
func (s *Store) AgentLeaderboard(ctx context.Context) ([]AgentStats, error) {
	rows, err := s.db.Query(ctx, `
		SELECT agent_id,
		       COUNT(*) AS total_calls,
		       AVG(customer_sentiment_score) AS avg_sentiment,
		       AVG(agent_talk_ratio) AS avg_talk_ratio
		FROM calls
		GROUP BY agent_id
		ORDER BY avg_sentiment DESC NULLS LAST, agent_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentStats
	for rows.Next() {
		var a AgentStats
		if err := rows.Scan(&a.AgentID, &a.TotalCalls, &a.AvgSentiment, &a.AvgTalkRatio); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*Call, error) {
	var c Call
	var embJSON []byte
	err := row.Scan(
		&c.ID, &c.CallID, &c.AgentID, &c.CustomerID, &c.Language, &c.StartTime,
		&c.DurationSeconds, &c.Transcript, &c.AgentTalkRatio, &c.CustomerSentimentScore,
		&embJSON, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Embedding, err = unmarshalEmbedding(embJSON); err != nil {
		return nil, fmt.Errorf("call %s: %w", c.CallID, err)
	}
	return &c, nil
}

// marshalEmbedding encodes an embedding as JSON for the jsonb column; empty
// vectors become NULL.
func marshalEmbedding(vec []float64) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return b, nil
}

func unmarshalEmbedding(raw []byte) ([]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return vec, nil
}
