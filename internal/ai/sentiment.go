package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jsadleir/callscope/internal/insights"
)

// SentimentClient scores text against a hosted sentiment model serving the
// negative/neutral/positive label set (an HF-style inference endpoint).
// Faults are returned to the caller, which degrades the score to neutral.
type SentimentClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// SentimentConfig holds configuration for the sentiment client.
type SentimentConfig struct {
	Endpoint   string // inference endpoint URL
	APIKey     string // optional bearer token
	HTTPClient *http.Client
}

func NewSentimentClient(cfg SentimentConfig) *SentimentClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &SentimentClient{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

type sentimentRequest struct {
	Inputs string `json:"inputs"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify returns the model's label distribution for text. The endpoint
// responds with a nested array of {label, score} entries, one inner array
// per input.
func (c *SentimentClient) Classify(ctx context.Context, text string) ([]insights.LabelScore, error) {
	body, err := json.Marshal(sentimentRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sentiment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sentiment endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var results [][]labelScore
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("sentiment response contained no results")
	}

	out := make([]insights.LabelScore, 0, len(results[0]))
	for _, ls := range results[0] {
		out = append(out, insights.LabelScore{Label: ls.Label, Score: ls.Score})
	}
	return out, nil
}
