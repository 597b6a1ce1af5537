package inference

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"SignalPipeline/internal/domain"
	"SignalPipeline/internal/ports"
)

// Client scores occurrence windows against a remote sentiment inference
// service. Teams select it with sentimentMethod "remote"; the default lexicon
// scorer stays the deterministic fallback.
type Client struct {
	http *resty.Client
}

var _ ports.SentimentScorer = (*Client)(nil)

// NewClient creates a reusable HTTP client for the inference endpoint.
func NewClient(endpoint, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c}
}

func (*Client) Name() string { return "remote" }

type inferenceInput struct {
	Inputs []string `json:"inputs"`
}

type inferenceOutput struct {
	Score     float64 `json:"score"`
	Magnitude float64 `json:"magnitude"`
}

// Score posts one occurrence window and returns its polarity sample.
func (c *Client) Score(ctx context.Context, text string) (domain.SentimentSample, error) {
	var outputs []inferenceOutput
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(inferenceInput{Inputs: []string{text}}).
		SetResult(&outputs).
		Post("/sentiment")
	if err != nil {
		return domain.SentimentSample{}, fmt.Errorf("sentiment inference: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return domain.SentimentSample{}, fmt.Errorf("sentiment inference: unexpected status %s", resp.Status())
	}
	if len(outputs) == 0 {
		return domain.SentimentSample{}, fmt.Errorf("sentiment inference: empty response")
	}

	sample := domain.SentimentSample{Score: outputs[0].Score, Magnitude: outputs[0].Magnitude}
	if sample.Score > 1 {
		sample.Score = 1
	}
	if sample.Score < -1 {
		sample.Score = -1
	}
	if sample.Magnitude > 1 {
		sample.Magnitude = 1
	}
	if sample.Magnitude < 0 {
		sample.Magnitude = 0
	}
	return sample, nil
}
