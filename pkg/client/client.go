// Package client is a Go SDK for the render-judge HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a render-judge instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new render-judge client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// LevelSummary is one entry of the level listing.
type LevelSummary struct {
	Name      string  `json:"name"`
	Title     string  `json:"title,omitempty"`
	MaxPoints float64 `json:"maxPoints"`
	Scenarios int     `json:"scenarios"`
	Drawn     bool    `json:"drawn"`
}

// CodeBundle is the learner's working code for a level.
type CodeBundle struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

// Threshold is one accuracy milestone.
type Threshold struct {
	Accuracy      float64 `json:"accuracy"`
	PointsPercent float64 `json:"pointsPercent"`
}

// LevelScore is a level's current score state.
type LevelScore struct {
	LevelName string     `json:"levelName"`
	Accuracy  float64    `json:"accuracy"`
	Points    float64    `json:"points"`
	BestTime  *int64     `json:"bestTime,omitempty"`
	Milestone *Threshold `json:"nextMilestone,omitempty"`
}

// ScenarioResult is a scenario's latest comparison.
type ScenarioResult struct {
	ScenarioID string    `json:"scenarioId"`
	Available  bool      `json:"available"`
	Accuracy   float64   `json:"accuracy"`
	DiffImage  string    `json:"diffImage,omitempty"`
	ComputedAt time.Time `json:"computedAt"`
}

// Totals is the game-wide score state.
type Totals struct {
	AllPoints    float64 `json:"allPoints"`
	AllMaxPoints float64 `json:"allMaxPoints"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListLevels returns the level catalog.
func (c *Client) ListLevels(ctx context.Context) ([]LevelSummary, error) {
	var out []LevelSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/levels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActivateLevel makes a level current on the engine.
func (c *Client) ActivateLevel(ctx context.Context, level string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/levels/%s/activate", level), nil, nil)
}

// SubmitCode pushes the learner's working code for a level.
func (c *Client) SubmitCode(ctx context.Context, level string, code CodeBundle) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/levels/%s/code", level), code, nil)
}

// ResetLevel clears a level's captures and score state.
func (c *Client) ResetLevel(ctx context.Context, level string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/levels/%s/reset", level), nil, nil)
}

// LevelScore fetches a level's current score.
func (c *Client) LevelScore(ctx context.Context, level string) (*LevelScore, error) {
	var out LevelScore
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/levels/%s/score", level), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsLevelDrawn reports whether the level's reference material is complete.
func (c *Client) IsLevelDrawn(ctx context.Context, level string) (bool, error) {
	var out struct {
		Drawn bool `json:"drawn"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/levels/%s/drawn", level), nil, &out); err != nil {
		return false, err
	}
	return out.Drawn, nil
}

// ScenarioResult fetches a scenario's latest comparison.
func (c *Client) ScenarioResult(ctx context.Context, level, scenarioID string) (*ScenarioResult, error) {
	var out ScenarioResult
	path := fmt.Sprintf("/api/v1/levels/%s/scenarios/%s/result", level, scenarioID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Totals fetches the game-wide totals.
func (c *Client) Totals(ctx context.Context) (*Totals, error) {
	var out Totals
	if err := c.do(ctx, http.MethodGet, "/api/v1/score/totals", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs a request and unwraps the API envelope.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("api error %s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return nil
}
