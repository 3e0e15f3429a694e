// Package image wraps the third-party image generation service behind its
// submit/poll prediction protocol: a generation request yields an opaque
// prediction id, whose status is checked until it reaches a terminal state.
package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	StatusStarting  = "starting"
	StatusQueued    = "queued"
	StatusRunning   = "processing"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

const defaultClientTimeout = 30 * time.Second

// Options configures a prediction API client.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client talks to the prediction API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient validates options and builds a Client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("image: base url is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "seedream-4.5"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		model:   model,
		client:  client,
	}, nil
}

// Model returns the default model identifier the client submits with.
func (c *Client) Model() string {
	return c.model
}

// GenerateRequest describes one image generation submission.
type GenerateRequest struct {
	Prompt    string   `json:"prompt"`
	Width     int      `json:"width,omitempty"`
	Height    int      `json:"height,omitempty"`
	Model     string   `json:"model,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// Prediction is the status document returned by the API for an in-flight or
// finished generation. Output may be a single URL or a list depending on the
// model.
type Prediction struct {
	ID     string          `json:"predictionId"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Terminal reports whether the prediction will not change state again.
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Succeeded reports terminal success.
func (p *Prediction) Succeeded() bool {
	return p.Status == StatusSucceeded
}

// FirstOutput returns the first artifact URL of the prediction output,
// decoding both the bare-string and list shapes.
func (p *Prediction) FirstOutput() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

// Submit starts a generation and returns the prediction id.
func (c *Client) Submit(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("image: prompt is required")
	}
	if req.Model == "" {
		req.Model = c.model
	}
	var pred Prediction
	if err := c.post(ctx, "/predictions", req, &pred); err != nil {
		return "", err
	}
	if pred.ID == "" {
		return "", errors.New("image: no prediction id returned")
	}
	return pred.ID, nil
}

// Check fetches the current status of a prediction.
func (c *Client) Check(ctx context.Context, predictionID string) (*Prediction, error) {
	if predictionID == "" {
		return nil, errors.New("image: prediction id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/predictions/"+predictionID, nil)
	if err != nil {
		return nil, fmt.Errorf("image: build request: %w", err)
	}
	c.setHeaders(httpReq)
	return c.do(httpReq)
}

func (c *Client) post(ctx context.Context, path string, payload any, out *Prediction) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("image: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("image: build request: %w", err)
	}
	c.setHeaders(httpReq)
	pred, err := c.do(httpReq)
	if err != nil {
		return err
	}
	*out = *pred
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(req *http.Request) (*Prediction, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image: request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("image: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("image: decode response: %w", err)
	}
	return &pred, nil
}
