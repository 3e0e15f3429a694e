// Package transcribe converts hosted audio into timestamped transcripts.
package transcribe

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

	"github.com/goonidz/purple-sub000/internal/domain"
)

const defaultClientTimeout = 5 * time.Minute

// Options configures a transcription client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client calls the transcription endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient validates options and builds a Client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("transcribe: base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{baseURL: baseURL, apiKey: opts.APIKey, client: client}, nil
}

type transcribeRequest struct {
	AudioURL   string `json:"audio_url"`
	Timestamps bool   `json:"timestamps"`
}

type transcribeResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
	Error string `json:"error,omitempty"`
}

// Transcribe submits a hosted audio file and returns the transcript with
// per-segment timestamps.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (*domain.Transcript, error) {
	if strings.TrimSpace(audioURL) == "" {
		return nil, errors.New("transcribe: audio url is required")
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(transcribeRequest{AudioURL: audioURL, Timestamps: true}); err != nil {
		return nil, fmt.Errorf("transcribe: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("transcribe: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcribe: request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("transcribe: decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("transcribe: api error: %s", decoded.Error)
	}
	if len(decoded.Segments) == 0 && strings.TrimSpace(decoded.Text) == "" {
		return nil, errors.New("transcribe: empty transcript")
	}

	transcript := &domain.Transcript{}
	for _, seg := range decoded.Segments {
		transcript.Segments = append(transcript.Segments, domain.TranscriptSegment{
			Text:  seg.Text,
			Start: seg.Start,
			End:   seg.End,
		})
	}
	if len(transcript.Segments) == 0 {
		// Some backends return plain text without timestamps.
		transcript.Segments = append(transcript.Segments, domain.TranscriptSegment{Text: decoded.Text})
	}
	return transcript, nil
}
