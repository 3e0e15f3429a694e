// Package prompt generates image prompts and project summaries through a
// chat-completion style LLM endpoint.
package prompt

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

const defaultClientTimeout = 90 * time.Second

const defaultSystemPrompt = `You write a single vivid, concrete image generation prompt for a scene of a narrated video. Describe what should be visible in the frame. Reply with the prompt only, no preamble and no quotes.`

const summarySystemPrompt = `You summarise video transcripts. Reply with a short paragraph capturing the subject, tone and visual setting of the video. Reply with the summary only.`

const thumbnailSystemPrompt = `You write image generation prompts for video thumbnails. Given a video title and script, reply with a JSON array of exactly 3 distinct thumbnail prompt strings and nothing else.`

// Options configures a prompt client.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client calls the LLM chat endpoint.
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
		return nil, errors.New("prompt: base url is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
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

// SceneRequest carries everything the model needs to write one scene prompt.
type SceneRequest struct {
	Scene              string
	Summary            string
	ExamplePrompts     string
	SceneIndex         int
	TotalScenes        int
	StartTime          float64
	EndTime            float64
	CustomSystemPrompt string
	PreviousPrompts    []string
}

// GeneratePrompt writes one image prompt for a scene.
func (c *Client) GeneratePrompt(ctx context.Context, req SceneRequest) (string, error) {
	if strings.TrimSpace(req.Scene) == "" {
		return "", errors.New("prompt: scene text is required")
	}
	system := req.CustomSystemPrompt
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Scene %d of %d (%.1fs - %.1fs):\n%s\n", req.SceneIndex+1, req.TotalScenes, req.StartTime, req.EndTime, req.Scene)
	if req.Summary != "" {
		fmt.Fprintf(&sb, "\nVideo summary:\n%s\n", req.Summary)
	}
	if req.ExamplePrompts != "" {
		fmt.Fprintf(&sb, "\nStyle examples:\n%s\n", req.ExamplePrompts)
	}
	if len(req.PreviousPrompts) > 0 {
		sb.WriteString("\nPrompts of the preceding scenes, keep visual continuity with them:\n")
		for _, p := range req.PreviousPrompts {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	out, err := c.complete(ctx, system, sb.String())
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("prompt: empty completion")
	}
	return out, nil
}

// GenerateSummary summarises a full transcript.
func (c *Client) GenerateSummary(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New("prompt: transcript is required")
	}
	out, err := c.complete(ctx, summarySystemPrompt, transcript)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ThumbnailPromptRequest carries the inputs for thumbnail ideation.
type ThumbnailPromptRequest struct {
	VideoTitle   string
	VideoScript  string
	CustomPrompt string
}

// GenerateThumbnailPrompts asks for exactly three thumbnail prompt ideas.
func (c *Client) GenerateThumbnailPrompts(ctx context.Context, req ThumbnailPromptRequest) ([]string, error) {
	system := thumbnailSystemPrompt
	if strings.TrimSpace(req.CustomPrompt) != "" {
		system = system + "\nAdditional instructions: " + req.CustomPrompt
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Video title: %s\n", req.VideoTitle)
	if req.VideoScript != "" {
		fmt.Fprintf(&sb, "\nScript:\n%s\n", req.VideoScript)
	}
	out, err := c.complete(ctx, system, sb.String())
	if err != nil {
		return nil, err
	}
	prompts, err := parsePromptList(out)
	if err != nil {
		return nil, err
	}
	if len(prompts) != 3 {
		return nil, fmt.Errorf("prompt: expected 3 thumbnail prompts, got %d", len(prompts))
	}
	return prompts, nil
}

// parsePromptList decodes a JSON array of strings, tolerating code fences.
func parsePromptList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	var prompts []string
	if err := json.Unmarshal([]byte(raw), &prompts); err != nil {
		return nil, fmt.Errorf("prompt: parse thumbnail prompts: %w", err)
	}
	out := prompts[:0]
	for _, p := range prompts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("prompt: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", fmt.Errorf("prompt: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("prompt: request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("prompt: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("prompt: decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("prompt: api error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("prompt: no completion choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
