package prompt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newChatServer(t *testing.T, reply string, capture *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": reply}},
			},
		})
	}))
}

func TestGeneratePromptIncludesContext(t *testing.T) {
	var captured chatRequest
	srv := newChatServer(t, "  a foggy harbor at dawn  ", &captured)
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	out, err := c.GeneratePrompt(context.Background(), SceneRequest{
		Scene:           "Ships leave the harbor.",
		Summary:         "A documentary about fishing.",
		SceneIndex:      4,
		TotalScenes:     10,
		StartTime:       12.5,
		EndTime:         19.0,
		PreviousPrompts: []string{"stormy sea", "old lighthouse"},
	})
	if err != nil {
		t.Fatalf("GeneratePrompt returned error: %v", err)
	}
	if out != "a foggy harbor at dawn" {
		t.Fatalf("prompt = %q", out)
	}
	if captured.Model != "test-model" {
		t.Fatalf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(captured.Messages))
	}
	user := captured.Messages[1].Content
	for _, want := range []string{"Scene 5 of 10", "Ships leave the harbor.", "stormy sea", "old lighthouse", "A documentary about fishing."} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q", want)
		}
	}
}

func TestGeneratePromptUsesCustomSystemPrompt(t *testing.T) {
	var captured chatRequest
	srv := newChatServer(t, "ok", &captured)
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.GeneratePrompt(context.Background(), SceneRequest{
		Scene:              "Something happens.",
		CustomSystemPrompt: "Always answer in haiku.",
	}); err != nil {
		t.Fatalf("GeneratePrompt returned error: %v", err)
	}
	if captured.Messages[0].Content != "Always answer in haiku." {
		t.Fatalf("system prompt = %q", captured.Messages[0].Content)
	}
}

func TestGenerateThumbnailPromptsRequiresThree(t *testing.T) {
	srv := newChatServer(t, `["idea one","idea two"]`, nil)
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.GenerateThumbnailPrompts(context.Background(), ThumbnailPromptRequest{VideoTitle: "My Video"}); err == nil {
		t.Fatal("expected error for 2 prompts")
	}
}

func TestGenerateThumbnailPromptsTrimsCodeFence(t *testing.T) {
	srv := newChatServer(t, "```json\n[\"a\",\"b\",\"c\"]\n```", nil)
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	prompts, err := c.GenerateThumbnailPrompts(context.Background(), ThumbnailPromptRequest{VideoTitle: "My Video"})
	if err != nil {
		t.Fatalf("GenerateThumbnailPrompts returned error: %v", err)
	}
	if len(prompts) != 3 || prompts[0] != "a" || prompts[2] != "c" {
		t.Fatalf("prompts = %#v", prompts)
	}
}

func TestGenerateSummarySurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "quota exceeded"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.GenerateSummary(context.Background(), "some transcript"); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v, want quota error", err)
	}
}
