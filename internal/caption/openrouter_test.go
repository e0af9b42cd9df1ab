package caption

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/maraichr/pictor/internal/config"
)

func TestNewOpenRouterClient_MissingAPIKey(t *testing.T) {
	_, err := NewOpenRouterClient(config.OpenRouterConfig{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewOpenRouterClient_Defaults(t *testing.T) {
	client, err := NewOpenRouterClient(config.OpenRouterConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	if client.model != defaultOpenRouterModel {
		t.Errorf("expected default model %s, got %s", defaultOpenRouterModel, client.model)
	}
	if client.baseURL != defaultOpenRouterBaseURL {
		t.Errorf("expected default base URL %s, got %s", defaultOpenRouterBaseURL, client.baseURL)
	}
}

func TestNewOpenRouterClient_BaseURLNormalization(t *testing.T) {
	client, err := NewOpenRouterClient(config.OpenRouterConfig{
		APIKey:  "sk-test",
		BaseURL: "http://localhost:9999/api/v1/",
	})
	if err != nil {
		t.Fatal(err)
	}
	if client.baseURL != "http://localhost:9999/api/v1/chat/completions" {
		t.Errorf("base URL = %s", client.baseURL)
	}
}

func chatReply(content string) chatResponse {
	var resp chatResponse
	resp.Choices = []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}{{}}
	resp.Choices[0].Message.Content = content
	return resp
}

func TestOpenRouterCaption_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing or wrong auth header")
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Fatalf("unexpected message shape: %+v", req.Messages)
		}
		img := req.Messages[0].Content[1]
		if img.Type != "image_url" || img.ImageURL == nil || img.ImageURL.URL != "http://blobs.test/x.jpg" {
			t.Errorf("image part = %+v", img)
		}

		json.NewEncoder(w).Encode(chatReply(`{"description": "a red bicycle", "tags": ["bicycle", "red"]}`))
	}))
	defer srv.Close()

	client, err := NewOpenRouterClient(config.OpenRouterConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	result, err := client.Caption(context.Background(), "http://blobs.test/x.jpg", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Description != "a red bicycle" {
		t.Errorf("description = %q", result.Description)
	}
	if len(result.Tags) != 2 {
		t.Errorf("tags = %v", result.Tags)
	}
}

func TestOpenRouterCaption_StyleHintAppended(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		text := req.Messages[0].Content[0].Text
		if want := "Style hint: noir"; !strings.Contains(text, want) {
			t.Errorf("prompt missing style hint: %q", text)
		}
		json.NewEncoder(w).Encode(chatReply(`{"description": "d", "tags": []}`))
	}))
	defer srv.Close()

	client, _ := NewOpenRouterClient(config.OpenRouterConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if _, err := client.Caption(context.Background(), "http://x/y.jpg", "noir"); err != nil {
		t.Fatal(err)
	}
}

func TestOpenRouterCaption_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(chatReply(`{"description": "eventually", "tags": ["ok"]}`))
	}))
	defer srv.Close()

	client, _ := NewOpenRouterClient(config.OpenRouterConfig{APIKey: "sk-test", BaseURL: srv.URL})
	result, err := client.Caption(context.Background(), "http://x/y.jpg", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Description != "eventually" {
		t.Errorf("description = %q", result.Description)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestOpenRouterCaption_NoRetryOn400(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client, _ := NewOpenRouterClient(config.OpenRouterConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if _, err := client.Caption(context.Background(), "http://x/y.jpg", ""); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (client errors are not retried)", calls.Load())
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain json", `{"description": "a dog", "tags": ["dog"]}`, "a dog", false},
		{"fenced json", "```json\n{\"description\": \"a cat\", \"tags\": []}\n```", "a cat", false},
		{"bare fence", "```\n{\"description\": \"a bird\", \"tags\": [\"bird\"]}\n```", "a bird", false},
		{"surrounding whitespace", "  {\"description\": \"x\", \"tags\": []}  ", "x", false},
		{"empty description", `{"description": "", "tags": ["a"]}`, "", true},
		{"not json", "a lovely picture of a sunset", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseResult(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if r.Description != tt.want {
				t.Errorf("description = %q, want %q", r.Description, tt.want)
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("owner/uuid/pic.jpg", "")
	b := CacheKey("owner/uuid/pic.jpg", "noir")
	c := CacheKey("owner/other/pic.jpg", "")

	if a == b {
		t.Error("style hint must change the key")
	}
	if a == c {
		t.Error("object path must change the key")
	}
	if a != CacheKey("owner/uuid/pic.jpg", "") {
		t.Error("key must be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestNewCaptioner_Selection(t *testing.T) {
	// No provider configured: captioning disabled, not an error.
	c, err := NewCaptioner(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatal("expected nil captioner with no provider configured")
	}

	// OpenRouter wins when its key is set.
	cfg := &config.Config{}
	cfg.OpenRouter.APIKey = "sk-test"
	cfg.Bedrock.Region = "us-east-1"
	c, err = NewCaptioner(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*OpenRouterClient); !ok {
		t.Fatalf("selected %T, want *OpenRouterClient", c)
	}
}
