package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maraichr/pictor/internal/config"
)

const (
	defaultOpenRouterModel   = "openai/gpt-4o-mini"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	openRouterMaxRetries     = 3
	openRouterRetryDelay     = 2 * time.Second
	captionMaxTokens         = 512
)

const captionPrompt = `Describe this image in one or two sentences, then list 3-8 short lowercase tags.
Respond with JSON only, no prose around it: {"description": "...", "tags": ["...", "..."]}`

// OpenRouterClient implements Captioner using the OpenAI-compatible
// OpenRouter chat completions API with image input.
type OpenRouterClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewOpenRouterClient creates a new OpenRouter caption client.
func NewOpenRouterClient(cfg config.OpenRouterConfig) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenRouterModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	} else {
		baseURL = strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(baseURL, "/chat/completions") {
			baseURL += "/chat/completions"
		}
	}

	return &OpenRouterClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
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

// Caption sends the image URL to the model and parses the JSON reply.
func (c *OpenRouterClient) Caption(ctx context.Context, imageURL, styleHint string) (*Result, error) {
	prompt := captionPrompt
	if styleHint != "" {
		prompt += "\nStyle hint: " + styleHint
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageRef{URL: imageURL}},
			},
		}},
		MaxTokens: captionMaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < openRouterMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(openRouterRetryDelay * time.Duration(attempt)):
			}
		}

		result, err := c.doRequest(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		errStr := err.Error()
		if !strings.Contains(errStr, "status 429") &&
			!strings.Contains(errStr, "status 529") &&
			!strings.Contains(errStr, "status 503") {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d retries: %w", openRouterMaxRetries, lastErr)
}

func (c *OpenRouterClient) doRequest(ctx context.Context, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("caption API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("caption error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("caption model returned no choices")
	}

	return parseResult(result.Choices[0].Message.Content)
}

// parseResult extracts the {description, tags} JSON from the model reply,
// tolerating markdown code fences around it.
func parseResult(content string) (*Result, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var r Result
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("unmarshal caption result: %w", err)
	}
	if r.Description == "" {
		return nil, fmt.Errorf("caption model returned empty description")
	}
	return &r, nil
}

// ModelID returns the model identifier.
func (c *OpenRouterClient) ModelID() string {
	return c.model
}
