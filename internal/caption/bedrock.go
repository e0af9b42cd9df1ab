package caption

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/maraichr/pictor/internal/config"
)

const maxImageFetchBytes = 20 * 1024 * 1024 // Anthropic image size limit

// BedrockClient implements Captioner via AWS Bedrock. Bedrock cannot fetch
// remote URLs itself, so the image is downloaded and sent inline as base64.
type BedrockClient struct {
	bedrock *bedrockruntime.Client
	modelID string
	http    *http.Client
}

// NewBedrockClient creates a new Bedrock caption client.
func NewBedrockClient(cfg config.BedrockConfig) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg)
	return &BedrockClient{
		bedrock: client,
		modelID: cfg.ModelID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// anthropicRequest is the Anthropic messages API request format on Bedrock.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Caption downloads the image, invokes the model, and parses the JSON reply.
func (c *BedrockClient) Caption(ctx context.Context, imageURL, styleHint string) (*Result, error) {
	data, mediaType, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}

	prompt := captionPrompt
	if styleHint != "" {
		prompt += "\nStyle hint: " + styleHint
	}

	reqBody, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        captionMaxTokens,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicContent{
				{Type: "image", Source: &anthropicSource{
					Type:      "base64",
					MediaType: mediaType,
					Data:      base64.StdEncoding.EncodeToString(data),
				}},
				{Type: "text", Text: prompt},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	contentType := "application/json"
	resp, err := c.bedrock.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		ContentType: &contentType,
		Body:        reqBody,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}

	var result anthropicResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("caption model returned no content")
	}

	return parseResult(result.Content[0].Text)
}

func (c *BedrockClient) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d fetching image", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageFetchBytes))
	if err != nil {
		return nil, "", err
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return data, mediaType, nil
}

// ModelID returns the Bedrock model identifier.
func (c *BedrockClient) ModelID() string { return c.modelID }
