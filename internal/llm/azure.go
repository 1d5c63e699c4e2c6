package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// azureAPIVersion pins the chat-completions API revision the deployment
// was validated against.
const azureAPIVersion = "2023-03-15-preview"

// AzureClient implements Client against an Azure OpenAI chat-completions
// deployment.
type AzureClient struct {
	endpoint   string
	deployment string
	apiKey     string
	config     *Config
	httpClient *http.Client
}

// NewAzureClient creates a client for the configured Azure deployment.
func NewAzureClient(config *Config, apiKey string) (*AzureClient, error) {
	if config.AzureEndpoint == "" || config.AzureDeployment == "" {
		return nil, fmt.Errorf("azure endpoint and deployment are required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	return &AzureClient{
		endpoint:   config.AzureEndpoint,
		deployment: config.AzureDeployment,
		apiKey:     apiKey,
		config:     config,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// chatMessage is one turn in a chat-completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

// chatResponse is the subset of the chat-completions response we consume.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateContent sends the instruction as the system message and the
// serialized batch as the user message.
func (c *AzureClient) GenerateContent(ctx context.Context, instructions, content string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: content},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, c.deployment, azureAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("azure deployment %s throttled: %w", c.deployment, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat request returned status %d: %s", resp.StatusCode, string(detail))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	return parsed.Choices[0].Message.Content, nil
}

// Close implements Client; the HTTP client holds no resources to release.
func (c *AzureClient) Close() error {
	return nil
}
