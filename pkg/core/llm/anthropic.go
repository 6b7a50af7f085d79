package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// AnthropicProvider talks to the Anthropic messages endpoint directly.
// Auth goes via headers, never the URL.
type AnthropicProvider struct {
	Model string // e.g. "claude-haiku-4-5"
}

var _ Provider = (*AnthropicProvider)(nil)

const anthropicURL = "https://api.anthropic.com/v1/messages"

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *AnthropicProvider) Keyed() bool {
	return os.Getenv("ANTHROPIC_API_KEY") != ""
}

func (p *AnthropicProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if val, ok := options["api_key"].(string); ok && val != "" {
		apiKey = val
	}
	if apiKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY_MISSING: Please set ANTHROPIC_API_KEY env var")
	}

	model := p.Model
	if model == "" {
		model = "claude-haiku-4-5"
	}
	if val, ok := options["model"].(string); ok && val != "" {
		model = val
	}

	reqBody := anthropicRequest{
		Model:     model,
		MaxTokens: 1024,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("ANTHROPIC_MARSHAL_ERROR: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", anthropicURL, bytes.NewBuffer(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("ANTHROPIC_REQ_CREATE_ERROR: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := &http.Client{Timeout: 20 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ANTHROPIC_API_CALL_ERROR: %v", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("ANTHROPIC_READ_BODY_ERROR: %v", err)
	}

	if res.StatusCode != 200 {
		return "", fmt.Errorf("ANTHROPIC_API_ERROR: status=%d body=%s", res.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("ANTHROPIC_UNMARSHAL_ERROR: %v", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("ANTHROPIC_API_ERROR: %s: %s", response.Error.Type, response.Error.Message)
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("ANTHROPIC_NO_CONTENT: %s", string(body))
	}

	return response.Content[0].Text, nil
}
