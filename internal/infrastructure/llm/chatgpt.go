package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DocketWatch/internal/config"
	"DocketWatch/internal/enrichment"
	"DocketWatch/internal/ports"
)

const (
	defaultChatEndpoint = "https://api.openai.com/v1/chat/completions"
	chatProvider        = "openai"
)

// ChatGPTClient implements ports.Summarizer backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.Summarizer = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig, systemPrompt string, timeout time.Duration) *ChatGPTClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultChatEndpoint
	}
	return &ChatGPTClient{
		endpoint:     endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: systemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider for the breaker and metrics.
func (c *ChatGPTClient) Name() string { return chatProvider }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete posts the prompt as a user message and returns the first choice.
func (c *ChatGPTClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", &enrichment.ProviderError{Provider: chatProvider, StatusCode: http.StatusUnauthorized, Message: "chatgpt client misconfigured"}
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &enrichment.ProviderError{Provider: chatProvider, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &enrichment.ProviderError{Provider: chatProvider, StatusCode: resp.StatusCode, Message: errorMessage(resp.Status, payload)}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &enrichment.ProviderError{Provider: chatProvider, Message: "decode response", Err: err}
	}
	if len(decoded.Choices) == 0 {
		return "", &enrichment.ProviderError{Provider: chatProvider, Message: "response has no choices"}
	}
	choice := decoded.Choices[0]
	if choice.Message.Refusal != "" || choice.FinishReason == "content_filter" {
		return "", &enrichment.ProviderError{Provider: chatProvider, Message: "content_filter: " + strings.TrimSpace(choice.Message.Refusal)}
	}
	return strings.TrimSpace(choice.Message.Content), nil
}

func errorMessage(status string, payload []byte) string {
	var ce chatError
	if err := json.Unmarshal(payload, &ce); err == nil && ce.Error.Message != "" {
		if ce.Error.Type != "" {
			return ce.Error.Type + ": " + ce.Error.Message
		}
		return ce.Error.Message
	}
	if msg := strings.TrimSpace(string(payload)); msg != "" {
		return msg
	}
	return status
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a regulatory analyst who summarizes public docket filings for busy professionals."
	}
	return prompt
}
