package extractor

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
)

const (
	providerName = "extractor"
	maxBody      = 32 << 20
)

// Strategy names in fallback priority order.
const (
	StrategyStream = "stream"
	StrategySync   = "sync"
	StrategyBasic  = "basic"
)

// Order is the fallback priority used by the extraction chain.
func Order() []string {
	return []string{StrategyStream, StrategySync, StrategyBasic}
}

// Client talks to the document text-extraction provider.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	stream  *http.Client
}

// NewClient creates HTTP clients for the single-shot and streaming endpoints.
func NewClient(cfg config.ExtractionConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	streamTimeout := cfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = 3 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{Timeout: streamTimeout},
	}
}

// Register adds the three strategies to the registry.
func (c *Client) Register(registry *enrichment.Registry) {
	registry.Register(&StreamStrategy{client: c})
	registry.Register(&SyncStrategy{client: c})
	registry.Register(&BasicStrategy{client: c})
}

// StreamStrategy uses the event-stream endpoint; most thorough, slowest.
type StreamStrategy struct{ client *Client }

// SyncStrategy uses the single-shot extraction endpoint.
type SyncStrategy struct{ client *Client }

// BasicStrategy fetches the document directly and reads text out of HTML or
// plain responses. It cannot handle binary formats.
type BasicStrategy struct{ client *Client }

var (
	_ enrichment.Strategy = (*StreamStrategy)(nil)
	_ enrichment.Strategy = (*SyncStrategy)(nil)
	_ enrichment.Strategy = (*BasicStrategy)(nil)
)

func (s *StreamStrategy) Name() string { return StrategyStream }
func (s *SyncStrategy) Name() string   { return StrategySync }
func (s *BasicStrategy) Name() string  { return StrategyBasic }

// Extract calls the streaming endpoint and concatenates the text chunks.
func (s *StreamStrategy) Extract(ctx context.Context, documentURL string) (string, error) {
	return s.client.post(ctx, s.client.stream, "/v1/extract/stream", documentURL, "text/event-stream")
}

// Extract calls the synchronous endpoint.
func (s *SyncStrategy) Extract(ctx context.Context, documentURL string) (string, error) {
	return s.client.post(ctx, s.client.http, "/v1/extract", documentURL, "application/json")
}

// Extract downloads the document itself.
func (s *BasicStrategy) Extract(ctx context.Context, documentURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.1")

	body, contentType, err := s.client.do(req, s.client.http)
	if err != nil {
		return "", err
	}
	if isBinary(contentType) {
		return "", fmt.Errorf("basic extraction cannot read %s content", contentType)
	}
	return DecodeText(ClassifyResponse(contentType, body), body)
}

func (c *Client) post(ctx context.Context, hc *http.Client, path, documentURL, accept string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("extraction provider is not configured")
	}
	payload, err := json.Marshal(map[string]string{"url": documentURL})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	body, contentType, err := c.do(req, hc)
	if err != nil {
		return "", err
	}
	return DecodeText(ClassifyResponse(contentType, body), body)
}

func (c *Client) do(req *http.Request, hc *http.Client) ([]byte, string, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, "", &enrichment.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Message: msg}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func isBinary(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, prefix := range []string{"application/pdf", "application/octet-stream", "application/msword", "application/vnd.", "image/"} {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
