package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"DocketWatch/internal/config"
	"DocketWatch/internal/enrichment"
	"DocketWatch/internal/ports"
)

const vertexProvider = "vertex"

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexClient implements ports.Summarizer with a Gemini model on Vertex AI.
type VertexClient struct {
	model  generator
	client *genai.Client
}

var _ ports.Summarizer = (*VertexClient)(nil)

// NewVertexClient connects to Vertex AI with application default credentials.
func NewVertexClient(ctx context.Context, cfg config.VertexConfig, systemPrompt string) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex: project id and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-pro"
	}
	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(safePrompt(systemPrompt))}}
	model.GenerationConfig = genai.GenerationConfig{Temperature: genai.Ptr[float32](0.2)}

	return &VertexClient{model: model, client: client}, nil
}

// Name identifies the provider for the breaker and metrics.
func (c *VertexClient) Name() string { return vertexProvider }

// Complete sends the prompt and returns the concatenated text parts.
func (c *VertexClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", vertexError(err)
	}

	text := responseText(resp)
	if text == "" && len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", &enrichment.ProviderError{Provider: vertexProvider, Message: "response blocked by safety filters"}
	}
	return text, nil
}

// Close releases the underlying client.
func (c *VertexClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

func vertexError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &enrichment.ProviderError{Provider: vertexProvider, Message: "prompt blocked by safety filters", Err: err}
	}
	st, ok := status.FromError(err)
	if !ok {
		return &enrichment.ProviderError{Provider: vertexProvider, Message: "generate content", Err: err}
	}
	return &enrichment.ProviderError{
		Provider:   vertexProvider,
		StatusCode: httpStatus(st.Code()),
		Message:    st.Message(),
		Err:        err,
	}
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Internal, codes.Unknown:
		return http.StatusInternalServerError
	default:
		return 0
	}
}
