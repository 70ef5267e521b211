package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/ashureev/trainingdesk/internal/domain"
)

// GeminiClient implements Oracle using Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed oracle.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Complete generates one reply.
func (g *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Context)+1)
	for _, t := range req.Context {
		role := genai.Role(genai.RoleUser)
		if t.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.User, genai.RoleUser))

	temperature := req.Temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       &temperature,
	}
	if req.Purpose != PurposeNarrate {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyGenAIError(err)
	}
	return resp.Text(), nil
}

// classifyGenAIError treats throttling, server errors and failures that never
// reached the API as transient. Other API errors, such as a rejected key or
// an unknown model, are permanent.
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyGenAIStatus(apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyGenAIStatus(apiErrPtr.Code, err)
	}
	return fmt.Errorf("%w: GenAI generate failed: %v", ErrTransient, err)
}

func classifyGenAIStatus(code int, err error) error {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500 {
		return fmt.Errorf("%w: GenAI status %d: %v", ErrTransient, code, err)
	}
	return fmt.Errorf("GenAI generate failed: %w", err)
}

// Name returns the backend name.
func (g *GeminiClient) Name() string {
	return fmt.Sprintf("genai:%s", g.model)
}
