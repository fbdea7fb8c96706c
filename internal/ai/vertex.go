// Package ai calls the external vision-language model.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

var (
	// ErrEmptyResponse means the model answered without any text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrNotConfigured means the analyzer is missing project settings.
	ErrNotConfigured = errors.New("ai model not configured")
)

// VertexConfig holds the Vertex AI settings.
type VertexConfig struct {
	ProjectID       string
	Location        string
	CredentialsFile string
	Model           string
	Temperature     float32
}

// contentGenerator is the part of *genai.GenerativeModel the analyzer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiAnalyzer sends a meal photo and the fixed prompt to a Gemini model
// and returns the raw reply text.
type GeminiAnalyzer struct {
	client *genai.Client
	model  contentGenerator
	prompt string
}

func NewGeminiAnalyzer(ctx context.Context, cfg VertexConfig) (*GeminiAnalyzer, error) {
	if cfg.ProjectID == "" || cfg.Location == "" {
		return nil, fmt.Errorf("%w: project id and location are required", ErrNotConfigured)
	}

	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.ResponseMIMEType = "application/json"

	return &GeminiAnalyzer{
		client: client,
		model:  model,
		prompt: Prompt,
	}, nil
}

// Analyze returns the model's free-text answer for one image.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, image []byte, mimeType string) (string, error) {
	if g == nil || g.model == nil {
		return "", ErrNotConfigured
	}

	resp, err := g.model.GenerateContent(ctx,
		genai.Text(g.prompt),
		genai.Blob{MIMEType: mimeType, Data: image},
	)
	if err != nil {
		return "", fmt.Errorf("failed to call ai: %w", err)
	}

	return ResponseText(resp)
}

// ResponseText joins the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrEmptyResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content in response", ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text parts", ErrEmptyResponse)
	}

	return sb.String(), nil
}

func (g *GeminiAnalyzer) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}
