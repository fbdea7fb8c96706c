package ai

import (
	"context"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestGeminiAnalyzer_Analyze(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(genai.Text(`{"food_name":`), genai.Text(`"Apple"}`))}
	analyzer := &GeminiAnalyzer{model: gen, prompt: Prompt}

	text, err := analyzer.Analyze(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, `{"food_name":"Apple"}`, text)

	require.Len(t, gen.parts, 2)
	assert.Equal(t, genai.Text(Prompt), gen.parts[0])
	blob, ok := gen.parts[1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", blob.MIMEType)
	assert.Equal(t, []byte{0xFF, 0xD8}, blob.Data)
}

func TestGeminiAnalyzer_AnalyzeError(t *testing.T) {
	analyzer := &GeminiAnalyzer{model: &fakeGenerator{err: assert.AnError}, prompt: Prompt}

	_, err := analyzer.Analyze(context.Background(), []byte{1}, "image/png")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGeminiAnalyzer_NotConfigured(t *testing.T) {
	var analyzer *GeminiAnalyzer
	_, err := analyzer.Analyze(context.Background(), []byte{1}, "image/png")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewGeminiAnalyzer(context.Background(), VertexConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResponseText_Empty(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"nil", nil},
		{"no candidates", &genai.GenerateContentResponse{}},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
		{"no parts", textResponse()},
		{"blank text", textResponse(genai.Text("  "))},
		{"non-text part", textResponse(genai.Blob{MIMEType: "image/png", Data: []byte{1}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResponseText(tt.resp)
			assert.ErrorIs(t, err, ErrEmptyResponse)
		})
	}
}
