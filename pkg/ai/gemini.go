package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultGeminiModels is the tiered model list, newest first.
var DefaultGeminiModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"}

// GeminiClient owns the SDK client shared by every Gemini strategy.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Model returns the strategy for one model name.
func (g *GeminiClient) Model(name string) Provider {
	return &geminiModel{client: g.client, name: name}
}

type geminiModel struct {
	client *genai.Client
	name   string
}

func (m *geminiModel) Name() string {
	return "gemini/" + m.name
}

// model is built per call since GenerativeModel carries mutable generation config.
func (m *geminiModel) model(opts Options) *genai.GenerativeModel {
	model := m.client.GenerativeModel(m.name)
	if opts.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	return model
}

func (m *geminiModel) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := m.model(opts).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", errEmpty
	}
	return text, nil
}

func (m *geminiModel) Stream(ctx context.Context, prompt string, opts Options, onChunk func(string) error) error {
	iter := m.model(opts).GenerateContentStream(ctx, genai.Text(prompt))
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if chunk := responseText(resp); chunk != "" {
			if err := onChunk(chunk); err != nil {
				return err
			}
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	return sb.String()
}
