package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultHFBaseURL = "https://router.huggingface.co/v1"

var DefaultHFModels = []string{"meta-llama/Llama-3.1-8B-Instruct", "mistralai/Mistral-7B-Instruct-v0.3"}

const jsonInstruction = "\n\nRespond with a single valid JSON document and nothing else."

// HFClient talks to the HuggingFace OpenAI-compatible router.
type HFClient struct {
	client *openai.Client
}

func NewHFClient(token, baseURL string, httpClient *http.Client) *HFClient {
	cfg := openai.DefaultConfig(token)
	if baseURL == "" {
		baseURL = DefaultHFBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &HFClient{client: openai.NewClientWithConfig(cfg)}
}

func (h *HFClient) Model(name string) Provider {
	return &hfModel{client: h.client, name: name}
}

type hfModel struct {
	client *openai.Client
	name   string
}

func (m *hfModel) Name() string {
	return "huggingface/" + m.name
}

func (m *hfModel) request(prompt string, opts Options, stream bool) openai.ChatCompletionRequest {
	if opts.JSON {
		prompt += jsonInstruction
	}
	return openai.ChatCompletionRequest{
		Model:     m.name,
		MaxTokens: opts.MaxTokens,
		Stream:    stream,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

func (m *hfModel) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.request(prompt, opts, false))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmpty
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errEmpty
	}
	return text, nil
}

func (m *hfModel) Stream(ctx context.Context, prompt string, opts Options, onChunk func(string) error) error {
	stream, err := m.client.CreateChatCompletionStream(ctx, m.request(prompt, opts, true))
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onChunk(resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}
