package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"chat-relay/internal/domain"
	"chat-relay/internal/provider"
	"chat-relay/internal/transcript"
)

const (
	ID                     = "openai"
	DefaultModel           = "gpt-4o-mini"
	DefaultMaxOutputTokens = 1024

	temperature = 0.7
)

type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	SystemPrompt    string
	MaxHistoryTurns int
	MaxOutputTokens int
	HTTPClient      *http.Client
}

// completionsAPI is the subset of openai.ChatCompletionService used here.
type completionsAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type Backend struct {
	completions  completionsAPI
	model        string
	systemPrompt string
	maxHistory   int
	maxTokens    int
}

// New builds a Backend on the official SDK with its retries switched off,
// so every request makes at most one upstream call.
func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return newBackend(&client.Chat.Completions, cfg), nil
}

func NewAdapter(cfg Config) (provider.Adapter, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return provider.New[openai.ChatCompletionNewParams, *openai.ChatCompletion](b), nil
}

func newBackend(api completionsAPI, cfg Config) *Backend {
	b := &Backend{
		completions:  api,
		model:        strings.TrimSpace(cfg.Model),
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		maxHistory:   cfg.MaxHistoryTurns,
		maxTokens:    cfg.MaxOutputTokens,
	}
	if b.model == "" {
		b.model = DefaultModel
	}
	if b.maxTokens <= 0 {
		b.maxTokens = DefaultMaxOutputTokens
	}
	return b
}

func (b *Backend) ID() string { return ID }

func (b *Backend) BuildRequest(t domain.Transcript) (openai.ChatCompletionNewParams, error) {
	conv, err := transcript.Split(t, transcript.SplitOptions{MaxHistory: b.maxHistory})
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(conv.History)+2)
	if b.systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(b.systemPrompt))
	}
	for _, m := range conv.History {
		if m.Role == domain.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
			continue
		}
		msgs = append(msgs, openai.UserMessage(m.Content))
	}
	msgs = append(msgs, openai.UserMessage(conv.Current))

	return openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(b.model),
		Messages:            msgs,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(int64(b.maxTokens)),
	}, nil
}

func (b *Backend) Invoke(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	resp, err := b.completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &provider.StatusError{StatusCode: apiErr.StatusCode, Err: fmt.Errorf("openai: %w", err)}
		}
		return nil, fmt.Errorf("openai: create chat completion: %w", err)
	}
	return resp, nil
}

// Classify prefers a refusal or content filter over text, then falls back to
// any other choice that carries content.
func (b *Backend) Classify(resp *openai.ChatCompletion) provider.Outcome {
	if resp == nil {
		return provider.TransportFailed("openai: empty response")
	}
	if len(resp.Choices) == 0 {
		return provider.Empty()
	}

	first := resp.Choices[0]
	if first.Message.Refusal != "" {
		return provider.Blocked("refusal")
	}
	if first.Message.Content != "" {
		return provider.Completed(first.Message.Content)
	}
	if string(first.FinishReason) == "content_filter" {
		return provider.Blocked("content_filter")
	}
	for _, c := range resp.Choices[1:] {
		if c.Message.Content != "" {
			return provider.Completed(c.Message.Content)
		}
	}
	return provider.Empty()
}
