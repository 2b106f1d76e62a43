package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"chat-relay/internal/domain"
	"chat-relay/internal/provider"
	"chat-relay/internal/transcript"
)

const (
	ID                     = "anthropic"
	DefaultModel           = "claude-3-5-haiku-latest"
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

type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type Backend struct {
	messages     messagesAPI
	model        string
	systemPrompt string
	maxHistory   int
	maxTokens    int
}

func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: api key must not be empty")
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
	client := anthropic.NewClient(opts...)
	return newBackend(&client.Messages, cfg), nil
}

func NewAdapter(cfg Config) (provider.Adapter, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return provider.New[anthropic.MessageNewParams, *anthropic.Message](b), nil
}

func newBackend(api messagesAPI, cfg Config) *Backend {
	b := &Backend{
		messages:     api,
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

// BuildRequest sends the system prompt through the system blocks; the
// Messages API rejects conversations that open with an assistant turn.
func (b *Backend) BuildRequest(t domain.Transcript) (anthropic.MessageNewParams, error) {
	conv, err := transcript.Split(t, transcript.SplitOptions{
		MaxHistory: b.maxHistory,
		UserFirst:  true,
	})
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	msgs := make([]anthropic.MessageParam, 0, len(conv.History)+1)
	for _, m := range conv.History {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(block))
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(conv.Current)))

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(b.model),
		MaxTokens:   int64(b.maxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(temperature),
	}
	if b.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: b.systemPrompt}}
	}
	return params, nil
}

func (b *Backend) Invoke(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	resp, err := b.messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &provider.StatusError{StatusCode: apiErr.StatusCode, Err: fmt.Errorf("anthropic: %w", err)}
		}
		return nil, fmt.Errorf("anthropic: create message: %w", err)
	}
	return resp, nil
}

func (b *Backend) Classify(msg *anthropic.Message) provider.Outcome {
	if msg == nil {
		return provider.TransportFailed("anthropic: empty response")
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if string(msg.StopReason) == "refusal" {
		return provider.Blocked("refusal")
	}
	return provider.TextOrEmpty(sb.String())
}
