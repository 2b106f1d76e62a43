// Package gemini adapts the Google Gemini generateContent API to the relay's
// provider contract.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"chat-relay/internal/domain"
	"chat-relay/internal/provider"
	"chat-relay/internal/transcript"
)

const (
	ID                     = "gemini"
	DefaultModel           = "gemini-1.5-flash"
	DefaultMaxOutputTokens = 2048

	directReplySuffix = "\n\nIMPORTANT: Respond directly without extended thinking. Be concise."
)

// Sampling is tuned for short, lively advice and is not caller controlled.
var (
	temperature = float32(1.0)
	topK        = float32(40)
	topP        = float32(0.95)
)

// Finish reasons that mean the candidate was cut by a safety filter.
var safetyFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReason("SAFETY"):             true,
	genai.FinishReason("PROHIBITED_CONTENT"): true,
	genai.FinishReason("BLOCKLIST"):          true,
	genai.FinishReason("SPII"):               true,
}

type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	SystemPrompt    string
	MaxHistoryTurns int
	MaxOutputTokens int
	HTTPClient      *http.Client
}

// Request is the Gemini projection of a transcript. History is empty for a
// single-turn conversation, in which case only LatestTurn is sent.
type Request struct {
	History    []*genai.Content
	LatestTurn string
}

// modelsAPI is the subset of *genai.Models used by Backend.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Backend implements provider.Backend for Gemini.
type Backend struct {
	models     modelsAPI
	model      string
	config     *genai.GenerateContentConfig
	maxHistory int
}

// New creates a Backend with its own genai client.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newBackend(client.Models, cfg), nil
}

// NewAdapter is New wrapped into a provider.Adapter.
func NewAdapter(ctx context.Context, cfg Config) (provider.Adapter, error) {
	b, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return provider.New[Request, *genai.GenerateContentResponse](b), nil
}

func newBackend(models modelsAPI, cfg Config) *Backend {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}
	if maxTokens > math.MaxInt32 {
		maxTokens = math.MaxInt32
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(temperature),
		TopK:             genai.Ptr(topK),
		TopP:             genai.Ptr(topP),
		MaxOutputTokens:  int32(maxTokens),
		ResponseMIMEType: "text/plain",
	}
	if prompt := strings.TrimSpace(cfg.SystemPrompt); prompt != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt+directReplySuffix, genai.RoleUser)
	}

	return &Backend{
		models:     models,
		model:      model,
		config:     config,
		maxHistory: cfg.MaxHistoryTurns,
	}
}

func (b *Backend) ID() string { return ID }

// BuildRequest keeps user and assistant turns before the current one,
// renames assistant to model, and makes sure history opens with a user turn.
func (b *Backend) BuildRequest(t domain.Transcript) (Request, error) {
	conv, err := transcript.Split(t, transcript.SplitOptions{
		MaxHistory: b.maxHistory,
		UserFirst:  true,
	})
	if err != nil {
		return Request{}, err
	}
	if conv.SingleTurn() {
		return Request{LatestTurn: conv.Current}, nil
	}

	history := make([]*genai.Content, 0, len(conv.History))
	for _, m := range conv.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Content, role))
	}
	return Request{History: history, LatestTurn: conv.Current}, nil
}

func (b *Backend) Invoke(ctx context.Context, req Request) (*genai.GenerateContentResponse, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	contents = append(contents, req.History...)
	contents = append(contents, genai.NewContentFromText(req.LatestTurn, genai.RoleUser))

	resp, err := b.models.GenerateContent(ctx, b.model, contents, b.config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &provider.StatusError{StatusCode: apiErr.Code, Err: fmt.Errorf("gemini: %s", apiErr.Message)}
		}
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	return resp, nil
}

// Classify checks the prompt block signal first, then the first candidate's
// text, then text in any later candidate. Thought parts never become a reply.
func (b *Backend) Classify(resp *genai.GenerateContentResponse) provider.Outcome {
	if resp == nil {
		return provider.TransportFailed("gemini: empty response")
	}
	if fb := resp.PromptFeedback; fb != nil {
		reason := string(fb.BlockReason)
		if reason != "" && reason != "BLOCKED_REASON_UNSPECIFIED" {
			return provider.Blocked(reason)
		}
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		first := resp.Candidates[0]
		if text := contentText(first.Content); text != "" {
			return provider.Completed(text)
		}
		if safetyFinishReasons[first.FinishReason] {
			return provider.Blocked(string(first.FinishReason))
		}
	}

	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		if text := contentText(c.Content); text != "" {
			return provider.Completed(text)
		}
	}
	return provider.Empty()
}

func contentText(c *genai.Content) string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
