package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/provider"
	"chat-relay/internal/transcript"
)

const (
	ID                     = "cloudflare"
	DefaultModel           = "@cf/meta/llama-3-8b-instruct"
	DefaultBaseURL         = "https://api.cloudflare.com/client/v4"
	DefaultMaxHistoryTurns = 8
	DefaultMaxOutputTokens = 400

	defaultTimeout = 30 * time.Second
)

// message is the Workers AI chat message shape; roles pass through unchanged.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of one Workers AI run call.
type Request struct {
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Response is the Workers AI envelope. Result stays raw because its shape
// depends on the model.
type Response struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
// Message is errors[0].message when the body is a Workers AI envelope.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("cloudflare: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) UpstreamMessage() string {
	return e.Message
}

type Config struct {
	AccountID       string
	APIToken        string
	Model           string
	BaseURL         string
	SystemPrompt    string
	MaxHistoryTurns int
	MaxOutputTokens int
}

// Client is a focused Workers AI client implementing provider.Backend.
type Client struct {
	baseURL      string
	accountID    string
	apiToken     string
	model        string
	systemPrompt string
	maxHistory   int
	maxTokens    int
	httpClient   *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient validates the account and token. A negative MaxHistoryTurns
// disables truncation; zero selects the default.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	accountID := strings.TrimSpace(cfg.AccountID)
	if accountID == "" {
		return nil, errors.New("cloudflare: account id must not be empty")
	}
	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return nil, errors.New("cloudflare: api token must not be empty")
	}
	c := &Client{
		baseURL:      strings.TrimSpace(cfg.BaseURL),
		accountID:    accountID,
		apiToken:     token,
		model:        strings.TrimSpace(cfg.Model),
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		maxHistory:   cfg.MaxHistoryTurns,
		maxTokens:    cfg.MaxOutputTokens,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	switch {
	case c.maxHistory == 0:
		c.maxHistory = DefaultMaxHistoryTurns
	case c.maxHistory < 0:
		c.maxHistory = 0
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxOutputTokens
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewAdapter is NewClient wrapped into a provider.Adapter.
func NewAdapter(cfg Config, opts ...Option) (provider.Adapter, error) {
	c, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return provider.New[Request, Response](c), nil
}

func (c *Client) ID() string { return ID }

func runURL(baseURL, accountID, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	// Model names contain slashes that are part of the route.
	return base + "/accounts/" + url.PathEscape(accountID) + "/ai/run/" + strings.TrimLeft(model, "/")
}

// BuildRequest sends the system prompt, the most recent history turns and
// the current turn, in that order.
func (c *Client) BuildRequest(t domain.Transcript) (Request, error) {
	conv, err := transcript.Split(t, transcript.SplitOptions{MaxHistory: c.maxHistory})
	if err != nil {
		return Request{}, err
	}
	msgs := make([]message, 0, len(conv.History)+2)
	if c.systemPrompt != "" {
		msgs = append(msgs, message{Role: string(domain.RoleSystem), Content: c.systemPrompt})
	}
	for _, m := range conv.History {
		msgs = append(msgs, message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, message{Role: string(domain.RoleUser), Content: conv.Current})
	return Request{Messages: msgs, MaxTokens: c.maxTokens}, nil
}

func (c *Client) Invoke(ctx context.Context, r Request) (Response, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return Response{}, fmt.Errorf("cloudflare: marshal request: %w", err)
	}

	url := runURL(c.baseURL, c.accountID, c.model)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return Response{}, fmt.Errorf("cloudflare: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return Response{}, fmt.Errorf("cloudflare: request failed: %w", err)
	}

	var payload Response
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return Response{}, fmt.Errorf("cloudflare: decode response: %w", decErr)
	}
	return payload, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
			Message:    envelopeMessage(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// envelopeMessage returns the first error message of a Workers AI envelope,
// or "" when body is not one.
func envelopeMessage(body []byte) string {
	var env Response
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	for _, e := range env.Errors {
		if msg := strings.TrimSpace(e.Message); msg != "" {
			return msg
		}
	}
	return ""
}
