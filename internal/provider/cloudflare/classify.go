package cloudflare

import (
	"encoding/json"
	"sort"
	"strings"

	"chat-relay/internal/provider"
)

const defaultErrorMessage = "cloudflare ai error"

// textKeys are tried in order when scanning an unrecognised result shape.
var textKeys = []string{"response", "output_text", "text", "content", "generated_text"}

type result struct {
	Response   *string `json:"response"`
	OutputText *string `json:"output_text"`
	Message    *struct {
		Content string `json:"content"`
	} `json:"message"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Flagged bool `json:"flagged"`
}

// Classify treats a missing success flag as a transport failure, then tries
// the known text fields before scanning the raw result for any text.
func (c *Client) Classify(resp Response) provider.Outcome {
	if !resp.Success {
		msg := defaultErrorMessage
		if len(resp.Errors) > 0 && strings.TrimSpace(resp.Errors[0].Message) != "" {
			msg = resp.Errors[0].Message
		}
		return provider.TransportFailed(msg)
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return provider.Empty()
	}

	var r result
	if err := json.Unmarshal(resp.Result, &r); err == nil {
		if r.Flagged {
			return provider.Blocked("flagged")
		}
		for _, s := range []*string{r.Response, r.OutputText} {
			if s != nil && *s != "" {
				return provider.Completed(*s)
			}
		}
		if r.Message != nil && r.Message.Content != "" {
			return provider.Completed(r.Message.Content)
		}
		if len(r.Choices) > 0 {
			if text := r.Choices[0].Message.Content; text != "" {
				return provider.Completed(text)
			}
			if r.Choices[0].FinishReason == "content_filter" {
				return provider.Blocked("content_filter")
			}
		}
	}

	var raw any
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return provider.Empty()
	}
	return provider.TextOrEmpty(scanText(raw))
}

// scanText walks a decoded JSON value breadth first and returns the first
// non-empty string found under one of textKeys, or the value itself when the
// result is a bare string. Keys are visited in sorted order.
func scanText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	queue := []any{v}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		switch x := cur.(type) {
		case map[string]any:
			for _, k := range textKeys {
				if s, ok := x[k].(string); ok && strings.TrimSpace(s) != "" {
					return s
				}
			}
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				queue = append(queue, x[k])
			}
		case []any:
			queue = append(queue, x...)
		}
	}
	return ""
}
