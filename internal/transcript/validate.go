package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"chat-relay/internal/domain"
)

const (
	MaxMessages     = 20
	MaxContentChars = 4000
)

// FieldError describes one violated constraint. Field is a path into the
// request body, e.g. "messages" or "messages[3].content".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a transcript, not only the
// first one.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "transcript: invalid input"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "transcript: invalid input: " + strings.Join(parts, "; ")
}

type collector struct {
	fields []FieldError
}

func (c *collector) add(field, format string, args ...any) {
	c.fields = append(c.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.fields}
}

// Validate decodes raw as a request body and checks it is a well-formed
// transcript. On success the transcript is returned exactly as received.
func Validate(raw []byte) (domain.Transcript, error) {
	var c collector

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		c.add("body", "must be valid JSON")
		return domain.Transcript{}, c.err()
	}
	if dec.More() {
		c.add("body", "must contain a single JSON value")
		return domain.Transcript{}, c.err()
	}

	obj, ok := body.(map[string]any)
	if !ok {
		c.add("body", "must be a JSON object")
		return domain.Transcript{}, c.err()
	}
	rawMessages, ok := obj["messages"]
	if !ok || rawMessages == nil {
		c.add("messages", "is required")
		return domain.Transcript{}, c.err()
	}
	entries, ok := rawMessages.([]any)
	if !ok {
		c.add("messages", "must be an array")
		return domain.Transcript{}, c.err()
	}
	checkCount(&c, len(entries))

	msgs := make([]domain.ChatMessage, 0, len(entries))
	for i, entry := range entries {
		field := fmt.Sprintf("messages[%d]", i)
		m, ok := entry.(map[string]any)
		if !ok {
			c.add(field, "must be an object")
			continue
		}
		role, roleOK := stringField(&c, m, field+".role")
		content, contentOK := stringField(&c, m, field+".content")
		if roleOK {
			checkRole(&c, field+".role", domain.Role(role))
		}
		if contentOK {
			checkContent(&c, field+".content", content)
		}
		msgs = append(msgs, domain.ChatMessage{Role: domain.Role(role), Content: content})
	}

	if err := c.err(); err != nil {
		return domain.Transcript{}, err
	}
	return domain.Transcript{Messages: msgs}, nil
}

// ValidateMessages applies the same constraints to an already decoded
// message list.
func ValidateMessages(msgs []domain.ChatMessage) error {
	var c collector
	checkCount(&c, len(msgs))
	for i, m := range msgs {
		field := fmt.Sprintf("messages[%d]", i)
		checkRole(&c, field+".role", m.Role)
		checkContent(&c, field+".content", m.Content)
	}
	return c.err()
}

func stringField(c *collector, m map[string]any, field string) (string, bool) {
	key := field[strings.LastIndexByte(field, '.')+1:]
	v, ok := m[key]
	if !ok || v == nil {
		c.add(field, "is required")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		c.add(field, "must be a string")
		return "", false
	}
	return s, true
}

func checkCount(c *collector, n int) {
	switch {
	case n < 1:
		c.add("messages", "must contain at least 1 message")
	case n > MaxMessages:
		c.add("messages", "must contain at most %d messages, got %d", MaxMessages, n)
	}
}

func checkRole(c *collector, field string, r domain.Role) {
	if !r.Valid() {
		c.add(field, "must be one of %s, %s, %s", domain.RoleUser, domain.RoleAssistant, domain.RoleSystem)
	}
}

func checkContent(c *collector, field, content string) {
	n := utf8.RuneCountInString(content)
	switch {
	case n == 0:
		c.add(field, "must not be empty")
	case n > MaxContentChars:
		c.add(field, "must be at most %d characters, got %d", MaxContentChars, n)
	}
}
