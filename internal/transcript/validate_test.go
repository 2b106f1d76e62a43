package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chat-relay/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func body(t *testing.T, msgs ...map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"messages": msgs})
	require.NoError(t, err)
	return raw
}

func msg(role string, content any) map[string]any {
	return map[string]any{"role": role, "content": content}
}

func expectFields(t *testing.T, err error) []FieldError {
	t.Helper()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.NotEmpty(t, vErr.Fields)
	return vErr.Fields
}

func fieldNames(fields []FieldError) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Field)
	}
	return out
}

func TestValidate_HappyPath_ReturnsTranscriptUnchanged(t *testing.T) {
	raw := body(t,
		msg("system", "be brief"),
		msg("user", "  Xin chào  "),
		msg("assistant", "Chào bạn"),
		msg("user", "Build gaming 20tr"),
	)

	tr, err := Validate(raw)
	require.NoError(t, err)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "  Xin chào  "},
		{Role: domain.RoleAssistant, Content: "Chào bạn"},
		{Role: domain.RoleUser, Content: "Build gaming 20tr"},
	}, tr.Messages)
}

func TestValidate_AllSystemTranscriptIsValid(t *testing.T) {
	_, err := Validate(body(t, msg("system", "only system")))
	require.NoError(t, err)
}

func TestValidate_LengthBounds(t *testing.T) {
	_, err := Validate([]byte(`{"messages":[]}`))
	fields := expectFields(t, err)
	require.Equal(t, []string{"messages"}, fieldNames(fields))
	require.Contains(t, fields[0].Message, "at least 1")

	many := make([]map[string]any, MaxMessages+1)
	for i := range many {
		many[i] = msg("user", "hi")
	}
	_, err = Validate(body(t, many...))
	fields = expectFields(t, err)
	require.Equal(t, []string{"messages"}, fieldNames(fields))
	require.Contains(t, fields[0].Message, "at most 20")

	exact := make([]map[string]any, MaxMessages)
	for i := range exact {
		exact[i] = msg("user", "hi")
	}
	_, err = Validate(body(t, exact...))
	require.NoError(t, err)
}

func TestValidate_EnumeratesEveryInvalidField(t *testing.T) {
	raw := body(t,
		msg("robot", "hello"),
		msg("user", ""),
		msg("user", "fine"),
		msg("admin", strings.Repeat("x", MaxContentChars+1)),
	)

	_, err := Validate(raw)
	fields := expectFields(t, err)
	require.Equal(t, []string{
		"messages[0].role",
		"messages[1].content",
		"messages[3].role",
		"messages[3].content",
	}, fieldNames(fields))
}

func TestValidate_LengthViolationReportedWithEntryViolations(t *testing.T) {
	many := make([]map[string]any, MaxMessages+1)
	for i := range many {
		many[i] = msg("user", "hi")
	}
	many[4] = msg("bot", "hi")

	_, err := Validate(body(t, many...))
	fields := expectFields(t, err)
	require.Equal(t, []string{"messages", "messages[4].role"}, fieldNames(fields))
}

func TestValidate_ContentCountsCharactersNotBytes(t *testing.T) {
	vietnamese := strings.Repeat("ệ", MaxContentChars)
	_, err := Validate(body(t, msg("user", vietnamese)))
	require.NoError(t, err)

	_, err = Validate(body(t, msg("user", vietnamese+"ệ")))
	fields := expectFields(t, err)
	require.Equal(t, []string{"messages[0].content"}, fieldNames(fields))
}

func TestValidate_MalformedShapes(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		fields []string
	}{
		{name: "not json", raw: `not-json`, fields: []string{"body"}},
		{name: "trailing data", raw: `{"messages":[]} {}`, fields: []string{"body"}},
		{name: "array body", raw: `[{"role":"user","content":"hi"}]`, fields: []string{"body"}},
		{name: "missing messages", raw: `{"msgs":[]}`, fields: []string{"messages"}},
		{name: "null messages", raw: `{"messages":null}`, fields: []string{"messages"}},
		{name: "messages not array", raw: `{"messages":"hi"}`, fields: []string{"messages"}},
		{name: "entry not object", raw: `{"messages":["hi"]}`, fields: []string{"messages[0]"}},
		{name: "missing role and content", raw: `{"messages":[{}]}`, fields: []string{"messages[0].role", "messages[0].content"}},
		{name: "wrong types", raw: `{"messages":[{"role":1,"content":42}]}`, fields: []string{"messages[0].role", "messages[0].content"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate([]byte(tc.raw))
			require.Equal(t, tc.fields, fieldNames(expectFields(t, err)))
		})
	}
}

func TestValidationError_MessageListsFields(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Field: "messages[0].role", Message: "bad"},
		{Field: "messages[1].content", Message: "worse"},
	}}
	require.Equal(t, "transcript: invalid input: messages[0].role: bad; messages[1].content: worse", err.Error())
}

func TestValidateMessages(t *testing.T) {
	require.NoError(t, ValidateMessages([]domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}))

	err := ValidateMessages([]domain.ChatMessage{
		{Role: "tool", Content: "x"},
		{Role: domain.RoleUser, Content: ""},
	})
	require.Equal(t, []string{"messages[0].role", "messages[1].content"}, fieldNames(expectFields(t, err)))

	err = ValidateMessages(nil)
	require.Equal(t, []string{"messages"}, fieldNames(expectFields(t, err)))
}

func ExampleValidate() {
	_, err := Validate([]byte(`{"messages":[{"role":"robot","content":""}]}`))
	fmt.Println(err)
	// Output: transcript: invalid input: messages[0].role: must be one of user, assistant, system; messages[0].content: must not be empty
}
