package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chat-relay/internal/domain"
	"chat-relay/internal/metrics"
	"chat-relay/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockAdapter struct {
	id        string
	out       provider.Outcome
	err       error
	callCount int
	got       domain.Transcript
}

func (m *mockAdapter) ID() string { return m.id }

func (m *mockAdapter) Complete(ctx context.Context, t domain.Transcript) (provider.Outcome, error) {
	m.callCount++
	m.got = t
	if err := ctx.Err(); err != nil {
		return provider.Outcome{}, &provider.TransportError{Provider: m.id, Err: err}
	}
	return m.out, m.err
}

type mockSelector struct {
	adapter  provider.Adapter
	err      error
	selected []string
}

func (m *mockSelector) Select(id string) (provider.Adapter, error) {
	m.selected = append(m.selected, id)
	if m.err != nil {
		return nil, m.err
	}
	return m.adapter, nil
}

func newTestService(t *testing.T, sel ProviderSelector, rec metrics.Recorder) (*ChatService, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	svc, err := NewChatService(sel, "gemini", rec, logger)
	require.NoError(t, err)
	return svc, &logs
}

const validBody = `{"messages":[{"role":"assistant","content":"Xin chào! Tôi có thể giúp gì?"},{"role":"user","content":"Tư vấn CPU chơi game"}]}`

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	_, err := NewChatService(nil, "gemini", nil, nil)
	require.Error(t, err)

	_, err = NewChatService(&mockSelector{}, " ", nil, nil)
	require.Error(t, err)

	svc, err := NewChatService(&mockSelector{}, " Gemini ", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "gemini", svc.ProviderID())
}

func TestChat_HappyPath(t *testing.T) {
	a := &mockAdapter{id: "gemini", out: provider.Completed("Ryzen 5 7600")}
	sel := &mockSelector{adapter: a}
	stats := metrics.NewStats()
	svc, logs := newTestService(t, sel, stats)

	ctx := WithCorrelationID(context.Background(), "corr-1")
	reply, err := svc.Chat(ctx, []byte(validBody))
	require.NoError(t, err)
	require.Equal(t, domain.Reply{ReplyText: "Ryzen 5 7600", ProviderID: "gemini"}, reply)
	require.Equal(t, 1, a.callCount)
	require.Equal(t, []string{"gemini"}, sel.selected)
	require.Len(t, a.got.Messages, 2)

	snap := stats.Snapshot()
	require.Equal(t, uint64(1), snap.Requests)
	require.Equal(t, uint64(1), snap.Outcomes["completed"])

	require.Contains(t, logs.String(), `"correlation_id":"corr-1"`)
	require.NotContains(t, logs.String(), "Tư vấn CPU")
}

func TestChat_BlockedAndEmptyAreReplies(t *testing.T) {
	for _, tc := range []struct {
		out  provider.Outcome
		want string
	}{
		{out: provider.Blocked("SAFETY"), want: BlockedReplyText},
		{out: provider.Empty(), want: EmptyReplyText},
	} {
		a := &mockAdapter{id: "gemini", out: tc.out}
		stats := metrics.NewStats()
		svc, _ := newTestService(t, &mockSelector{adapter: a}, stats)

		reply, err := svc.Chat(context.Background(), []byte(validBody))
		require.NoError(t, err)
		require.Equal(t, tc.want, reply.ReplyText)
		require.Equal(t, uint64(1), stats.Snapshot().Outcomes[tc.out.Kind.String()])
	}
}

func TestChat_ValidationFailsBeforeSelection(t *testing.T) {
	a := &mockAdapter{id: "gemini", out: provider.Completed("unused")}
	sel := &mockSelector{adapter: a}
	stats := metrics.NewStats()
	svc, _ := newTestService(t, sel, stats)

	_, err := svc.Chat(context.Background(), []byte(`{"messages":[{"role":"robot","content":""}]}`))
	e := expectUsecaseError(t, err, ErrorValidation, "invalid_transcript")
	require.Len(t, e.Fields, 2)
	require.Empty(t, sel.selected)
	require.Zero(t, a.callCount)
	require.Equal(t, uint64(1), stats.Snapshot().Outcomes[metrics.OutcomeRejected])
}

func TestChat_NoUserTurn(t *testing.T) {
	a := &mockAdapter{id: "gemini", err: provider.ErrNoUserTurn}
	stats := metrics.NewStats()
	svc, _ := newTestService(t, &mockSelector{adapter: a}, stats)

	_, err := svc.Chat(context.Background(), []byte(`{"messages":[{"role":"system","content":"be brief"}]}`))
	expectUsecaseError(t, err, ErrorNoUserTurn, "no_user_turn")
	require.Equal(t, uint64(1), stats.Snapshot().Outcomes[metrics.OutcomeRejected])
}

func TestChat_UnconfiguredProvider(t *testing.T) {
	sel := &mockSelector{err: &provider.UnconfiguredProviderError{ID: "gemini", Err: errors.New("api key must not be empty")}}
	stats := metrics.NewStats()
	svc, _ := newTestService(t, sel, stats)

	_, err := svc.Chat(context.Background(), []byte(validBody))
	expectUsecaseError(t, err, ErrorUnsupportedProvider, "unconfigured_provider")
	require.Equal(t, uint64(1), stats.Snapshot().Outcomes[metrics.OutcomeUnavailable])
}

func TestChat_ProviderFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   ErrorCode
		reason string
	}{
		{name: "rate limited", err: &provider.TransportError{Provider: "gemini", Err: statusErr{code: http.StatusTooManyRequests}}, code: ErrorRateLimited, reason: "provider_rate_limited"},
		{name: "network", err: &provider.TransportError{Provider: "gemini", Err: errors.New("connection reset")}, code: ErrorProvider, reason: "provider_unreachable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &mockAdapter{id: "gemini", err: tc.err}
			stats := metrics.NewStats()
			svc, logs := newTestService(t, &mockSelector{adapter: a}, stats)

			_, err := svc.Chat(context.Background(), []byte(validBody))
			expectUsecaseError(t, err, tc.code, tc.reason)
			require.Equal(t, 1, a.callCount)
			require.Equal(t, uint64(1), stats.Snapshot().Outcomes["transport_failed"])
			require.Contains(t, logs.String(), "provider call failed")
		})
	}
}

func TestChat_CanceledContext(t *testing.T) {
	a := &mockAdapter{id: "gemini", out: provider.Completed("late")}
	svc, _ := newTestService(t, &mockSelector{adapter: a}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Chat(ctx, []byte(validBody))
	expectUsecaseError(t, err, ErrorProvider, "request_canceled")
}

type durationRecorder struct {
	metrics.NoopRecorder
	calls []time.Duration
}

func (r *durationRecorder) ObserveProviderCall(_ string, d time.Duration) {
	r.calls = append(r.calls, d)
}

func TestChat_RecordsProviderLatency(t *testing.T) {
	a := &mockAdapter{id: "gemini", out: provider.Completed("ok")}
	rec := &durationRecorder{}
	svc, _ := newTestService(t, &mockSelector{adapter: a}, rec)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(1500 * time.Millisecond)}
	svc.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}

	_, err := svc.Chat(context.Background(), []byte(validBody))
	require.NoError(t, err)
	require.Equal(t, []time.Duration{1500 * time.Millisecond}, rec.calls)
}

func TestCorrelationID(t *testing.T) {
	require.Empty(t, CorrelationID(context.Background()))
	require.Equal(t, "abc", CorrelationID(WithCorrelationID(context.Background(), "abc")))
}
