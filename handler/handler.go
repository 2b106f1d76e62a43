package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-relay/internal/domain"
	"chat-relay/internal/metrics"
	"chat-relay/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// ChatUseCase is the subset of *usecase.ChatService used by Handler.
type ChatUseCase interface {
	Chat(ctx context.Context, raw []byte) (domain.Reply, error)
	ProviderID() string
}

// StatsSource exposes the process counters. *metrics.Stats satisfies it.
type StatsSource interface {
	Snapshot() metrics.Snapshot
}

type Handler struct {
	uc     ChatUseCase
	stats  StatsSource
	logger *slog.Logger
	now    func() time.Time
}

type route struct {
	method string
	serve  func(h *Handler, ctx context.Context, req events.APIGatewayProxyRequest) (int, any)
}

var routes = map[string]route{
	"/api/chat":  {method: http.MethodPost, serve: (*Handler).chat},
	"/health":    {method: http.MethodGet, serve: (*Handler).health},
	"/api/stats": {method: http.MethodGet, serve: (*Handler).statsReport},
}

type errorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Details []errorDetail `json:"details,omitempty"`
}

type healthResponse struct {
	OK        bool   `json:"ok"`
	Provider  string `json:"provider"`
	Timestamp string `json:"timestamp"`
}

type statsResponse struct {
	Requests      uint64            `json:"requests"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Provider      string            `json:"provider"`
	Outcomes      map[string]uint64 `json:"outcomes"`
}

func NewHandler(uc ChatUseCase, stats StatsSource, logger *slog.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	if stats == nil {
		return nil, errors.New("handler: stats source must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{uc: uc, stats: stats, logger: logger, now: time.Now}, nil
}

// Handle serves one API Gateway proxy request. Every response, including
// routing failures, is JSON and carries the correlation id.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newUUID()
	}
	ctx = usecase.WithCorrelationID(ctx, correlationID)

	path := normalizePath(req.Path)
	rt, ok := routes[path]
	switch {
	case !ok:
		return h.respond(correlationID, http.StatusNotFound, errorResponse{
			Error:   "NOT_FOUND",
			Message: "Route not found",
		}, nil), nil
	case !strings.EqualFold(req.HTTPMethod, rt.method):
		return h.respond(correlationID, http.StatusMethodNotAllowed, errorResponse{
			Error:   "METHOD_NOT_ALLOWED",
			Message: "Method " + req.HTTPMethod + " is not allowed on " + path,
		}, map[string]string{"Allow": rt.method}), nil
	}

	status, body := rt.serve(h, ctx, req)
	return h.respond(correlationID, status, body, nil), nil
}

func (h *Handler) chat(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return http.StatusBadRequest, errorResponse{
				Error:   string(usecase.ErrorValidation),
				Message: "Invalid request body",
				Details: []errorDetail{{Field: "body", Message: "must be valid base64"}},
			}
		}
		raw = decoded
	}

	reply, err := h.uc.Chat(ctx, raw)
	if err != nil {
		status, body := errorStatus(err)
		return status, body
	}
	return http.StatusOK, reply
}

func (h *Handler) health(_ context.Context, _ events.APIGatewayProxyRequest) (int, any) {
	return http.StatusOK, healthResponse{
		OK:        true,
		Provider:  h.uc.ProviderID(),
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
}

func (h *Handler) statsReport(_ context.Context, _ events.APIGatewayProxyRequest) (int, any) {
	snap := h.stats.Snapshot()
	return http.StatusOK, statsResponse{
		Requests:      snap.Requests,
		UptimeSeconds: int64(snap.Uptime / time.Second),
		Provider:      h.uc.ProviderID(),
		Outcomes:      snap.Outcomes,
	}
}

func (h *Handler) respond(correlationID string, status int, body any, extra map[string]string) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: correlationID,
	}
	for k, v := range extra {
		headers[k] = v
	}

	raw, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("failed to encode response", "correlation_id", correlationID, "err", err)
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR","message":"Internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(raw),
	}
}

func errorStatus(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{
			Error:   string(usecase.ErrorInternal),
			Message: "Internal error",
		}
	}

	out := errorResponse{Error: string(ucErr.Code), Message: ucErr.Message}
	if out.Message == "" {
		out.Message = http.StatusText(statusFor(ucErr.Code))
	}
	for _, f := range ucErr.Fields {
		out.Details = append(out.Details, errorDetail{Field: f.Field, Message: f.Message})
	}
	return statusFor(ucErr.Code), out
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorValidation, usecase.ErrorNoUserTurn:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	// Several spellings: the lexically first key wins.
	keys := make([]string, 0, len(headers))
	for k := range headers {
		if strings.EqualFold(k, name) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return strings.TrimSpace(headers[keys[0]])
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if p = strings.TrimRight(p, "/"); p == "" {
		return "/"
	}
	return p
}

var newUUID = func() string {
	return uuid.NewString()
}
