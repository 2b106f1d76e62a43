package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// maxBodyBytes bounds request bodies read by ServeHTTP. A transcript at its
// limits is well under this.
const maxBodyBytes = 1 << 20

// ServeHTTP adapts a plain net/http request into the proxy event shape so the
// long-running server and the Lambda entry point share one routing table.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	headers := make(map[string]string, len(r.Header))
	for k, vals := range r.Header {
		if len(vals) > 0 {
			headers[k] = vals[0]
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		correlationID := headerValue(headers, correlationHeader)
		if correlationID == "" {
			correlationID = newUUID()
		}
		writeResponse(w, h.respond(correlationID, status, errorResponse{
			Error:   "INVALID_BODY",
			Message: "Request body could not be read",
		}, nil))
		return
	}

	resp, _ := h.Handle(r.Context(), events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       string(body),
	})
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}
