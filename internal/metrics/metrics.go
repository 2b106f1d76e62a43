package metrics

import "time"

// Outcome labels besides the provider outcome kinds.
const (
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
)

// Recorder defines the hooks the chat service reports through.
type Recorder interface {
	// ObserveRequest counts one finished chat request.
	ObserveRequest(providerID string, outcome string)
	// ObserveProviderCall records the latency of one outbound call.
	ObserveProviderCall(providerID string, duration time.Duration)
}

type NoopRecorder struct{}

func (NoopRecorder) ObserveRequest(string, string)             {}
func (NoopRecorder) ObserveProviderCall(string, time.Duration) {}
