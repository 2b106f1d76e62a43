package provider

import "fmt"

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	// OutcomeCompleted carries the generated reply in Text.
	OutcomeCompleted OutcomeKind = iota + 1
	// OutcomeBlocked means the provider withheld content for safety reasons;
	// Reason holds the provider's block code for logging only.
	OutcomeBlocked
	// OutcomeEmpty means the call succeeded but no text could be extracted.
	OutcomeEmpty
	// OutcomeTransportFailed means the response body itself reported failure;
	// Detail holds the upstream message.
	OutcomeTransportFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeEmpty:
		return "empty"
	case OutcomeTransportFailed:
		return "transport_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the classified result of one backend call. Exactly one variant
// is set, selected by Kind.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Reason string
	Detail string
}

func Completed(text string) Outcome { return Outcome{Kind: OutcomeCompleted, Text: text} }

func Blocked(reason string) Outcome { return Outcome{Kind: OutcomeBlocked, Reason: reason} }

func Empty() Outcome { return Outcome{Kind: OutcomeEmpty} }

func TransportFailed(detail string) Outcome {
	return Outcome{Kind: OutcomeTransportFailed, Detail: detail}
}

// TextOrEmpty returns Completed(text) unless text is empty.
func TextOrEmpty(text string) Outcome {
	if text == "" {
		return Empty()
	}
	return Completed(text)
}
