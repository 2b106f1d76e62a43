package transcript

import (
	"errors"

	"chat-relay/internal/domain"
)

// ErrNoUserTurn is returned when a transcript carries no user-authored
// message, so there is nothing to answer.
var ErrNoUserTurn = errors.New("transcript: no user turn")

// Conversation is a transcript reconciled into the prior turns and the
// current turn, before any provider-specific role encoding.
type Conversation struct {
	// History holds the turns before Current with system messages removed,
	// oldest first.
	History []domain.ChatMessage
	Current string
}

// SingleTurn reports whether there is nothing to send besides the current turn.
func (c Conversation) SingleTurn() bool {
	return len(c.History) == 0
}

// SplitOptions controls how history is trimmed for a backend.
type SplitOptions struct {
	// MaxHistory keeps only the most recent turns; zero means unlimited.
	MaxHistory int
	// UserFirst drops any leading non-user turns left after truncation.
	UserFirst bool
}

// Split picks the most recent user message as the current turn and derives
// the history from everything before it. t is not modified.
func Split(t domain.Transcript, opts SplitOptions) (Conversation, error) {
	current := -1
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == domain.RoleUser {
			current = i
			break
		}
	}
	if current < 0 {
		return Conversation{}, ErrNoUserTurn
	}

	history := make([]domain.ChatMessage, 0, current)
	for _, m := range t.Messages[:current] {
		if m.Role == domain.RoleSystem {
			continue
		}
		history = append(history, m)
	}
	if opts.MaxHistory > 0 && len(history) > opts.MaxHistory {
		history = history[len(history)-opts.MaxHistory:]
	}
	if opts.UserFirst {
		for len(history) > 0 && history[0].Role != domain.RoleUser {
			history = history[1:]
		}
	}

	return Conversation{History: history, Current: t.Messages[current].Content}, nil
}
