package domain

// Role identifies who authored a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the roles a transcript may carry.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is the provider-agnostic chat message shape accepted from
// callers and handed to provider adapters.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the full conversation so far, in conversation order.
// It is owned by the caller and never mutated by the relay.
type Transcript struct {
	Messages []ChatMessage `json:"messages"`
}

// Reply is the canonical success result exposed past the provider layer.
type Reply struct {
	ReplyText  string `json:"replyText"`
	ProviderID string `json:"providerId"`
}
