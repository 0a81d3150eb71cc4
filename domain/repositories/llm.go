package repositories

import "context"

// Agent abstracts the language model behind the development agent server.
type Agent interface {
	// NewConversation opens a conversation with empty history.
	NewConversation(ctx context.Context) (Conversation, error)
}

// Conversation is an ongoing exchange with the agent. Implementations keep
// the history; Reply appends the user turn and the generated agent turn.
type Conversation interface {
	Reply(ctx context.Context, userText string) (string, error)
	History() []Turn
}

// Turn is a single message in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Role identifies the speaker of a turn.
type Role string

const (
	UserRole  Role = "user"
	AgentRole Role = "agent"
)
