package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxbridge/voxbridge/domain/repositories"
)

// MockAgent is a canned-response agent for tests and offline development.
type MockAgent struct{}

var _ repositories.Agent = (*MockAgent)(nil)

func NewMockAgent() *MockAgent {
	return &MockAgent{}
}

func (m *MockAgent) NewConversation(ctx context.Context) (repositories.Conversation, error) {
	return &mockConversation{}, nil
}

type mockConversation struct {
	mu      sync.Mutex
	history []repositories.Turn
}

func (c *mockConversation) Reply(ctx context.Context, userText string) (string, error) {
	reply := "I heard you."
	if userText != "" {
		reply = fmt.Sprintf("You said: %s", userText)
	}

	c.mu.Lock()
	c.history = append(c.history,
		repositories.Turn{Role: repositories.UserRole, Text: userText},
		repositories.Turn{Role: repositories.AgentRole, Text: reply})
	c.mu.Unlock()

	return reply, nil
}

func (c *mockConversation) History() []repositories.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]repositories.Turn(nil), c.history...)
}
