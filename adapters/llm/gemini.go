package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/voxbridge/voxbridge/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultMaxTokens      = 512
	defaultTimeoutSeconds = 30

	// Replies are spoken aloud, so the agent is told to keep them short.
	systemPrompt = "You are a friendly voice assistant. Answer in one or two " +
		"short spoken sentences without markup or lists."
)

// GeminiAgent implements the Agent interface using Google's Gemini API.
type GeminiAgent struct {
	client *genai.Client
	logger *zap.Logger
	model  string
}

var _ repositories.Agent = (*GeminiAgent)(nil)

// NewGeminiAgent creates a Gemini-backed agent. The API key is read from
// GEMINI_API_KEY.
func NewGeminiAgent(ctx context.Context, logger *zap.Logger) (*GeminiAgent, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	return &GeminiAgent{
		client: client,
		logger: logger,
		model:  model,
	}, nil
}

func (g *GeminiAgent) NewConversation(ctx context.Context) (repositories.Conversation, error) {
	return &geminiConversation{
		client: g.client,
		logger: g.logger,
		model:  g.model,
	}, nil
}

// geminiConversation keeps per-conversation history in Gemini's content
// format.
type geminiConversation struct {
	client *genai.Client
	logger *zap.Logger
	model  string

	mu      sync.Mutex
	history []*genai.Content
}

func (c *geminiConversation) Reply(ctx context.Context, userText string) (string, error) {
	c.mu.Lock()
	contents := make([]*genai.Content, 0, len(c.history)+2)
	contents = append(contents, genai.NewContentFromText(systemPrompt, genai.RoleUser))
	contents = append(contents, c.history...)
	userContent := genai.NewContentFromText(userText, genai.RoleUser)
	contents = append(contents, userContent)
	c.mu.Unlock()

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(defaultTemperature)),
		MaxOutputTokens: int32(defaultMaxTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeoutSeconds*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err == nil {
			break
		}
		c.logger.Warn("Failed to generate reply, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}

	var text string
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		for _, part := range response.Candidates[0].Content.Parts {
			text += part.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("model returned no text")
	}

	c.mu.Lock()
	c.history = append(c.history, userContent, genai.NewContentFromText(text, genai.RoleModel))
	c.mu.Unlock()

	return text, nil
}

func (c *geminiConversation) History() []repositories.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]repositories.Turn, 0, len(c.history))
	for _, content := range c.history {
		role := repositories.UserRole
		if content.Role == genai.RoleModel {
			role = repositories.AgentRole
		}
		var text string
		for _, part := range content.Parts {
			text += part.Text
		}
		if text != "" {
			turns = append(turns, repositories.Turn{Role: role, Text: text})
		}
	}
	return turns
}
