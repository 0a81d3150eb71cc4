package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration shared by the dev server and the talk client.
type Config struct {
	Port           int
	ServerBaseURL  string
	WSBaseURL      string
	AgentID        string
	APIKey         string
	TokenSecret    string
	TokenTTL       time.Duration
	SampleRate     int
	AudioEnabled   bool
	AllowedOrigins []string
	UseMockAgent   bool
	UseMockSpeech  bool
}

// Load reads configuration from environment variables with defaults. A
// .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Port:           8080,
		ServerBaseURL:  "http://localhost:8080",
		WSBaseURL:      "ws://localhost:8080/ws/conversation",
		AgentID:        "default-agent",
		TokenTTL:       15 * time.Minute,
		SampleRate:     16000,
		AudioEnabled:   true,
		AllowedOrigins: []string{"*"},
		UseMockAgent:   true,
		UseMockSpeech:  true,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	if baseURL := os.Getenv("SERVER_BASE_URL"); baseURL != "" {
		config.ServerBaseURL = baseURL
	}

	if wsBaseURL := os.Getenv("WS_BASE_URL"); wsBaseURL != "" {
		config.WSBaseURL = wsBaseURL
	}

	if agentID := os.Getenv("AGENT_ID"); agentID != "" {
		config.AgentID = agentID
	}

	config.APIKey = os.Getenv("API_KEY")

	config.TokenSecret = os.Getenv("TOKEN_SECRET")
	if config.TokenSecret == "" {
		config.TokenSecret = "dev-only-secret"
	}

	// TOKEN_TTL is in minutes.
	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		config.TokenTTL = time.Duration(t) * time.Minute
	}

	if sampleRate := os.Getenv("SAMPLE_RATE"); sampleRate != "" {
		s, err := strconv.Atoi(sampleRate)
		if err != nil {
			return nil, fmt.Errorf("invalid SAMPLE_RATE: %w", err)
		}
		if s <= 0 {
			return nil, fmt.Errorf("SAMPLE_RATE must be positive, got %d", s)
		}
		config.SampleRate = s
	}

	if audioEnabled := os.Getenv("AUDIO_ENABLED"); audioEnabled != "" {
		b, err := strconv.ParseBool(audioEnabled)
		if err != nil {
			return nil, fmt.Errorf("invalid AUDIO_ENABLED: %w", err)
		}
		config.AudioEnabled = b
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// Real adapters activate when their credentials are set.
	if os.Getenv("GEMINI_API_KEY") != "" {
		config.UseMockAgent = false
	}
	if useMock := os.Getenv("USE_MOCK_AGENT"); useMock != "" {
		b, err := strconv.ParseBool(useMock)
		if err != nil {
			return nil, fmt.Errorf("invalid USE_MOCK_AGENT: %w", err)
		}
		config.UseMockAgent = b
	}

	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" && os.Getenv("ELEVEN_LABS_API_KEY") != "" {
		config.UseMockSpeech = false
	}
	if useMock := os.Getenv("USE_MOCK_SPEECH"); useMock != "" {
		b, err := strconv.ParseBool(useMock)
		if err != nil {
			return nil, fmt.Errorf("invalid USE_MOCK_SPEECH: %w", err)
		}
		config.UseMockSpeech = b
	}

	return config, nil
}
