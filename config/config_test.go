package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"PORT", "SERVER_BASE_URL", "WS_BASE_URL", "AGENT_ID", "API_KEY",
		"TOKEN_SECRET", "TOKEN_TTL", "SAMPLE_RATE", "AUDIO_ENABLED",
		"ALLOWED_ORIGINS", "GEMINI_API_KEY", "USE_MOCK_AGENT",
		"GOOGLE_APPLICATION_CREDENTIALS", "ELEVEN_LABS_API_KEY", "USE_MOCK_SPEECH",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", cfg.SampleRate)
	}
	if !cfg.AudioEnabled {
		t.Error("Expected audio enabled by default")
	}
	if !cfg.UseMockAgent {
		t.Error("Expected mock agent by default")
	}
	if cfg.TokenTTL != 15*time.Minute {
		t.Errorf("Expected default token TTL 15m, got %v", cfg.TokenTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("PORT", "9090")
	os.Setenv("AGENT_ID", "agent-x")
	os.Setenv("SAMPLE_RATE", "24000")
	os.Setenv("AUDIO_ENABLED", "false")
	os.Setenv("TOKEN_TTL", "5")
	os.Setenv("ALLOWED_ORIGINS", "https://a.test,https://b.test")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if cfg.AgentID != "agent-x" {
		t.Errorf("Expected agent ID 'agent-x', got '%s'", cfg.AgentID)
	}
	if cfg.SampleRate != 24000 {
		t.Errorf("Expected sample rate 24000, got %d", cfg.SampleRate)
	}
	if cfg.AudioEnabled {
		t.Error("Expected audio disabled")
	}
	if cfg.TokenTTL != 5*time.Minute {
		t.Errorf("Expected token TTL 5m, got %v", cfg.TokenTTL)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 allowed origins, got %d", len(cfg.AllowedOrigins))
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "PORT", "not-a-number"},
		{"bad sample rate", "SAMPLE_RATE", "abc"},
		{"negative sample rate", "SAMPLE_RATE", "-1"},
		{"bad audio flag", "AUDIO_ENABLED", "maybe"},
		{"bad ttl", "TOKEN_TTL", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			os.Setenv(tt.key, tt.value)
			defer os.Unsetenv(tt.key)

			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadMockSelection(t *testing.T) {
	clearEnv(t)
	os.Setenv("GEMINI_API_KEY", "real-key")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.UseMockAgent {
		t.Error("Expected real agent when GEMINI_API_KEY is set")
	}

	os.Setenv("USE_MOCK_AGENT", "true")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.UseMockAgent {
		t.Error("Expected USE_MOCK_AGENT to override key detection")
	}
}
