package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNewElevenLabsTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	os.Unsetenv("ELEVEN_LABS_API_KEY")
	config := NewElevenLabsConfigFromEnv()
	_, err := NewElevenLabsTTS(config, logger)
	if err == nil {
		t.Error("Expected error when API key is not set")
	}

	os.Setenv("ELEVEN_LABS_API_KEY", "test-api-key")
	defer os.Unsetenv("ELEVEN_LABS_API_KEY")

	config = NewElevenLabsConfigFromEnv()
	tts, err := NewElevenLabsTTS(config, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if tts.apiKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", tts.apiKey)
	}

	if tts.voiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, tts.voiceID)
	}

	if tts.outputFormat != defaultOutputFormat {
		t.Errorf("Expected default output format '%s', got '%s'", defaultOutputFormat, tts.outputFormat)
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ElevenLabsConfig
		wantErr bool
	}{
		{"valid minimal", ElevenLabsConfig{APIKey: "key"}, false},
		{"missing key", ElevenLabsConfig{}, true},
		{"stability out of range", ElevenLabsConfig{APIKey: "key", Stability: 1.5}, true},
		{"clarity out of range", ElevenLabsConfig{APIKey: "key", Clarity: -0.1}, true},
		{"valid tuned", ElevenLabsConfig{APIKey: "key", Stability: 0.3, Clarity: 0.9}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateElevenLabsConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateElevenLabsConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestElevenLabsTTS_Synthesize_EmptyText(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx := context.Background()
	if _, err := tts.Synthesize(ctx, ""); err == nil {
		t.Error("Expected error for empty text")
	}
	if _, err := tts.Synthesize(ctx, "   "); err == nil {
		t.Error("Expected error for whitespace-only text")
	}
}

func TestElevenLabsTTS_Synthesize(t *testing.T) {
	logger := zaptest.NewLogger(t)

	wantAudio := []byte{0x01, 0x02, 0x03, 0x04}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-api-key" {
			t.Errorf("Expected xi-api-key header 'test-api-key', got '%s'", got)
		}
		if got := r.Header.Get("Accept"); got != "audio/pcm" {
			t.Errorf("Expected Accept header 'audio/pcm', got '%s'", got)
		}

		var req elevenLabsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if req.Text != "hello there" {
			t.Errorf("Expected text 'hello there', got '%s'", req.Text)
		}

		w.Write(wantAudio)
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	audio, err := tts.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(audio) != len(wantAudio) {
		t.Errorf("Expected %d audio bytes, got %d", len(wantAudio), len(audio))
	}
}

func TestElevenLabsTTS_Synthesize_APIError(t *testing.T) {
	logger := zaptest.NewLogger(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:     "bad-key",
		APIBaseURL: server.URL,
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if _, err := tts.Synthesize(context.Background(), "hello"); err == nil {
		t.Error("Expected error for non-200 response")
	}
}

func TestMockTextToSpeech(t *testing.T) {
	mock := NewMockTextToSpeech()

	audio, err := mock.Synthesize(context.Background(), "one two three")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(audio) == 0 {
		t.Error("Expected non-empty audio")
	}
	if len(audio)%2 != 0 {
		t.Error("Expected even number of PCM bytes")
	}

	if _, err := mock.Synthesize(context.Background(), ""); err == nil {
		t.Error("Expected error for empty text")
	}
}
