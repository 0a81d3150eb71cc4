package devserver

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voxbridge/voxbridge/adapters/llm"
	"github.com/voxbridge/voxbridge/adapters/stt"
	"github.com/voxbridge/voxbridge/adapters/tts"
	"github.com/voxbridge/voxbridge/auth"
	"github.com/voxbridge/voxbridge/config"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *auth.TokenIssuer) {
	t.Helper()

	issuer, err := auth.NewTokenIssuer([]byte("test-secret"), time.Minute)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}

	cfg := &config.Config{
		Port:           0,
		WSBaseURL:      "ws://localhost/ws/conversation",
		AgentID:        "agent-1",
		SampleRate:     16000,
		AllowedOrigins: []string{"*"},
	}

	s := New(cfg, llm.NewMockAgent(), stt.NewMockSpeechToText(), tts.NewMockTextToSpeech(), issuer, zap.NewNop())
	ts := httptest.NewServer(s.Echo())
	t.Cleanup(ts.Close)
	return s, ts, issuer
}

func dialConversation(t *testing.T, ts *httptest.Server, issuer *auth.TokenIssuer) *websocket.Conn {
	t.Helper()

	token, err := issuer.Issue("agent-1", "conv-1")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/conversation?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrameOfType reads frames until one matches wantType, skipping
// keepalives and anything else in between.
func readFrameOfType(t *testing.T, conn *websocket.Conn, wantType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read frame: %v", err)
		}
		if string(message) == "pong" {
			continue
		}
		var parsed map[string]interface{}
		if err := json.Unmarshal(message, &parsed); err != nil {
			continue
		}
		if parsed["type"] == wantType {
			return parsed
		}
	}
	t.Fatalf("Never received frame of type %q", wantType)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestSignedURLEndpoint(t *testing.T) {
	_, ts, issuer := newTestServer(t)

	resp, err := http.Get(ts.URL + "/conversation/signed-url?agent_id=agent-1")
	if err != nil {
		t.Fatalf("Signed URL request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var parsed auth.SignedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	u := parsed.SignedURL
	if !strings.Contains(u, "token=") {
		t.Fatalf("Expected token in signed URL, got %s", u)
	}
	token := u[strings.Index(u, "token=")+len("token="):]
	if i := strings.Index(token, "&"); i >= 0 {
		token = token[:i]
	}
	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Embedded token failed validation: %v", err)
	}
	if claims.AgentID != "agent-1" {
		t.Errorf("Expected agent ID 'agent-1', got '%s'", claims.AgentID)
	}
}

func TestSignedURLRequiresAgentID(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/conversation/signed-url")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestSignedURLChecksAPIKey(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.cfg.APIKey = "required-key"
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/conversation/signed-url?agent_id=agent-1")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without key, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/conversation/signed-url?agent_id=agent-1", nil)
	req.Header.Set("xi-api-key", "required-key")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 with key, got %d", resp.StatusCode)
	}
}

func TestConversationRejectsBadToken(t *testing.T) {
	_, ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/conversation?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Expected dial to fail with bad token")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

func TestConversationInitMetadata(t *testing.T) {
	_, ts, issuer := newTestServer(t)
	conn := dialConversation(t, ts, issuer)

	if err := conn.WriteJSON(map[string]string{"type": "conversation_initiation_client_data"}); err != nil {
		t.Fatalf("Failed to send init: %v", err)
	}

	frame := readFrameOfType(t, conn, "conversation_initiation_metadata")
	meta, ok := frame["conversation_initiation_metadata_event"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected metadata event object, got %v", frame)
	}
	if meta["conversation_id"] != "conv-1" {
		t.Errorf("Expected conversation ID 'conv-1', got %v", meta["conversation_id"])
	}
}

func TestConversationLegacyPing(t *testing.T) {
	_, ts, issuer := newTestServer(t)
	conn := dialConversation(t, ts, issuer)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("Failed to send ping: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read reply: %v", err)
	}
	if string(message) != "pong" {
		t.Errorf("Expected plain 'pong', got %q", string(message))
	}
}

func TestConversationUserMessage(t *testing.T) {
	_, ts, issuer := newTestServer(t)
	conn := dialConversation(t, ts, issuer)

	if err := conn.WriteJSON(map[string]string{"type": "user_message", "text": "hello"}); err != nil {
		t.Fatalf("Failed to send user message: %v", err)
	}

	frame := readFrameOfType(t, conn, "agent_response")
	event, ok := frame["agent_response_event"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected agent response event, got %v", frame)
	}
	reply, _ := event["agent_response"].(string)
	if !strings.Contains(reply, "hello") {
		t.Errorf("Expected reply to echo input, got %q", reply)
	}

	audioFrame := readFrameOfType(t, conn, "audio")
	audioEvent, ok := audioFrame["audio_event"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected audio event, got %v", audioFrame)
	}
	encoded, _ := audioEvent["audio_base_64"].(string)
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("Audio chunk is not valid base64: %v", err)
	}
	if len(pcm) == 0 {
		t.Error("Expected non-empty audio chunk")
	}
}

func TestConversationAudioPipeline(t *testing.T) {
	_, ts, issuer := newTestServer(t)
	conn := dialConversation(t, ts, issuer)

	chunk := base64.StdEncoding.EncodeToString(make([]byte, 640))
	for i := 0; i < 3; i++ {
		if err := conn.WriteJSON(map[string]string{"user_audio_chunk": chunk}); err != nil {
			t.Fatalf("Failed to send audio chunk: %v", err)
		}
	}

	// The utterance finalizes after the hold period elapses.
	frame := readFrameOfType(t, conn, "user_transcript")
	event, ok := frame["user_transcription_event"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected transcription event, got %v", frame)
	}
	transcript, _ := event["user_transcript"].(string)
	if transcript == "" {
		t.Error("Expected non-empty transcript")
	}

	readFrameOfType(t, conn, "agent_response")
}

func TestConversationAgentMismatch(t *testing.T) {
	_, ts, issuer := newTestServer(t)

	token, err := issuer.Issue("agent-1", "conv-1")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/conversation?token=" + token + "&agent_id=other-agent"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Expected dial to fail with mismatched agent")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.StatusCode)
	}
}
