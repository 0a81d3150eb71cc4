package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestTokenIssueAndValidate(t *testing.T) {
	issuer, err := NewTokenIssuer([]byte("test-secret"), time.Minute)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}

	token, err := issuer.Issue("agent-1", "conv-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.AgentID != "agent-1" {
		t.Errorf("Expected agent ID 'agent-1', got '%s'", claims.AgentID)
	}
	if claims.ConversationID != "conv-1" {
		t.Errorf("Expected conversation ID 'conv-1', got '%s'", claims.ConversationID)
	}
}

func TestTokenValidateRejectsWrongSecret(t *testing.T) {
	issuer, err := NewTokenIssuer([]byte("secret-a"), time.Minute)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}
	other, err := NewTokenIssuer([]byte("secret-b"), time.Minute)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}

	token, err := issuer.Issue("agent-1", "conv-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := other.Validate(token); err == nil {
		t.Error("Expected validation to fail with a different secret")
	}
}

func TestTokenValidateRejectsExpired(t *testing.T) {
	issuer, err := NewTokenIssuer([]byte("test-secret"), time.Nanosecond)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}

	token, err := issuer.Issue("agent-1", "conv-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := issuer.Validate(token); err == nil {
		t.Error("Expected validation to fail for expired token")
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer(nil, time.Minute); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestFetchSignedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("agent_id"); got != "agent-1" {
			t.Errorf("Expected agent_id 'agent-1', got '%s'", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("Expected xi-api-key 'test-key', got '%s'", got)
		}
		json.NewEncoder(w).Encode(SignedURLResponse{SignedURL: "ws://example.test/ws?token=abc"})
	}))
	defer server.Close()

	client := NewSignedURLClient(server.URL, "test-key", zap.NewNop())
	signedURL, err := client.FetchSignedURL(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("FetchSignedURL failed: %v", err)
	}
	if !strings.HasPrefix(signedURL, "ws://") {
		t.Errorf("Expected websocket URL, got '%s'", signedURL)
	}
}

func TestFetchSignedURLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewSignedURLClient(server.URL, "", zap.NewNop())
	if _, err := client.FetchSignedURL(context.Background(), "agent-1"); err == nil {
		t.Error("Expected error for non-200 response")
	}
	if _, err := client.FetchSignedURL(context.Background(), ""); err == nil {
		t.Error("Expected error for empty agent ID")
	}
}

func TestBuildSignedURL(t *testing.T) {
	signedURL, err := BuildSignedURL("ws://localhost:8080/ws/conversation", "agent-1", "tok-123")
	if err != nil {
		t.Fatalf("BuildSignedURL failed: %v", err)
	}

	u, err := url.Parse(signedURL)
	if err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if u.Query().Get("agent_id") != "agent-1" {
		t.Errorf("Expected agent_id 'agent-1', got '%s'", u.Query().Get("agent_id"))
	}
	if u.Query().Get("token") != "tok-123" {
		t.Errorf("Expected token 'tok-123', got '%s'", u.Query().Get("token"))
	}
}
