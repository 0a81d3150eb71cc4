package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ConversationClaims carries the identity embedded in a signed
// conversation URL.
type ConversationClaims struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates short-lived conversation tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

const defaultTokenTTL = 15 * time.Minute

func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl}, nil
}

// Issue generates a signed token authorizing a conversation with agentID.
func (i *TokenIssuer) Issue(agentID, conversationID string) (string, error) {
	if agentID == "" {
		return "", fmt.Errorf("agent ID is required")
	}

	now := time.Now()
	claims := &ConversationClaims{
		AgentID:        agentID,
		ConversationID: conversationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses a token and returns its claims when the signature and
// expiry check out.
func (i *TokenIssuer) Validate(tokenString string) (*ConversationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ConversationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*ConversationClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
