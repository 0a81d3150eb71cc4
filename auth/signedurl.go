package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// SignedURLResponse is the payload returned by the signed URL endpoint.
type SignedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// SignedURLClient fetches a pre-authorized websocket URL from the
// conversation server's REST API. Private agents require this step
// before the websocket dial.
type SignedURLClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSignedURLClient(baseURL, apiKey string, logger *zap.Logger) *SignedURLClient {
	return &SignedURLClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// FetchSignedURL requests a signed websocket URL for agentID.
func (c *SignedURLClient) FetchSignedURL(ctx context.Context, agentID string) (string, error) {
	if agentID == "" {
		return "", fmt.Errorf("agent ID is required")
	}

	endpoint := fmt.Sprintf("%s/conversation/signed-url?agent_id=%s", c.baseURL, url.QueryEscape(agentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("xi-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch signed URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("signed URL endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed SignedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode signed URL response: %w", err)
	}
	if parsed.SignedURL == "" {
		return "", fmt.Errorf("signed URL endpoint returned empty URL")
	}

	c.logger.Debug("Fetched signed URL", zap.String("agentID", agentID))
	return parsed.SignedURL, nil
}

// BuildSignedURL produces the websocket URL a client should dial, with
// the conversation token embedded as a query parameter. The server side
// calls this when answering a signed URL request.
func BuildSignedURL(wsBaseURL, agentID, token string) (string, error) {
	u, err := url.Parse(wsBaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket base URL: %w", err)
	}

	q := u.Query()
	q.Set("agent_id", agentID)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
