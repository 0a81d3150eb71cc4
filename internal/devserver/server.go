// Package devserver implements a development-time conversational agent
// service. It exposes the REST endpoint that issues signed websocket URLs
// and the websocket endpoint that speaks the conversation wire protocol,
// backed by pluggable agent, speech-to-text and text-to-speech adapters.
package devserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/voxbridge/voxbridge/auth"
	"github.com/voxbridge/voxbridge/config"
	"github.com/voxbridge/voxbridge/domain/repositories"
)

// Server wires the HTTP surface to the conversation collaborators.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	agent  repositories.Agent
	stt    repositories.SpeechToText
	tts    repositories.TextToSpeech
	issuer *auth.TokenIssuer
	logger *zap.Logger
}

// ErrorResponse is the JSON error body for REST endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func New(
	cfg *config.Config,
	agent repositories.Agent,
	stt repositories.SpeechToText,
	tts repositories.TextToSpeech,
	issuer *auth.TokenIssuer,
	logger *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
	}))

	s := &Server{
		echo:   e,
		cfg:    cfg,
		agent:  agent,
		stt:    stt,
		tts:    tts,
		issuer: issuer,
		logger: logger,
	}

	e.GET("/health", s.health)
	e.GET("/conversation/signed-url", s.signedURL)
	e.GET("/ws/conversation", s.handleConversation)

	return s
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.cfg.Port))
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "voxbridge-devserver",
	})
}

// signedURL issues a short-lived conversation token and embeds it in the
// websocket URL the client should dial.
func (s *Server) signedURL(c echo.Context) error {
	agentID := c.QueryParam("agent_id")
	if agentID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_agent_id",
			Message: "agent_id query parameter is required",
		})
	}

	if s.cfg.APIKey != "" && c.Request().Header.Get("xi-api-key") != s.cfg.APIKey {
		s.logger.Warn("Signed URL request rejected: bad API key",
			zap.String("agentID", agentID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_api_key",
			Message: "A valid API key is required",
		})
	}

	conversationID := uuid.NewString()
	token, err := s.issuer.Issue(agentID, conversationID)
	if err != nil {
		s.logger.Error("Failed to issue conversation token",
			zap.String("agentID", agentID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate conversation token",
		})
	}

	signed, err := auth.BuildSignedURL(s.cfg.WSBaseURL, agentID, token)
	if err != nil {
		s.logger.Error("Failed to build signed URL", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "signed_url_failed",
			Message: "Failed to build signed URL",
		})
	}

	s.logger.Info("Issued signed URL",
		zap.String("agentID", agentID),
		zap.String("conversationID", conversationID))

	return c.JSON(http.StatusOK, auth.SignedURLResponse{SignedURL: signed})
}

// handleConversation validates the conversation token and hands the
// connection to the websocket loop.
func (s *Server) handleConversation(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		s.logger.Warn("Conversation rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "token query parameter is required",
		})
	}

	claims, err := s.issuer.Validate(token)
	if err != nil {
		s.logger.Warn("Conversation rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired conversation token",
		})
	}

	if agentID := c.QueryParam("agent_id"); agentID != "" && agentID != claims.AgentID {
		s.logger.Warn("Conversation rejected: agent mismatch",
			zap.String("tokenAgent", claims.AgentID),
			zap.String("requestAgent", agentID))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "agent_mismatch",
			Message: "Token was issued for a different agent",
		})
	}

	return serveConversation(s, c, claims)
}
