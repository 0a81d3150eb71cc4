package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/voxbridge/voxbridge/adapters/llm"
	"github.com/voxbridge/voxbridge/adapters/stt"
	"github.com/voxbridge/voxbridge/adapters/tts"
	"github.com/voxbridge/voxbridge/auth"
	"github.com/voxbridge/voxbridge/config"
	"github.com/voxbridge/voxbridge/domain/repositories"
	"github.com/voxbridge/voxbridge/internal/devserver"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	issuer, err := auth.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}

	var agent repositories.Agent
	if cfg.UseMockAgent {
		logger.Info("Using mock agent")
		agent = llm.NewMockAgent()
	} else {
		agent, err = llm.NewGeminiAgent(context.Background(), logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini agent", zap.Error(err))
		}
	}

	var speechToText repositories.SpeechToText
	var textToSpeech repositories.TextToSpeech
	if cfg.UseMockSpeech {
		logger.Info("Using mock speech adapters")
		speechToText = stt.NewMockSpeechToText()
		textToSpeech = tts.NewMockTextToSpeech()
	} else {
		speechToText = stt.NewGoogleSpeechToText(logger)
		textToSpeech, err = tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to create text to speech", zap.Error(err))
		}
	}

	server := devserver.New(cfg, agent, speechToText, textToSpeech, issuer, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
