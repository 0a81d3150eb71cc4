// Command talk is an interactive conversation client. It fetches a signed
// websocket URL from the server, opens a session and bridges stdin to the
// agent. Type a line to chat, "/voice" to toggle the microphone stream and
// "/quit" to leave. Agent audio is written to agent_audio.wav on exit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/voxbridge/voxbridge/audio"
	"github.com/voxbridge/voxbridge/auth"
	"github.com/voxbridge/voxbridge/config"
	"github.com/voxbridge/voxbridge/playback"
	"github.com/voxbridge/voxbridge/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	urlClient := auth.NewSignedURLClient(cfg.ServerBaseURL, cfg.APIKey, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	signedURL, err := urlClient.FetchSignedURL(ctx, cfg.AgentID)
	cancel()
	if err != nil {
		logger.Fatal("Failed to fetch signed URL", zap.Error(err))
	}

	source := audio.NewMockSource(100*time.Millisecond, 3200, logger)
	sink := playback.NewWAVFileSink("agent_audio.wav")

	sess := session.New(session.Config{
		Source:       source,
		Sink:         sink,
		AudioEnabled: cfg.AudioEnabled,
		SampleRate:   cfg.SampleRate,
		Callbacks: session.Callbacks{
			OnAgentResponse: func(text string) {
				fmt.Printf("agent> %s\n", text)
			},
			OnUserTranscript: func(text string) {
				fmt.Printf("you> %s\n", text)
			},
		},
		Logger: logger,
	})

	if err := sess.Start(signedURL); err != nil {
		logger.Fatal("Failed to connect", zap.Error(err))
	}
	defer sess.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("Connected. Type to chat, /voice to toggle the mic, /quit to exit.")

	voiceCtx, voiceCancel := context.WithCancel(context.Background())
	defer voiceCancel()
	voiceOn := false

	for {
		select {
		case <-quit:
			fmt.Println("\nDisconnecting...")
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit":
				return
			case line == "/voice":
				if voiceOn {
					sess.StopVoice()
					voiceOn = false
					fmt.Println("Microphone off.")
				} else {
					sess.StartVoice(voiceCtx)
					voiceOn = true
					fmt.Println("Microphone on.")
				}
			default:
				sess.SendText(line)
			}
		}
	}
}
