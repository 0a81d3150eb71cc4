package stt

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxbridge/voxbridge/domain/repositories"
)

// MockSpeechToText returns a canned transcript instead of calling a cloud
// recognizer. The transcript reports how much audio was written so tests
// can assert the pipeline carried the bytes through.
type MockSpeechToText struct {
	// Transcript, when non-empty, is returned verbatim from End.
	Transcript string
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

func NewMockSpeechToText() *MockSpeechToText {
	return &MockSpeechToText{}
}

func (m *MockSpeechToText) StartStream(ctx context.Context, config repositories.AudioConfig) (repositories.TranscriptionStream, error) {
	return &mockStream{transcript: m.Transcript}, nil
}

type mockStream struct {
	mu         sync.Mutex
	transcript string
	byteCount  int
	ended      bool
}

func (s *mockStream) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return fmt.Errorf("stream already ended")
	}
	s.byteCount += len(pcm)
	return nil
}

func (s *mockStream) End() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return "", fmt.Errorf("stream already ended")
	}
	s.ended = true
	if s.byteCount == 0 {
		return "", fmt.Errorf("no audio data received")
	}
	if s.transcript != "" {
		return s.transcript, nil
	}
	return fmt.Sprintf("mock transcript of %d bytes", s.byteCount), nil
}
