package tts

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/voxbridge/voxbridge/audio"
	"github.com/voxbridge/voxbridge/domain/repositories"
)

// MockTextToSpeech synthesizes a short sine-like PCM tone whose length
// scales with the input text, so downstream consumers see realistic
// audio sizes without a network call.
type MockTextToSpeech struct {
	SampleRate int
}

var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

func NewMockTextToSpeech() *MockTextToSpeech {
	return &MockTextToSpeech{SampleRate: audio.DefaultSampleRate}
}

func (m *MockTextToSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	// Roughly 50ms of audio per word keeps mock playback short.
	words := len(strings.Fields(text))
	samples := m.SampleRate * words / 20
	if samples == 0 {
		samples = m.SampleRate / 20
	}

	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16((i % 128) * 200)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm, nil
}
