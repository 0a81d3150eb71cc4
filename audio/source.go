package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source captures microphone input and delivers fixed-period base64-encoded
// PCM chunks to a callback. Hardware capture backends live outside this
// module; the session only depends on this interface.
type Source interface {
	// Start begins capture and invokes emit for every captured chunk until
	// Stop is called or the context is cancelled.
	Start(ctx context.Context, emit func(base64Chunk string)) error

	// Stop halts capture. Safe to call when not capturing and safe to call
	// more than once.
	Stop() error
}

// MockSource is a deterministic capture source that emits synthetic PCM
// chunks on a fixed interval. Used by tests and the demo CLI.
type MockSource struct {
	interval   time.Duration
	chunkBytes int
	logger     *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewMockSource creates a mock capture source. interval is the chunk period,
// chunkBytes the raw PCM size of each chunk before base64 encoding.
func NewMockSource(interval time.Duration, chunkBytes int, logger *zap.Logger) *MockSource {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if chunkBytes <= 0 {
		chunkBytes = DefaultSampleRate / 4 * 2 // 250ms of PCM-16 @16kHz
	}
	if chunkBytes%2 != 0 {
		chunkBytes++
	}
	return &MockSource{
		interval:   interval,
		chunkBytes: chunkBytes,
		logger:     logger,
	}
}

func (m *MockSource) Start(ctx context.Context, emit func(string)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("capture already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	go m.captureLoop(ctx, emit)

	m.logger.Info("Mock capture started",
		zap.Duration("interval", m.interval),
		zap.Int("chunkBytes", m.chunkBytes))
	return nil
}

func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.cancel()
	m.running = false
	m.logger.Info("Mock capture stopped")
	return nil
}

func (m *MockSource) captureLoop(ctx context.Context, emit func(string)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pcm := make([]byte, m.chunkBytes)
			// Low-amplitude sawtooth so chunks are distinguishable.
			for i := 0; i < len(pcm); i += 2 {
				sample := int16((seq*31 + i) % 512)
				pcm[i] = byte(sample)
				pcm[i+1] = byte(sample >> 8)
			}
			seq++
			emit(base64.StdEncoding.EncodeToString(pcm))
		}
	}
}
