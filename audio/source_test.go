package audio

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestMockSourceEmitsChunks(t *testing.T) {
	source := NewMockSource(10*time.Millisecond, 320, zap.NewNop())

	var mu sync.Mutex
	var chunks []string
	err := source.Start(context.Background(), func(chunk string) {
		mu.Lock()
		chunks = append(chunks, chunk)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer source.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(chunks)
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected at least 3 chunks, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	first := chunks[0]
	mu.Unlock()

	pcm, err := base64.StdEncoding.DecodeString(first)
	if err != nil {
		t.Fatalf("Chunk is not valid base64: %v", err)
	}
	if len(pcm) != 320 {
		t.Errorf("Expected 320 PCM bytes per chunk, got %d", len(pcm))
	}
}

func TestMockSourceDoubleStart(t *testing.T) {
	source := NewMockSource(time.Hour, 320, zap.NewNop())

	if err := source.Start(context.Background(), func(string) {}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer source.Stop()

	if err := source.Start(context.Background(), func(string) {}); err == nil {
		t.Error("Second Start() expected error, got nil")
	}
}

func TestMockSourceStopIdempotent(t *testing.T) {
	source := NewMockSource(time.Hour, 320, zap.NewNop())

	// Stop before start is a no-op.
	if err := source.Stop(); err != nil {
		t.Errorf("Stop() before Start() error = %v", err)
	}

	if err := source.Start(context.Background(), func(string) {}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := source.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := source.Stop(); err != nil {
		t.Errorf("Second Stop() error = %v", err)
	}
}
