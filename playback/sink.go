package playback

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/audio"
)

// Sink is the audio output device. Open is called once, lazily, before the
// first chunk; Play hands a complete WAV buffer to the device at its
// scheduled start time.
type Sink interface {
	Open(sampleRate int) error
	Play(wav []byte, at time.Time) error
	Close() error
}

// BufferSink accumulates played PCM in memory. Used by the demo CLI and for
// inspection in tests.
type BufferSink struct {
	mu     sync.Mutex
	pcm    []byte
	chunks int
	open   bool
}

func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (b *BufferSink) Open(sampleRate int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	return nil
}

func (b *BufferSink) Play(wav []byte, at time.Time) error {
	pcm, _, err := audio.DecodeWAV(wav)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return fmt.Errorf("sink not open")
	}
	b.pcm = append(b.pcm, pcm...)
	b.chunks++
	return nil
}

func (b *BufferSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	return nil
}

// PCM returns a copy of all PCM bytes played so far.
func (b *BufferSink) PCM() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.pcm))
	copy(out, b.pcm)
	return out
}

// Chunks returns the number of chunks played.
func (b *BufferSink) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chunks
}

// WAVFileSink writes the full played stream to a WAV file on Close.
type WAVFileSink struct {
	path string

	mu         sync.Mutex
	pcm        []byte
	sampleRate int
	open       bool
}

func NewWAVFileSink(path string) *WAVFileSink {
	return &WAVFileSink{path: path}
}

func (w *WAVFileSink) Open(sampleRate int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sampleRate = sampleRate
	w.open = true
	return nil
}

func (w *WAVFileSink) Play(wav []byte, at time.Time) error {
	pcm, _, err := audio.DecodeWAV(wav)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return fmt.Errorf("sink not open")
	}
	w.pcm = append(w.pcm, pcm...)
	return nil
}

func (w *WAVFileSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.open = false
	if len(w.pcm) == 0 {
		return nil
	}

	wav, err := audio.EncodeWAV(w.pcm, w.sampleRate)
	if err != nil {
		return fmt.Errorf("failed to encode output WAV: %w", err)
	}
	if err := os.WriteFile(w.path, wav, 0o644); err != nil {
		return fmt.Errorf("failed to write output WAV: %w", err)
	}
	return nil
}
