// Package playback serializes decoded agent audio onto an output device with
// back-to-back timing. Chunks play in enqueue order; the wire delivers audio
// frames in send order over one socket stream, so no sequence numbers are
// needed.
package playback

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxbridge/voxbridge/audio"
)

// Clock abstracts the monotonic time source used for scheduling, so tests
// can drive playback deterministically.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Scheduler queues base64-encoded PCM chunks and plays them gaplessly in
// FIFO order. The output device is opened lazily on the first chunk and
// closed on Close.
type Scheduler struct {
	sink       Sink
	sampleRate int
	clock      Clock
	logger     *zap.Logger

	mu        sync.Mutex
	queue     []string
	draining  bool
	playing   bool
	sinkOpen  bool
	closed    bool
	nextStart time.Time
}

// NewScheduler creates a playback scheduler writing to sink. sampleRate is
// the PCM sample rate of incoming chunks.
func NewScheduler(sink Sink, sampleRate int, logger *zap.Logger) *Scheduler {
	return newSchedulerWithClock(sink, sampleRate, realClock{}, logger)
}

func newSchedulerWithClock(sink Sink, sampleRate int, clock Clock, logger *zap.Logger) *Scheduler {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Scheduler{
		sink:       sink,
		sampleRate: sampleRate,
		clock:      clock,
		logger:     logger,
	}
}

// Enqueue appends a base64-encoded PCM chunk to the playback queue and
// starts the drain loop if one is not already running. New arrivals while a
// drain is active are picked up by the active loop.
func (s *Scheduler) Enqueue(base64Chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn("Playback scheduler closed, dropping audio chunk")
		return
	}

	s.queue = append(s.queue, base64Chunk)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

// Interrupt hard-clears queued chunks and marks playback not in progress.
// An already-started chunk is not stopped; it only prevents further chunks
// from starting.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := len(s.queue)
	s.queue = nil
	s.playing = false
	if dropped > 0 {
		s.logger.Info("Playback interrupted", zap.Int("droppedChunks", dropped))
	}
}

// Reset clears the queue and rewinds the playback clock. Called on manual
// session stop.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = nil
	s.playing = false
	s.nextStart = time.Time{}
}

// Close resets the scheduler and releases the output device. The scheduler
// cannot be reused after Close.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.playing = false
	s.nextStart = time.Time{}
	wasOpen := s.sinkOpen
	s.mu.Unlock()

	if wasOpen {
		return s.sink.Close()
	}
	return nil
}

// Playing reports whether a chunk is currently scheduled or in flight.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// QueueLen returns the number of chunks awaiting playback.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// drain is the single-flight playback loop. Exactly one drain runs at a
// time; the draining flag is the re-entrancy guard.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.closed || len(s.queue) == 0 {
			s.draining = false
			s.playing = false
			s.mu.Unlock()
			return
		}
		chunk := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if err := s.playChunk(chunk); err != nil {
			// A single bad chunk is skipped, never fatal.
			s.logger.Warn("Skipping unplayable audio chunk", zap.Error(err))
		}
	}
}

// playChunk decodes one chunk, schedules it immediately after the previous
// one finishes and waits for its playback window to elapse.
func (s *Scheduler) playChunk(base64Chunk string) error {
	wav, err := audio.DecodeBase64WAV(base64Chunk, s.sampleRate)
	if err != nil {
		return err
	}
	duration, err := audio.WAVDuration(wav)
	if err != nil {
		return err
	}

	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	start := s.nextStart
	if start.Before(now) {
		start = now
	}
	s.nextStart = start.Add(duration)
	end := s.nextStart
	s.playing = true
	needOpen := !s.sinkOpen
	s.sinkOpen = true
	s.mu.Unlock()

	if needOpen {
		if err := s.sink.Open(s.sampleRate); err != nil {
			s.mu.Lock()
			s.sinkOpen = false
			s.mu.Unlock()
			return err
		}
	}

	if wait := start.Sub(now); wait > 0 {
		s.clock.Sleep(wait)
	}

	if err := s.sink.Play(wav, start); err != nil {
		return err
	}

	// Await completion before dequeuing the next chunk.
	if wait := end.Sub(s.clock.Now()); wait > 0 {
		s.clock.Sleep(wait)
	}
	return nil
}
