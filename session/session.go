// Package session owns one logical conversation with the agent service over
// its lifetime: connect, stream, exchange messages, disconnect and
// transparently reconnect on unexpected loss.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voxbridge/voxbridge/audio"
	"github.com/voxbridge/voxbridge/playback"
	"github.com/voxbridge/voxbridge/protocol"
)

// State is the connection state of a session. It is owned exclusively by the
// session and mutated only on socket lifecycle events and explicit
// start/stop calls.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Callbacks are consumer-supplied event handlers, invoked at most once per
// logical event, in receipt order. Nil callbacks are skipped.
type Callbacks struct {
	// OnAgentResponse receives the agent's text replies.
	OnAgentResponse func(text string)

	// OnAudioResponse receives each base64 audio chunk. Fired only when
	// audio playback is enabled.
	OnAudioResponse func(base64Audio string)

	// OnUserTranscript receives transcriptions of the user's speech.
	OnUserTranscript func(text string)
}

// Config configures a Session.
type Config struct {
	// Source captures microphone audio. Required for voice streaming;
	// sessions used for text chat only may leave it nil.
	Source audio.Source

	// Sink is the audio output device. Required when AudioEnabled.
	Sink playback.Sink

	// AudioEnabled turns on playback of agent audio and delivery of
	// OnAudioResponse events.
	AudioEnabled bool

	// SampleRate of agent audio chunks. Defaults to audio.DefaultSampleRate.
	SampleRate int

	Callbacks Callbacks
	Logger    *zap.Logger
}

// Session is the conversation orchestrator. All exported methods are safe
// for concurrent use; internal state is guarded by a single mutex and the
// socket is owned by exactly one read loop at a time.
type Session struct {
	logger    *zap.Logger
	callbacks Callbacks
	scheduler *playback.Scheduler
	source    audio.Source

	audioEnabled bool

	// dial is swappable for tests.
	dial func(url string) (*websocket.Conn, error)

	mu               sync.Mutex
	conn             *websocket.Conn
	state            State
	url              string
	attemptCount     int
	manualDisconnect bool
	reconnectTimer   *time.Timer
	streaming        bool
	streamCancel     context.CancelFunc

	// generation detaches stale read loops: a loop whose generation no
	// longer matches delivers nothing.
	generation int
}

// New creates a session. The socket is not opened until Start.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}

	var scheduler *playback.Scheduler
	if cfg.AudioEnabled && cfg.Sink != nil {
		scheduler = playback.NewScheduler(cfg.Sink, sampleRate, logger)
	}

	return &Session{
		logger:       logger,
		callbacks:    cfg.Callbacks,
		scheduler:    scheduler,
		source:       cfg.Source,
		audioEnabled: cfg.AudioEnabled && cfg.Sink != nil,
		dial: func(url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			return conn, err
		},
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens a conversation against the given pre-authorized socket URL.
// An empty URL is a logged no-op. Any prior socket for this session is fully
// torn down first so events are never delivered twice. On open the reconnect
// attempt count is reset, the manual-disconnect flag is cleared and the
// conversation initiation frame is sent.
func (s *Session) Start(url string) error {
	if url == "" {
		s.logger.Warn("Cannot start conversation without a connection URL")
		return nil
	}

	s.mu.Lock()
	s.cancelPendingReconnectLocked()
	s.url = url
	s.mu.Unlock()

	return s.connect(url)
}

// connect dials the socket and, on success, resets the reconnect state and
// sends the initiation frame. On failure it leaves the session disconnected
// and arms the reconnect timer. A failed dial does not reset the attempt
// counter; only a successful open does.
func (s *Session) connect(url string) error {
	s.mu.Lock()
	s.teardownSocketLocked()
	s.state = StateConnecting
	s.mu.Unlock()

	conn, err := s.dial(url)
	if err != nil {
		s.logger.Error("Failed to open conversation socket", zap.Error(err))
		s.mu.Lock()
		s.state = StateDisconnected
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.attemptCount = 0
	s.manualDisconnect = false
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	s.logger.Info("Conversation socket opened", zap.String("url", url))

	if frame, err := protocol.ConversationInitFrame(); err == nil {
		s.send(frame)
	}

	go s.readLoop(conn, generation)
	return nil
}

// Stop ends the conversation. Idempotent. The manual-disconnect flag is set
// before anything else so a close racing with this call never triggers
// reconnection; pending reconnect timers are cancelled, capture is stopped,
// the socket is detached and closed, and queued playback is discarded. No
// callbacks fire after Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	s.manualDisconnect = true
	s.cancelPendingReconnectLocked()
	s.stopStreamingLocked()
	s.teardownSocketLocked()
	s.state = StateDisconnected
	s.mu.Unlock()

	if s.scheduler != nil {
		s.scheduler.Reset()
	}
	s.logger.Info("Conversation stopped")
}

// Close stops the conversation and releases the audio output device.
func (s *Session) Close() error {
	s.Stop()
	if s.scheduler != nil {
		return s.scheduler.Close()
	}
	return nil
}

// StartVoice begins streaming captured microphone chunks to the agent.
// Voice is supplementary to text chat, so precondition failures are logged
// and swallowed rather than surfaced.
func (s *Session) StartVoice(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateConnected {
		state := s.state
		s.mu.Unlock()
		s.logger.Error("Cannot start voice streaming", zap.Stringer("state", state))
		return
	}
	if s.source == nil {
		s.mu.Unlock()
		s.logger.Error("Cannot start voice streaming without a capture source")
		return
	}
	if s.streaming {
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.streamCancel = cancel
	s.streaming = true
	s.state = StateStreaming
	source := s.source
	s.mu.Unlock()

	err := source.Start(ctx, func(base64Chunk string) {
		frame, err := protocol.AudioChunkFrame(base64Chunk)
		if err != nil {
			s.logger.Warn("Failed to encode audio chunk", zap.Error(err))
			return
		}
		s.send(frame)
	})
	if err != nil {
		s.logger.Error("Failed to start audio capture", zap.Error(err))
		s.mu.Lock()
		s.stopStreamingLocked()
		if s.state == StateStreaming {
			s.state = StateConnected
		}
		s.mu.Unlock()
		return
	}

	s.logger.Info("Voice streaming started")
}

// StopVoice stops audio capture. Safe to call when not streaming.
func (s *Session) StopVoice() {
	s.mu.Lock()
	wasStreaming := s.streaming
	s.stopStreamingLocked()
	if s.state == StateStreaming {
		s.state = StateConnected
	}
	s.mu.Unlock()

	if wasStreaming {
		s.logger.Info("Voice streaming stopped")
	}
}

// SendText sends a text chat message. Messages sent while the socket is not
// open are logged and discarded; there is no outbound queue.
func (s *Session) SendText(text string) {
	frame, err := protocol.UserMessageFrame(text)
	if err != nil {
		s.logger.Warn("Failed to encode text message", zap.Error(err))
		return
	}
	s.send(frame)
}

// send writes a text frame, dropping it with a warning when the socket is
// not open. Writes are serialized by the session mutex.
func (s *Session) send(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		s.logger.Warn("Socket not open, dropping outbound frame")
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.logger.Warn("Failed to write frame", zap.Error(err))
	}
}

// readLoop pumps inbound frames until the socket closes. Frames are
// processed one at a time in arrival order.
func (s *Session) readLoop(conn *websocket.Conn, generation int) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(generation, err)
			return
		}
		if !s.isCurrent(generation) {
			return
		}
		s.handleFrame(generation, message)
	}
}

func (s *Session) isCurrent(generation int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return generation == s.generation
}

// handleFrame dispatches one inbound frame. A panic while handling a single
// frame is recovered so one malformed message cannot terminate the session.
// The generation is re-checked immediately before every side effect, so a
// Stop that lands after the read suppresses the dispatch.
func (s *Session) handleFrame(generation int, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered while handling frame", zap.Any("panic", r))
		}
	}()

	event, err := protocol.Decode(message)
	if err != nil {
		s.logger.Warn("Dropping malformed frame", zap.Error(err))
		return
	}

	switch e := event.(type) {
	case protocol.PingReceived:
		if s.isCurrent(generation) {
			s.handlePing(e)
		}

	case protocol.UserTranscript:
		if e.Text != "" && s.callbacks.OnUserTranscript != nil && s.isCurrent(generation) {
			s.callbacks.OnUserTranscript(e.Text)
		}

	case protocol.AgentResponse:
		if e.Text != "" && s.callbacks.OnAgentResponse != nil && s.isCurrent(generation) {
			s.callbacks.OnAgentResponse(e.Text)
		}

	case protocol.Interruption:
		// Barge-in: a new agent turn preempts any audio still queued from
		// the previous turn.
		s.logger.Info("Agent interruption", zap.String("reason", e.Reason))
		if s.scheduler != nil && s.isCurrent(generation) {
			s.scheduler.Interrupt()
		}

	case protocol.Audio:
		if !s.audioEnabled || !s.isCurrent(generation) {
			return
		}
		s.scheduler.Enqueue(e.Base64)
		if s.callbacks.OnAudioResponse != nil {
			s.callbacks.OnAudioResponse(e.Base64)
		}

	case protocol.InitMetadata:
		s.logger.Info("Conversation initiation metadata received",
			zap.ByteString("metadata", e.Raw))

	case protocol.Unknown:
		s.logger.Warn("Unhandled frame type", zap.String("type", e.Type))
	}
}

// handlePing replies with a pong carrying the ping's event ID, delayed by
// the server-supplied millisecond hint. Pings without an event ID get an
// immediate legacy pong.
func (s *Session) handlePing(ping protocol.PingReceived) {
	frame, err := protocol.PongFrame(ping.EventID)
	if err != nil {
		s.logger.Warn("Failed to encode pong", zap.Error(err))
		return
	}

	if ping.EventID == "" || ping.DelayMS <= 0 {
		s.send(frame)
		return
	}

	time.AfterFunc(time.Duration(ping.DelayMS)*time.Millisecond, func() {
		s.send(frame)
	})
}

// stopStreamingLocked stops capture. Caller holds s.mu.
func (s *Session) stopStreamingLocked() {
	if !s.streaming {
		return
	}
	s.streaming = false
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
	if s.source != nil {
		if err := s.source.Stop(); err != nil {
			s.logger.Warn("Failed to stop audio capture", zap.Error(err))
		}
	}
}

// teardownSocketLocked detaches and closes any current socket. Bumping the
// generation first guarantees the old read loop delivers no further events.
// Caller holds s.mu.
func (s *Session) teardownSocketLocked() {
	s.generation++
	if s.conn == nil {
		return
	}
	conn := s.conn
	s.conn = nil

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = conn.Close()
}
