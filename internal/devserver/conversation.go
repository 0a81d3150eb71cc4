package devserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/voxbridge/voxbridge/auth"
	"github.com/voxbridge/voxbridge/domain/repositories"
	"github.com/voxbridge/voxbridge/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send protocol-level pings with this period.
	pingPeriod = 20 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Silence gap after the last audio chunk that ends the utterance.
	utteranceHold = 600 * time.Millisecond

	// Synthesized speech is sent in chunks of this many PCM bytes.
	audioChunkBytes = 3200
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// client holds one websocket conversation. Outbound frames flow through
// the send channel so a single goroutine owns socket writes.
type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	conversationID string
	agentID        string

	mu         sync.Mutex
	convo      repositories.Conversation
	sttStream  repositories.TranscriptionStream
	flushTimer *time.Timer
	speaking   bool
	pingSentAt map[string]time.Time
	closed     bool
}

// serveConversation upgrades the connection and runs the read and write
// pumps until the peer goes away.
func serveConversation(s *Server, c echo.Context, claims *auth.ConversationClaims) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	cl := &client{
		server:         s,
		conn:           conn,
		send:           make(chan []byte, 256),
		logger:         s.logger,
		conversationID: claims.ConversationID,
		agentID:        claims.AgentID,
		pingSentAt:     make(map[string]time.Time),
	}

	s.logger.Info("Conversation started",
		zap.String("conversationID", cl.conversationID),
		zap.String("agentID", cl.agentID))

	go cl.writePump()
	cl.readPump()
	return nil
}

func (c *client) readPump() {
	defer func() {
		c.teardown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error",
					zap.String("conversationID", c.conversationID),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Warn("Ignoring non-text message", zap.Int("type", messageType))
			continue
		}

		// Legacy keepalive is plain text, not JSON.
		if string(message) == protocol.LegacyPing {
			c.enqueue([]byte(protocol.LegacyPong))
			continue
		}

		c.processFrame(message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message",
					zap.String("conversationID", c.conversationID),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			eventID := uuid.NewString()
			frame, err := protocol.PingFrame(eventID, 0)
			if err != nil {
				continue
			}
			c.mu.Lock()
			c.pingSentAt[eventID] = time.Now()
			c.mu.Unlock()
			c.enqueue(frame)
		}
	}
}

// enqueue hands a frame to the write pump, dropping it when the buffer is
// full or the conversation has ended.
func (c *client) enqueue(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Warn("Dropping outbound frame: send buffer full",
			zap.String("conversationID", c.conversationID))
	}
}

func (c *client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.flushTimer != nil {
		c.flushTimer.Stop()
	}
	close(c.send)
	c.logger.Info("Conversation ended",
		zap.String("conversationID", c.conversationID))
}

// clientFrame covers every inbound JSON shape. Microphone chunks have no
// type tag and are recognized by the user_audio_chunk field.
type clientFrame struct {
	Type           string `json:"type"`
	Text           string `json:"text"`
	EventID        string `json:"event_id"`
	UserAudioChunk string `json:"user_audio_chunk"`
}

func (c *client) processFrame(message []byte) {
	var frame clientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Error("Failed to parse frame",
			zap.String("conversationID", c.conversationID),
			zap.Error(err))
		return
	}

	if frame.UserAudioChunk != "" {
		c.handleAudioChunk(frame.UserAudioChunk)
		return
	}

	switch frame.Type {
	case protocol.TypeConversationInit:
		c.handleInit()
	case protocol.TypeUserMessage:
		c.handleUserMessage(frame.Text)
	case protocol.TypePong:
		c.handlePong(frame.EventID)
	default:
		c.logger.Warn("Unknown frame type",
			zap.String("conversationID", c.conversationID),
			zap.String("type", frame.Type))
	}
}

func (c *client) handleInit() {
	frame, err := protocol.InitMetadataFrame(map[string]interface{}{
		"conversation_id":     c.conversationID,
		"agent_id":            c.agentID,
		"agent_output_format": "pcm_16000",
		"user_input_format":   "pcm_16000",
	})
	if err != nil {
		c.logger.Error("Failed to build initiation metadata", zap.Error(err))
		return
	}
	c.enqueue(frame)
}

func (c *client) handlePong(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sentAt, ok := c.pingSentAt[eventID]
	if !ok {
		return
	}
	delete(c.pingSentAt, eventID)
	c.logger.Debug("Pong received",
		zap.String("conversationID", c.conversationID),
		zap.Duration("latency", time.Since(sentAt)))
}

func (c *client) handleUserMessage(text string) {
	if text == "" {
		return
	}
	go c.respond(text)
}

// handleAudioChunk feeds one microphone chunk into the transcription
// stream. Audio arriving while the agent is speaking interrupts playback.
func (c *client) handleAudioChunk(base64Chunk string) {
	pcm, err := base64.StdEncoding.DecodeString(base64Chunk)
	if err != nil {
		c.logger.Error("Failed to decode audio chunk",
			zap.String("conversationID", c.conversationID),
			zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.speaking {
		c.speaking = false
		c.mu.Unlock()
		if frame, err := protocol.InterruptionFrame("user audio received"); err == nil {
			c.enqueue(frame)
		}
		c.mu.Lock()
	}

	if c.sttStream == nil {
		stream, err := c.server.stt.StartStream(context.Background(), repositories.AudioConfig{
			SampleRate: c.server.cfg.SampleRate,
			Encoding:   "LINEAR16",
			Language:   "en-US",
		})
		if err != nil {
			c.mu.Unlock()
			c.logger.Error("Failed to start transcription stream",
				zap.String("conversationID", c.conversationID),
				zap.Error(err))
			return
		}
		c.sttStream = stream
	}
	stream := c.sttStream

	if c.flushTimer != nil {
		c.flushTimer.Stop()
	}
	c.flushTimer = time.AfterFunc(utteranceHold, c.finalizeUtterance)
	c.mu.Unlock()

	if err := stream.Write(pcm); err != nil {
		c.logger.Error("Failed to stream audio data",
			zap.String("conversationID", c.conversationID),
			zap.Error(err))
	}
}

// finalizeUtterance runs when no audio has arrived for utteranceHold. It
// closes the transcription stream and feeds the transcript to the agent.
func (c *client) finalizeUtterance() {
	c.mu.Lock()
	stream := c.sttStream
	c.sttStream = nil
	c.flushTimer = nil
	c.mu.Unlock()

	if stream == nil {
		return
	}

	transcript, err := stream.End()
	if err != nil {
		c.logger.Error("Failed to end transcription stream",
			zap.String("conversationID", c.conversationID),
			zap.Error(err))
		return
	}

	c.logger.Info("Transcription completed",
		zap.String("conversationID", c.conversationID),
		zap.String("transcript", transcript))

	if frame, err := protocol.UserTranscriptFrame(transcript); err == nil {
		c.enqueue(frame)
	}

	c.respond(transcript)
}

// respond asks the agent for a reply, sends it as text and streams the
// synthesized speech in chunks.
func (c *client) respond(userText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c.mu.Lock()
	if c.convo == nil {
		convo, err := c.server.agent.NewConversation(ctx)
		if err != nil {
			c.mu.Unlock()
			c.logger.Error("Failed to create conversation",
				zap.String("conversationID", c.conversationID),
				zap.Error(err))
			return
		}
		c.convo = convo
	}
	convo := c.convo
	c.mu.Unlock()

	reply, err := convo.Reply(ctx, userText)
	if err != nil {
		c.logger.Error("Agent reply failed",
			zap.String("conversationID", c.conversationID),
			zap.Error(err))
		return
	}

	if frame, err := protocol.AgentResponseFrame(reply); err == nil {
		c.enqueue(frame)
	}

	pcm, err := c.server.tts.Synthesize(ctx, reply)
	if err != nil {
		c.logger.Error("Failed to synthesize speech",
			zap.String("conversationID", c.conversationID),
			zap.Error(err))
		return
	}

	c.mu.Lock()
	c.speaking = true
	c.mu.Unlock()

	for start := 0; start < len(pcm); start += audioChunkBytes {
		c.mu.Lock()
		interrupted := !c.speaking
		c.mu.Unlock()
		if interrupted {
			c.logger.Info("Speech interrupted",
				zap.String("conversationID", c.conversationID))
			return
		}

		end := start + audioChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		encoded := base64.StdEncoding.EncodeToString(pcm[start:end])
		if frame, err := protocol.AudioFrame(encoded); err == nil {
			c.enqueue(frame)
		}
	}

	c.mu.Lock()
	c.speaking = false
	c.mu.Unlock()
}
