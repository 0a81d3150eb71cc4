// Package protocol implements the text/JSON message envelope exchanged with
// the conversational agent service over the socket. Inbound frames are
// classified into typed events; outbound frames are built by the constructor
// functions. The envelope is a tagged union keyed by a "type" field, with one
// exception: outbound audio chunks use a bare {"user_audio_chunk": ...}
// object with no type tag.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame type tags.
const (
	TypeConversationInit         = "conversation_initiation_client_data"
	TypeConversationInitMetadata = "conversation_initiation_metadata"
	TypePing                     = "ping"
	TypePong                     = "pong"
	TypeUserTranscript           = "user_transcript"
	TypeAgentResponse            = "agent_response"
	TypeAudio                    = "audio"
	TypeInterruption             = "interruption"
	TypeUserMessage              = "user_message"
)

// Legacy keepalive frames are plain text, not JSON.
const (
	LegacyPing = "ping"
	LegacyPong = "pong"
)

// envelope is the top-level wire shape for all tagged frames, both
// directions. Only the fields matching the type tag are populated.
type envelope struct {
	Type string `json:"type"`

	// Keepalive.
	PingEvent *PingEvent `json:"ping_event,omitempty"`
	EventID   string     `json:"event_id,omitempty"`

	// Conversation content.
	UserTranscriptionEvent *userTranscriptionEvent `json:"user_transcription_event,omitempty"`
	AgentResponseEvent     *agentResponseEvent     `json:"agent_response_event,omitempty"`
	AudioEvent             *audioEvent             `json:"audio_event,omitempty"`
	InterruptionEvent      *interruptionEvent      `json:"interruption_event,omitempty"`
	InitMetadataEvent      json.RawMessage         `json:"conversation_initiation_metadata_event,omitempty"`

	// Outbound text chat.
	Text string `json:"text,omitempty"`
}

// PingEvent carries the keepalive correlation ID and the server's requested
// reply delay in milliseconds.
type PingEvent struct {
	EventID string `json:"event_id"`
	PingMS  int    `json:"ping_ms"`
}

type userTranscriptionEvent struct {
	UserTranscript string `json:"user_transcript"`
}

type agentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
}

type audioEvent struct {
	AudioBase64 string `json:"audio_base_64"`
}

type interruptionEvent struct {
	Reason string `json:"reason"`
}

// audioChunkFrame is the outbound microphone chunk. It deliberately has no
// type tag; the service recognizes it by shape.
type audioChunkFrame struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// Outbound frame constructors.

// ConversationInitFrame is the first frame sent after the socket opens.
func ConversationInitFrame() ([]byte, error) {
	return json.Marshal(envelope{Type: TypeConversationInit})
}

// PongFrame answers a JSON ping. An empty eventID yields the legacy
// plain-text "pong" reply instead of a JSON frame.
func PongFrame(eventID string) ([]byte, error) {
	if eventID == "" {
		return []byte(LegacyPong), nil
	}
	return json.Marshal(envelope{Type: TypePong, EventID: eventID})
}

// UserMessageFrame carries a text chat message to the agent.
func UserMessageFrame(text string) ([]byte, error) {
	return json.Marshal(envelope{Type: TypeUserMessage, Text: text})
}

// AudioChunkFrame carries one base64-encoded microphone chunk.
func AudioChunkFrame(base64Chunk string) ([]byte, error) {
	return json.Marshal(audioChunkFrame{UserAudioChunk: base64Chunk})
}

// Server-side frame constructors, used by the development agent server to
// speak the inbound half of the protocol.

// PingFrame builds a keepalive ping carrying a correlation ID and a reply
// delay hint.
func PingFrame(eventID string, pingMS int) ([]byte, error) {
	return json.Marshal(envelope{Type: TypePing, PingEvent: &PingEvent{EventID: eventID, PingMS: pingMS}})
}

// UserTranscriptFrame reports the transcription of the user's speech.
func UserTranscriptFrame(transcript string) ([]byte, error) {
	return json.Marshal(envelope{
		Type:                   TypeUserTranscript,
		UserTranscriptionEvent: &userTranscriptionEvent{UserTranscript: transcript},
	})
}

// AgentResponseFrame carries the agent's text reply.
func AgentResponseFrame(text string) ([]byte, error) {
	return json.Marshal(envelope{
		Type:               TypeAgentResponse,
		AgentResponseEvent: &agentResponseEvent{AgentResponse: text},
	})
}

// AudioFrame carries one base64-encoded chunk of synthesized agent speech.
func AudioFrame(base64Audio string) ([]byte, error) {
	return json.Marshal(envelope{
		Type:       TypeAudio,
		AudioEvent: &audioEvent{AudioBase64: base64Audio},
	})
}

// InterruptionFrame tells the client to discard queued playback.
func InterruptionFrame(reason string) ([]byte, error) {
	return json.Marshal(envelope{
		Type:              TypeInterruption,
		InterruptionEvent: &interruptionEvent{Reason: reason},
	})
}

// InitMetadataFrame carries informational session metadata after the
// conversation is initiated.
func InitMetadataFrame(metadata map[string]interface{}) ([]byte, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initiation metadata: %w", err)
	}
	return json.Marshal(envelope{
		Type:              TypeConversationInitMetadata,
		InitMetadataEvent: raw,
	})
}
