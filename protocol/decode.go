package protocol

import (
	"encoding/json"
	"fmt"
)

// Event is a classified inbound frame. Concrete types are PingReceived,
// UserTranscript, AgentResponse, Audio, Interruption, InitMetadata and
// Unknown.
type Event interface {
	// FrameType returns the wire type tag of the frame this event was
	// decoded from, or "ping" for the legacy plain-text keepalive.
	FrameType() string
}

// PingReceived is a keepalive the client must answer with a pong. EventID is
// empty for the legacy plain-text ping and for JSON pings without a
// correlation ID; DelayMS is the server's requested reply delay.
type PingReceived struct {
	EventID string
	DelayMS int
}

func (PingReceived) FrameType() string { return TypePing }

// UserTranscript is the service's transcription of the user's speech. Text
// may be empty when the payload is absent or malformed; consumers skip it.
type UserTranscript struct {
	Text string
}

func (UserTranscript) FrameType() string { return TypeUserTranscript }

// AgentResponse is the agent's text reply.
type AgentResponse struct {
	Text string
}

func (AgentResponse) FrameType() string { return TypeAgentResponse }

// Audio is one base64-encoded chunk of synthesized agent speech.
type Audio struct {
	Base64 string
}

func (Audio) FrameType() string { return TypeAudio }

// Interruption signals barge-in: queued playback from the previous agent
// turn must be discarded.
type Interruption struct {
	Reason string
}

func (Interruption) FrameType() string { return TypeInterruption }

// InitMetadata is informational session metadata, logged and otherwise
// ignored.
type InitMetadata struct {
	Raw json.RawMessage
}

func (InitMetadata) FrameType() string { return TypeConversationInitMetadata }

// Unknown is a frame with an unrecognized type tag. It is a valid
// classification, not an error; the session logs and drops it.
type Unknown struct {
	Type string
	Raw  []byte
}

func (u Unknown) FrameType() string { return u.Type }

// Decode classifies a raw inbound frame into a typed event. The legacy
// plain-text "ping" is recognized before any JSON parsing is attempted.
// Unparseable JSON and frames with no type tag return an error; frames with
// an unrecognized type tag decode to Unknown.
func Decode(data []byte) (Event, error) {
	if string(data) == LegacyPing {
		return PingReceived{}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type field")
	}

	switch env.Type {
	case TypePing:
		event := PingReceived{}
		if env.PingEvent != nil {
			event.EventID = env.PingEvent.EventID
			event.DelayMS = env.PingEvent.PingMS
		}
		return event, nil

	case TypeUserTranscript:
		event := UserTranscript{}
		if env.UserTranscriptionEvent != nil {
			event.Text = env.UserTranscriptionEvent.UserTranscript
		}
		return event, nil

	case TypeAgentResponse:
		event := AgentResponse{}
		if env.AgentResponseEvent != nil {
			event.Text = env.AgentResponseEvent.AgentResponse
		}
		return event, nil

	case TypeAudio:
		event := Audio{}
		if env.AudioEvent != nil {
			event.Base64 = env.AudioEvent.AudioBase64
		}
		return event, nil

	case TypeInterruption:
		event := Interruption{}
		if env.InterruptionEvent != nil {
			event.Reason = env.InterruptionEvent.Reason
		}
		return event, nil

	case TypeConversationInitMetadata:
		return InitMetadata{Raw: env.InitMetadataEvent}, nil

	default:
		return Unknown{Type: env.Type, Raw: data}, nil
	}
}
