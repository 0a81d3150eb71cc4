package repositories

import "context"

// SpeechToText abstracts streaming speech recognition. The agent server
// feeds it the user's audio chunks and reads back a transcript when the
// utterance ends.
type SpeechToText interface {
	// StartStream opens a streaming transcription for one utterance.
	StartStream(ctx context.Context, config AudioConfig) (TranscriptionStream, error)
}

// AudioConfig describes the PCM format of the streamed audio.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// TranscriptionStream accepts raw PCM chunks and produces the final
// transcript on End. End may be called only once.
type TranscriptionStream interface {
	Write(pcm []byte) error
	End() (string, error)
}
