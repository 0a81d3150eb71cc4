package repositories

import "context"

// TextToSpeech abstracts one-shot speech synthesis: text in, raw PCM out.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
