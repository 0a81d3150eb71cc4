package stt

import (
	"context"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/voxbridge/voxbridge/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText on Google Cloud's streaming
// recognize API. Credentials come from the standard application-default
// environment.
type GoogleSpeechToText struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

func NewGoogleSpeechToText(logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{logger: logger}
}

func (g *GoogleSpeechToText) StartStream(ctx context.Context, config repositories.AudioConfig) (repositories.TranscriptionStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to open streaming recognize: %w", err)
	}

	encoding, err := audioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	language := config.Language
	if language == "" {
		language = "en-US"
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(config.SampleRate),
					LanguageCode:    language,
				},
				InterimResults:  false,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &googleStream{
		client:     client,
		stream:     stream,
		ctx:        ctx,
		logger:     g.logger,
		resultChan: make(chan string, 1),
		errorChan:  make(chan error, 1),
	}
	go s.receiveResults()
	return s, nil
}

type googleStream struct {
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	ctx    context.Context
	logger *zap.Logger

	wroteAudio bool
	resultChan chan string
	errorChan  chan error
}

func (s *googleStream) Write(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.wroteAudio = true
	if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: pcm,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (s *googleStream) End() (string, error) {
	defer s.client.Close()

	if !s.wroteAudio {
		return "", fmt.Errorf("no audio data received")
	}
	if err := s.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-s.ctx.Done():
		return "", fmt.Errorf("cancelled while waiting for transcript: %w", s.ctx.Err())
	case err := <-s.errorChan:
		return "", err
	case result := <-s.resultChan:
		if result == "" {
			return "", fmt.Errorf("no speech detected in audio")
		}
		return result, nil
	}
}

func (s *googleStream) receiveResults() {
	var transcript string
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			s.resultChan <- transcript
			return
		}
		if err != nil {
			s.errorChan <- fmt.Errorf("failed to receive response: %w", err)
			return
		}
		for _, result := range resp.Results {
			if result.IsFinal && len(result.Alternatives) > 0 {
				transcript = result.Alternatives[0].Transcript
			}
		}
	}
}

func audioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "", "LINEAR16", "WAV", "pcm":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
