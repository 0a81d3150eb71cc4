package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// Default format for agent audio: little-endian 16-bit PCM, mono, 16 kHz.
const (
	DefaultSampleRate = 16000
	NumChannels       = 1
	BitsPerSample     = 16
	headerSize        = 44
)

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM audio.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // bytes of PCM data
}

// EncodeWAV wraps raw little-endian PCM-16 mono bytes in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty PCM data")
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even, got %d", len(pcm))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(pcm))
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   NumChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * NumChannels * BitsPerSample / 8,
		BlockAlign:    NumChannels * BitsPerSample / 8,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// DecodeWAV extracts the raw PCM bytes and sample rate from a WAV container
// produced by EncodeWAV or any standard PCM-16 mono encoder.
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < headerSize {
		return nil, 0, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", headerSize, len(data))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, 0, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}
	if header.BitsPerSample != BitsPerSample {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}
	if header.NumChannels != NumChannels {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}

	pcm := data[headerSize:]
	if uint32(len(pcm)) > header.Subchunk2Size {
		pcm = pcm[:header.Subchunk2Size]
	}
	if len(pcm) == 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	return pcm, int(header.SampleRate), nil
}

// DecodeBase64WAV decodes a base64-encoded PCM chunk, as carried by audio
// frames on the wire, into a playable WAV buffer.
func DecodeBase64WAV(encoded string, sampleRate int) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return EncodeWAV(pcm, sampleRate)
}

// PCMDuration returns the playback duration of raw PCM-16 mono bytes.
func PCMDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	numSamples := len(pcm) / 2
	return time.Duration(float64(numSamples) / float64(sampleRate) * float64(time.Second))
}

// WAVDuration returns the playback duration of a WAV buffer.
func WAVDuration(data []byte) (time.Duration, error) {
	pcm, sampleRate, err := DecodeWAV(data)
	if err != nil {
		return 0, err
	}
	return PCMDuration(pcm, sampleRate), nil
}
