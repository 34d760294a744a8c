package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the fixed WAV header in bytes.
const HeaderSize = 44

// Header represents the fixed-size header of a PCM WAV file.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
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
	Subchunk2Size uint32  // Number of bytes in the data section
}

// EncodeHeader builds the 44-byte little-endian WAV header for a payload of
// dataLen bytes. It is a pure function of its arguments; the caller appends
// the sample bytes after it.
func EncodeHeader(dataLen, sampleRate, bitsPerSample, channels int) []byte {
	header := Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataLen),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    uint16(channels * bitsPerSample / 8),
		BitsPerSample: uint16(bitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataLen),
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	binary.Write(buf, binary.LittleEndian, header)
	return buf.Bytes()
}

// EncodeWAV frames raw little-endian PCM-16 mono bytes as a complete WAV file.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio payload")
	}

	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrOddLength, len(pcm))
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	out := make([]byte, 0, HeaderSize+len(pcm))
	out = append(out, EncodeHeader(len(pcm), sampleRate, 16, 1)...)
	out = append(out, pcm...)

	return out, nil
}

// ValidateWAV checks the fixed header markers without decoding audio data.
func ValidateWAV(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// Info holds the metadata read back from a WAV header.
type Info struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
}

// GetInfo parses a WAV header and returns its parameters.
func GetInfo(data []byte) (*Info, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header Header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	bytesPerFrame := uint32(header.BitsPerSample) / 8 * uint32(header.NumChannels)
	numFrames := header.Subchunk2Size / bytesPerFrame

	return &Info{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(numFrames) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
	}, nil
}
