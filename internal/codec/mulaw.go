package codec

import "errors"

// ErrEmptyFrame is returned when a chunk carries no audio bytes.
// One byte is the minimum valid mu-law frame.
var ErrEmptyFrame = errors.New("empty mu-law frame")

const bias = 0x84

// decodeTable maps every mu-law byte to its linear 16-bit value.
var decodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		decodeTable[i] = expand(byte(i))
	}
}

// expand converts a single mu-law byte to a linear PCM-16 sample using the
// standard logarithmic companding expansion.
func expand(mu byte) int16 {
	mu = ^mu
	sign := mu & 0x80
	exponent := (mu >> 4) & 0x07
	mantissa := mu & 0x0F

	segmentEnd := int16(bias) << exponent
	step := int16(1) << (exponent + 3)
	value := segmentEnd + int16(mantissa)*step - bias

	if sign != 0 {
		return -value
	}
	return value
}

// Decode converts a buffer of mu-law bytes into little-endian PCM-16 bytes,
// one sample per input byte, at the same sample rate as the input.
func Decode(frame []byte) ([]byte, error) {
	samples, err := DecodeSamples(frame)
	if err != nil {
		return nil, err
	}

	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}

	return pcm, nil
}

// DecodeSamples converts a buffer of mu-law bytes into PCM-16 samples.
func DecodeSamples(frame []byte) ([]int16, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	samples := make([]int16, len(frame))
	for i, b := range frame {
		samples[i] = decodeTable[b]
	}

	return samples, nil
}
