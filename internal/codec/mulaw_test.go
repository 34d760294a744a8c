package codec

import (
	"bytes"
	"testing"
)

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(nil)
	if err != ErrEmptyFrame {
		t.Errorf("Expected ErrEmptyFrame, got %v", err)
	}

	_, err = Decode([]byte{})
	if err != ErrEmptyFrame {
		t.Errorf("Expected ErrEmptyFrame for empty slice, got %v", err)
	}
}

func TestDecodeKnownValues(t *testing.T) {
	// Reference values from the G.711 mu-law expansion.
	tests := []struct {
		name     string
		input    byte
		expected int16
	}{
		{"negative max", 0x00, -32124},
		{"positive max", 0x80, 32124},
		{"silence", 0xFF, 0},
		{"negative silence", 0x7F, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := DecodeSamples([]byte{tt.input})
			if err != nil {
				t.Fatalf("DecodeSamples failed: %v", err)
			}
			if samples[0] != tt.expected {
				t.Errorf("Decode(0x%02X): expected %d, got %d", tt.input, tt.expected, samples[0])
			}
		})
	}
}

func TestDecodeLength(t *testing.T) {
	// One 16-bit sample per input byte.
	frame := make([]byte, 160) // 20ms at 8kHz
	for i := range frame {
		frame[i] = byte(i)
	}

	pcm, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(pcm) != len(frame)*2 {
		t.Errorf("Expected %d PCM bytes, got %d", len(frame)*2, len(pcm))
	}
}

func TestDecodeDeterministic(t *testing.T) {
	frame := []byte{0x00, 0x55, 0xAA, 0xFF}

	first, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	second, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("Decode is not deterministic for identical input")
	}
}

func TestDecodeMatchesSamples(t *testing.T) {
	frame := []byte{0x12, 0x34, 0x56, 0x78, 0x9A}

	pcm, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	samples, err := DecodeSamples(frame)
	if err != nil {
		t.Fatalf("DecodeSamples failed: %v", err)
	}

	for i, s := range samples {
		got := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		if got != s {
			t.Errorf("Sample %d: byte form %d, sample form %d", i, got, s)
		}
	}
}

func TestDecodeSignSymmetry(t *testing.T) {
	// Clearing the sign bit must negate the decoded value.
	for i := 0; i < 128; i++ {
		neg := decodeTable[byte(i)]
		pos := decodeTable[byte(i)|0x80]
		if pos != -neg {
			t.Errorf("Code 0x%02X: positive %d is not the negation of %d", i, pos, neg)
		}
	}
}
