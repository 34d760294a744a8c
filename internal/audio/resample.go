package audio

import (
	"errors"
	"fmt"
)

// ErrOddLength is returned when a PCM buffer does not contain a whole
// number of 16-bit samples.
var ErrOddLength = errors.New("pcm buffer length is not a whole number of 16-bit samples")

// State carries resampler position between chunks of the same stream.
// The zero value is the correct starting state for a new stream.
type State struct {
	pos    float64 // fractional read position into the virtual input stream
	last   int16   // final input sample of the previous chunk
	primed bool    // whether last holds a real sample
}

// Converter converts PCM-16 mono audio between sample rates using linear
// interpolation. It holds no per-stream state itself; callers thread a State
// value through successive Convert calls so chunk boundaries stay continuous.
type Converter struct {
	inRate  int
	outRate int
	ratio   float64 // input samples consumed per output sample
}

// NewConverter creates a converter for the given rate pair. Any positive
// rational ratio is supported.
func NewConverter(inRate, outRate int) (*Converter, error) {
	if inRate <= 0 {
		return nil, fmt.Errorf("input rate must be positive, got %d", inRate)
	}
	if outRate <= 0 {
		return nil, fmt.Errorf("output rate must be positive, got %d", outRate)
	}

	return &Converter{
		inRate:  inRate,
		outRate: outRate,
		ratio:   float64(inRate) / float64(outRate),
	}, nil
}

// InRate returns the input sample rate.
func (c *Converter) InRate() int { return c.inRate }

// OutRate returns the output sample rate.
func (c *Converter) OutRate() int { return c.outRate }

// Convert resamples one chunk of little-endian PCM-16 bytes, taking the state
// left by the previous chunk of the same stream and returning the state for
// the next one. Interpolation spans the boundary between the carried final
// sample and the new chunk, so concatenated outputs form one continuous
// signal.
func (c *Converter) Convert(st State, pcm []byte) (State, []byte, error) {
	if len(pcm)%2 != 0 {
		return st, nil, fmt.Errorf("%w: got %d bytes", ErrOddLength, len(pcm))
	}

	n := len(pcm) / 2
	if n == 0 {
		return st, nil, nil
	}

	// Virtual input stream: the carried sample (if any) followed by this
	// chunk. Positions from the previous call remain valid against it.
	offset := 0
	m := n
	if st.primed {
		offset = 1
		m = n + 1
	}
	sampleAt := func(i int) int16 {
		if st.primed && i == 0 {
			return st.last
		}
		j := (i - offset) * 2
		return int16(pcm[j]) | int16(pcm[j+1])<<8
	}

	out := make([]byte, 0, (int(float64(m)/c.ratio)+1)*2)
	pos := st.pos
	for int(pos) < m-1 {
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := float64(sampleAt(idx))
		s1 := float64(sampleAt(idx + 1))
		v := int16(s0*(1-frac) + s1*frac)

		out = append(out, byte(v), byte(v>>8))
		pos += c.ratio
	}

	next := State{
		pos:    pos - float64(m-1),
		last:   sampleAt(m - 1),
		primed: true,
	}

	return next, out, nil
}
