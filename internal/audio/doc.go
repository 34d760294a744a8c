// Package audio handles sample rate conversion and WAV container framing.
// The resampler carries interpolation state across chunk boundaries so a
// session's chunks join without discontinuities; the WAV encoder produces
// the 44-byte little-endian header expected by standard decoders.
package audio
