// Package codec implements G.711 mu-law decoding for the compressed audio
// chunks uploaded by the recording client. Decoding is a pure table lookup
// producing one 16-bit linear PCM sample per input byte.
package codec
