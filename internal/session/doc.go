// Package session provides the in-memory registry of in-progress recordings.
// Each session accumulates decoded chunks keyed by sequence number until it
// is finalized into one ordered buffer or evicted for exceeding its max age.
package session
