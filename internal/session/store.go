package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/natetr/CrankScribe/internal/audio"
)

var (
	// ErrNotFound is returned when finalizing a session that does not
	// exist, was already finalized, or expired.
	ErrNotFound = errors.New("session not found")

	// ErrEmptySession is returned when finalizing a session that holds no
	// chunks. The session is removed as a side effect.
	ErrEmptySession = errors.New("no chunks in session")
)

// Session accumulates the decoded chunks of one recording attempt.
type Session struct {
	id      string
	created time.Time

	mu       sync.Mutex
	chunks   map[int][]byte
	resample audio.State

	// Byte counters for monitoring.
	rawBytes     uint64
	decodedBytes uint64
}

// TransformFunc converts one chunk's samples while threading the session's
// resampler state. It runs under the session lock, so calls for the same
// session are serialized in arrival order.
type TransformFunc func(st audio.State) (audio.State, []byte, error)

// InsertResult reports what an insert accepted.
type InsertResult struct {
	Created      bool // whether this insert created the session
	DecodedBytes int  // size of the stored chunk after decode and resample
	ChunkCount   int  // chunks held after the insert
}

// FinalizeResult is the combined recording handed back by Finalize.
type FinalizeResult struct {
	PCM    []byte        // chunks concatenated in ascending sequence order
	Chunks int           // number of chunks combined
	Age    time.Duration // session lifetime at finalize
}

// Info is a monitoring snapshot of one session.
type Info struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Age          float64   `json:"age_seconds"`
	Chunks       int       `json:"chunks"`
	RawBytes     uint64    `json:"raw_bytes"`
	DecodedBytes uint64    `json:"decoded_bytes"`
}

// Store is the registry of active sessions. It owns every Session record;
// callers never hold references across calls. The store is safe for
// concurrent use: inserts for different sessions proceed in parallel, while
// operations on one session are mutually exclusive.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	logger *slog.Logger
	maxAge time.Duration
}

// NewStore creates an empty session store. Sessions older than maxAge are
// never returned by Finalize and are removed by SweepExpired.
func NewStore(logger *slog.Logger, maxAge time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger,
		maxAge:   maxAge,
	}
}

// Insert stores the chunk produced by transform under the given sequence
// number, creating the session on its first chunk. A duplicate sequence
// number overwrites the previous chunk (last write wins). If transform fails
// on a brand-new session, the session is removed again so the failed call
// leaves no trace.
func (s *Store) Insert(id string, seq int, rawLen int, transform TransformFunc) (InsertResult, error) {
	s.mu.Lock()
	sess, exists := s.sessions[id]
	if !exists {
		sess = &Session{
			id:      id,
			created: time.Now(),
			chunks:  make(map[int][]byte),
		}
		s.sessions[id] = sess
	}
	s.mu.Unlock()

	// Lock ordering is always store then session; the store lock is never
	// held across a transform, so sessions do not block each other. An
	// insert racing a finalize for the same id lands either fully before
	// the finalize reads the chunks or fully after it removed the session.
	sess.mu.Lock()

	next, decoded, err := transform(sess.resample)
	if err != nil {
		created := !exists && len(sess.chunks) == 0
		sess.mu.Unlock()
		if created {
			s.remove(id, sess)
		}
		return InsertResult{}, err
	}

	sess.resample = next
	sess.chunks[seq] = decoded
	sess.rawBytes += uint64(rawLen)
	sess.decodedBytes += uint64(len(decoded))
	result := InsertResult{
		Created:      !exists,
		DecodedBytes: len(decoded),
		ChunkCount:   len(sess.chunks),
	}
	sess.mu.Unlock()

	s.logger.Debug("Chunk stored",
		slog.String("session_id", id),
		slog.Int("seq", seq),
		slog.Int("raw_bytes", rawLen),
		slog.Int("decoded_bytes", len(decoded)),
	)

	return result, nil
}

// Finalize removes the session and returns its chunks concatenated in
// ascending sequence order. Gaps in the sequence are skipped. The session is
// gone afterwards whether or not the caller's downstream processing succeeds.
func (s *Store) Finalize(id string) (FinalizeResult, error) {
	s.mu.Lock()
	sess, exists := s.sessions[id]
	if exists {
		// Removing under the store lock makes finalize atomic with
		// respect to concurrent inserts: a later insert for this id
		// starts a fresh session.
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !exists {
		return FinalizeResult{}, ErrNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	age := time.Since(sess.created)
	if age > s.maxAge {
		s.logger.Info("Rejecting finalize of expired session",
			slog.String("session_id", id),
			slog.Duration("age", age),
		)
		return FinalizeResult{}, ErrNotFound
	}

	if len(sess.chunks) == 0 {
		return FinalizeResult{}, ErrEmptySession
	}

	seqs := make([]int, 0, len(sess.chunks))
	total := 0
	for seq, data := range sess.chunks {
		seqs = append(seqs, seq)
		total += len(data)
	}
	sort.Ints(seqs)

	combined := make([]byte, 0, total)
	for _, seq := range seqs {
		combined = append(combined, sess.chunks[seq]...)
	}

	s.logger.Info("Session finalized",
		slog.String("session_id", id),
		slog.Int("chunks", len(seqs)),
		slog.Int("combined_bytes", len(combined)),
		slog.Duration("session_age", age),
	)

	return FinalizeResult{PCM: combined, Chunks: len(seqs), Age: age}, nil
}

// SweepExpired removes every session older than maxAge relative to now and
// returns how many were removed.
func (s *Store) SweepExpired(now time.Time) int {
	cutoff := now.Add(-s.maxAge)

	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.created.Before(cutoff) {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	if len(expired) > 0 {
		s.logger.Info("Expired sessions removed",
			slog.Int("count", len(expired)),
			slog.Duration("max_age", s.maxAge),
		)
	}

	return len(expired)
}

// Run executes periodic expiry sweeps until ctx is cancelled, reporting each
// sweep's removal count to onSweep (which may be nil). The sweep can also be
// triggered inline via SweepExpired; the only observable contract is the
// max-age bound.
func (s *Store) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Session sweep routine started",
		slog.Duration("max_age", s.maxAge),
		slog.Duration("check_interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session sweep routine stopping")
			return
		case <-ticker.C:
			removed := s.SweepExpired(time.Now())
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

// ActiveCount returns the number of live, unexpired sessions.
func (s *Store) ActiveCount() int {
	cutoff := time.Now().Add(-s.maxAge)

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sess := range s.sessions {
		if !sess.created.Before(cutoff) {
			count++
		}
	}
	return count
}

// Snapshot returns monitoring info for every live session.
func (s *Store) Snapshot() []Info {
	cutoff := time.Now().Add(-s.maxAge)

	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.created.Before(cutoff) {
			continue
		}
		sess.mu.Lock()
		infos = append(infos, Info{
			ID:           sess.id,
			CreatedAt:    sess.created,
			Age:          time.Since(sess.created).Seconds(),
			Chunks:       len(sess.chunks),
			RawBytes:     sess.rawBytes,
			DecodedBytes: sess.decodedBytes,
		})
		sess.mu.Unlock()
	}

	return infos
}

// remove deletes a session if it is still the one registered under id.
func (s *Store) remove(id string, sess *Session) {
	s.mu.Lock()
	if current, ok := s.sessions[id]; ok && current == sess {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}
