package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/natetr/CrankScribe/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// passthrough stores the given bytes without touching resampler state.
func passthrough(data []byte) TransformFunc {
	return func(st audio.State) (audio.State, []byte, error) {
		return st, data, nil
	}
}

func TestInsertCreatesSession(t *testing.T) {
	store := NewStore(testLogger(), 30*time.Minute)

	result, err := store.Insert("abc", 0, 10, passthrough([]byte("hello")))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if !result.Created {
		t.Error("Expected first insert to create the session")
	}
	if result.DecodedBytes != 5 {
		t.Errorf("Expected 5 decoded bytes, got %d", result.DecodedBytes)
	}
	if result.ChunkCount != 1 {
		t.Errorf("Expected 1 chunk, got %d", result.ChunkCount)
	}
	if store.ActiveCount() != 1 {
		t.Errorf("Expected 1 active session, got %d", store.ActiveCount())
	}

	result, err = store.Insert("abc", 1, 10, passthrough([]byte("world")))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if result.Created {
		t.Error("Expected second insert to reuse the session")
	}
	if result.ChunkCount != 2 {
		t.Errorf("Expected 2 chunks, got %d", result.ChunkCount)
	}
}

func TestInsertTransformFailure(t *testing.T) {
	store := NewStore(testLogger(), 30*time.Minute)

	failing := func(st audio.State) (audio.State, []byte, error) {
		return st, nil, errors.New("transform failed")
	}

	_, err := store.Insert("abc", 0, 10, failing)
	if err == nil {
		t.Fatal("Expected transform error")
	}

	// A failed first insert must not leave a session behind.
	if store.ActiveCount() != 0 {
		t.Errorf("Expected 0 active sessions, got %d", store.ActiveCount())
	}

	if _, err := store.Finalize("abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after failed first insert, got %v", err)
	}
}

func TestFinalizeOrdersBySequence(t *testing.T) {
	store := NewStore(testLogger(), 30*time.Minute)

	// Insert out of order, with a gap at seq 2.
	inserts := map[int][]byte{
		3: []byte("DD"),
		0: []byte("AA"),
		1: []byte("BB"),
	}
	for seq, data := range inserts {
		if _, err := store.Insert("abc", seq, len(data), passthrough(data)); err != nil {
			t.Fatalf("Insert seq %d failed: %v", seq, err)
		}
	}

	res, err := store.Finalize("abc")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if res.Chunks != 3 {
		t.Errorf("Expected 3 chunks combined, got %d", res.Chunks)
	}

	// Ascending sequence order with the gap simply skipped.
	if !bytes.Equal(res.PCM, []byte("AABBDD")) {
		t.Errorf("Expected AABBDD, got %q", res.PCM)
	}

	// Finalize is not idempotent.
	if _, err := store.Finalize("abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second finalize, got %v", err)
	}
}

func TestDuplicateSequenceLastWriteWins(t *testing.T) {
	store := NewStore(testLogger(), 30*time.Minute)

	store.Insert("abc", 0, 3, passthrough([]byte("old")))
	store.Insert("abc", 0, 3, passthrough([]byte("new")))

	res, err := store.Finalize("abc")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if res.Chunks != 1 {
		t.Errorf("Expected 1 chunk, got %d", res.Chunks)
	}
	if !bytes.Equal(res.PCM, []byte("new")) {
		t.Errorf("Expected latest write to win, got %q", res.PCM)
	}
}

func TestFinalizeUnknownSession(t *testing.T) {
	store := NewStore(testLogger(), 30*time.Minute)

	_, err := store.Finalize("never-inserted")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if store.ActiveCount() != 0 {
		t.Error("Finalize of unknown session must not change state")
	}
}

func TestSweepExpired(t *testing.T) {
	store := NewStore(testLogger(), 100*time.Millisecond)

	store.Insert("old", 0, 1, passthrough([]byte("x")))
	removed := store.SweepExpired(time.Now().Add(200 * time.Millisecond))
	if removed != 1 {
		t.Errorf("Expected 1 expired session, got %d", removed)
	}

	if _, err := store.Finalize("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRunSweepsPeriodically(t *testing.T) {
	store := NewStore(testLogger(), 10*time.Millisecond)

	store.Insert("old", 0, 1, passthrough([]byte("x")))

	swept := make(chan int, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go store.Run(ctx, 20*time.Millisecond, func(removed int) {
		if removed > 0 {
			select {
			case swept <- removed:
			default:
			}
		}
	})

	select {
	case removed := <-swept:
		if removed != 1 {
			t.Errorf("Expected 1 removed session, got %d", removed)
		}
	case <-time.After(time.Second):
		t.Fatal("Sweep routine never removed the expired session")
	}
}

func TestExpiredSessionNotCountedOrFinalized(t *testing.T) {
	// Even without a sweep, an aged session is invisible to finalize and
	// session counts.
	store := NewStore(testLogger(), 50*time.Millisecond)

	store.Insert("abc", 0, 1, passthrough([]byte("x")))
	time.Sleep(80 * time.Millisecond)

	if store.ActiveCount() != 0 {
		t.Errorf("Expected 0 active sessions, got %d", store.ActiveCount())
	}

	if _, err := store.Finalize("abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for expired session, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	store := NewStore(testLogger(), 30*time.Minute)

	store.Insert("a", 0, 4, passthrough([]byte("1234")))
	store.Insert("a", 1, 4, passthrough([]byte("5678")))
	store.Insert("b", 0, 2, passthrough([]byte("90")))

	infos := store.Snapshot()
	if len(infos) != 2 {
		t.Fatalf("Expected 2 sessions in snapshot, got %d", len(infos))
	}

	byID := make(map[string]Info)
	for _, info := range infos {
		byID[info.ID] = info
	}

	if byID["a"].Chunks != 2 {
		t.Errorf("Expected session a to have 2 chunks, got %d", byID["a"].Chunks)
	}
	if byID["a"].RawBytes != 8 {
		t.Errorf("Expected session a raw bytes 8, got %d", byID["a"].RawBytes)
	}
	if byID["b"].DecodedBytes != 2 {
		t.Errorf("Expected session b decoded bytes 2, got %d", byID["b"].DecodedBytes)
	}
}

func TestResampleStateThreading(t *testing.T) {
	// Each insert must see the state left by the previous insert for the
	// same session, and sessions must not share state.
	store := NewStore(testLogger(), 30*time.Minute)
	conv, err := audio.NewConverter(8000, 16000)
	if err != nil {
		t.Fatalf("NewConverter failed: %v", err)
	}

	resampling := func(pcm []byte) TransformFunc {
		return func(st audio.State) (audio.State, []byte, error) {
			return conv.Convert(st, pcm)
		}
	}

	chunk := make([]byte, 320)
	for i := range chunk {
		chunk[i] = byte(i)
	}

	var total int
	for seq := 0; seq < 4; seq++ {
		result, err := store.Insert("abc", seq, len(chunk), resampling(chunk))
		if err != nil {
			t.Fatalf("Insert seq %d failed: %v", seq, err)
		}
		total += result.DecodedBytes
	}

	// 4 chunks of 160 input samples resampled at 2x: the first call emits
	// two samples fewer because the boundary state is not yet primed.
	expected := (2*160-2)*2 + 3*2*160*2
	if total != expected {
		t.Errorf("Expected %d total decoded bytes, got %d", expected, total)
	}

	// A different session starts from the zero state.
	result, err := store.Insert("other", 0, len(chunk), resampling(chunk))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if result.DecodedBytes != (2*160-2)*2 {
		t.Errorf("Expected fresh session to start unprimed, got %d bytes", result.DecodedBytes)
	}
}

func TestConcurrentInserts(t *testing.T) {
	store := NewStore(testLogger(), 30*time.Minute)

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", w%4)
			for i := 0; i < perWorker; i++ {
				seq := w*perWorker + i
				data := []byte{byte(w), byte(i)}
				if _, err := store.Insert(id, seq, len(data), passthrough(data)); err != nil {
					t.Errorf("Insert failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if store.ActiveCount() != 4 {
		t.Errorf("Expected 4 active sessions, got %d", store.ActiveCount())
	}

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("session-%d", i)
		res, err := store.Finalize(id)
		if err != nil {
			t.Fatalf("Finalize %s failed: %v", id, err)
		}
		if res.Chunks != 2*perWorker {
			t.Errorf("%s: expected %d chunks, got %d", id, 2*perWorker, res.Chunks)
		}
		if len(res.PCM) != 2*perWorker*2 {
			t.Errorf("%s: expected %d bytes, got %d", id, 2*perWorker*2, len(res.PCM))
		}
	}
}

func TestConcurrentFinalizeAndSweep(t *testing.T) {
	// A session hit by finalize and sweep concurrently resolves to exactly
	// one of the two outcomes.
	for i := 0; i < 20; i++ {
		store := NewStore(testLogger(), time.Nanosecond)
		store.Insert("abc", 0, 1, passthrough([]byte("x")))

		var wg sync.WaitGroup
		finalized := false
		swept := 0

		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := store.Finalize("abc"); err == nil {
				finalized = true
			}
		}()
		go func() {
			defer wg.Done()
			swept = store.SweepExpired(time.Now().Add(time.Second))
		}()
		wg.Wait()

		if finalized && swept > 0 {
			t.Fatal("Session was both finalized and swept")
		}
	}
}

func TestFinalizeEmptySession(t *testing.T) {
	store := NewStore(testLogger(), time.Minute)

	// A session with no stored chunks cannot arise through Insert, but the
	// store must still hold the line if one appears.
	store.mu.Lock()
	store.sessions["empty"] = &Session{
		id:      "empty",
		created: time.Now(),
		chunks:  make(map[int][]byte),
	}
	store.mu.Unlock()

	if _, err := store.Finalize("empty"); !errors.Is(err, ErrEmptySession) {
		t.Errorf("Expected ErrEmptySession, got %v", err)
	}

	// The failed finalize still removes the session.
	if _, err := store.Finalize("empty"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after removal, got %v", err)
	}

	if count := store.ActiveCount(); count != 0 {
		t.Errorf("Expected 0 active sessions, got %d", count)
	}
}
