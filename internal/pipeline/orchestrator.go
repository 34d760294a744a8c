package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/natetr/CrankScribe/internal/audio"
	"github.com/natetr/CrankScribe/internal/codec"
	"github.com/natetr/CrankScribe/internal/metrics"
	"github.com/natetr/CrankScribe/internal/session"
)

var (
	// ErrValidation is returned for requests rejected before touching any
	// session state.
	ErrValidation = errors.New("invalid request")

	// ErrTranscription is returned when the finished recording could not be
	// transcribed. The session is already discarded when this is returned.
	ErrTranscription = errors.New("transcription failed")
)

// Transcriber sends a finished WAV recording to speech recognition.
// Implemented by transcription.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, wavData []byte) (string, error)
}

// Publisher announces a finished transcript to downstream consumers.
// Implemented by events.Publisher.
type Publisher interface {
	PublishTranscript(ctx context.Context, sessionID, transcript string, chunks int, audioSeconds float64) error
}

// ChunkReceipt reports what an accepted chunk upload did.
type ChunkReceipt struct {
	SessionID   string `json:"session_id"`
	Seq         int    `json:"seq"`
	Created     bool   `json:"session_created"`
	RawBytes    int    `json:"raw_bytes"`
	StoredBytes int    `json:"stored_bytes"`
	ChunkCount  int    `json:"chunk_count"`
}

// Result is the outcome of a successful finalize.
type Result struct {
	SessionID    string  `json:"session_id"`
	Transcript   string  `json:"transcript"`
	Chunks       int     `json:"chunks"`
	AudioSeconds float64 `json:"audio_seconds"`
}

// Config holds orchestrator settings.
type Config struct {
	InputSampleRate   int           // rate of the mu-law upload stream
	OutputSampleRate  int           // rate of the stored PCM and the WAV
	TranscribeTimeout time.Duration // per-finalize budget for the recognizer
}

// Orchestrator runs the chunk pipeline: decode, resample, store, and on
// finalize assemble a WAV and hand it to the transcriber.
type Orchestrator struct {
	store       *session.Store
	conv        *audio.Converter
	transcriber Transcriber
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	timeout     time.Duration
}

// NewOrchestrator wires the pipeline together. publisher and m may be nil;
// publishing and instrumentation are then skipped.
func NewOrchestrator(cfg Config, store *session.Store, transcriber Transcriber, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) (*Orchestrator, error) {
	conv, err := audio.NewConverter(cfg.InputSampleRate, cfg.OutputSampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create sample rate converter: %w", err)
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 60 * time.Second
	}

	return &Orchestrator{
		store:       store,
		conv:        conv,
		transcriber: transcriber,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
		timeout:     cfg.TranscribeTimeout,
	}, nil
}

// IngestChunk decodes one mu-law chunk, resamples it with the session's
// carried state and stores it under the given sequence number. A rejected
// chunk leaves no trace: validation and decoding happen before any session
// state is touched.
func (o *Orchestrator) IngestChunk(sessionID string, seq int, payload []byte) (ChunkReceipt, error) {
	if sessionID == "" {
		return ChunkReceipt{}, fmt.Errorf("%w: missing session id", ErrValidation)
	}
	if seq < 0 {
		return ChunkReceipt{}, fmt.Errorf("%w: negative sequence number %d", ErrValidation, seq)
	}
	if len(payload) == 0 {
		return ChunkReceipt{}, fmt.Errorf("%w: empty chunk body", ErrValidation)
	}

	pcm, err := codec.Decode(payload)
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordChunkError()
		}
		return ChunkReceipt{}, fmt.Errorf("failed to decode chunk: %w", err)
	}

	res, err := o.store.Insert(sessionID, seq, len(payload), func(st audio.State) (audio.State, []byte, error) {
		return o.conv.Convert(st, pcm)
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordChunkError()
		}
		return ChunkReceipt{}, fmt.Errorf("failed to store chunk: %w", err)
	}

	if o.metrics != nil {
		o.metrics.RecordChunkReceived(len(payload), res.DecodedBytes)
		if res.Created {
			o.metrics.RecordSessionCreated()
		}
		o.metrics.SetActiveSessions(o.store.ActiveCount())
	}

	return ChunkReceipt{
		SessionID:   sessionID,
		Seq:         seq,
		Created:     res.Created,
		RawBytes:    len(payload),
		StoredBytes: res.DecodedBytes,
		ChunkCount:  res.ChunkCount,
	}, nil
}

// Finalize assembles the session's chunks into a WAV, transcribes it and
// returns the transcript. The session is removed whether or not transcription
// succeeds; a retry after ErrTranscription finds no session.
func (o *Orchestrator) Finalize(ctx context.Context, sessionID string) (Result, error) {
	if sessionID == "" {
		return Result{}, fmt.Errorf("%w: missing session id", ErrValidation)
	}

	rec, err := o.store.Finalize(sessionID)
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordFinalize(0, true)
		}
		return Result{}, err
	}
	if o.metrics != nil {
		o.metrics.RecordSessionFinished(rec.Age.Seconds())
		o.metrics.SetActiveSessions(o.store.ActiveCount())
	}

	wav, err := audio.EncodeWAV(rec.PCM, o.conv.OutRate())
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordFinalize(0, true)
		}
		return Result{}, fmt.Errorf("failed to encode WAV: %w", err)
	}
	audioSeconds := float64(len(rec.PCM)) / 2.0 / float64(o.conv.OutRate())

	o.logger.Info("Sending recording for transcription",
		slog.String("session_id", sessionID),
		slog.Int("chunks", rec.Chunks),
		slog.Int("wav_bytes", len(wav)),
		slog.Float64("audio_seconds", audioSeconds),
	)

	tctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if o.metrics != nil {
		o.metrics.RecordTranscriptionRequest()
	}
	start := time.Now()
	transcript, err := o.transcriber.Transcribe(tctx, wav)
	elapsed := time.Since(start)

	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordTranscriptionFailure(elapsed.Seconds())
			o.metrics.RecordFinalize(0, true)
		}
		o.logger.Error("Transcription failed",
			slog.String("session_id", sessionID),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return Result{}, fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	if o.metrics != nil {
		o.metrics.RecordTranscriptionSuccess(elapsed.Seconds())
		o.metrics.RecordFinalize(audioSeconds, false)
	}

	o.logger.Info("Transcription completed",
		slog.String("session_id", sessionID),
		slog.Int("transcript_chars", len(transcript)),
		slog.Duration("elapsed", elapsed),
	)

	if o.publisher != nil {
		if err := o.publisher.PublishTranscript(ctx, sessionID, transcript, rec.Chunks, audioSeconds); err != nil {
			// Publishing is best effort; the caller still gets the transcript.
			o.logger.Warn("Failed to publish transcript event",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	return Result{
		SessionID:    sessionID,
		Transcript:   transcript,
		Chunks:       rec.Chunks,
		AudioSeconds: audioSeconds,
	}, nil
}

// OutputSampleRate returns the sample rate of finished recordings.
func (o *Orchestrator) OutputSampleRate() int {
	return o.conv.OutRate()
}
