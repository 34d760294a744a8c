package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// TranscriptEvent is the message body published after a session finalizes.
type TranscriptEvent struct {
	EventID      string    `json:"event_id"`
	SessionID    string    `json:"session_id"`
	Transcript   string    `json:"transcript"`
	Chunks       int       `json:"chunks"`
	AudioSeconds float64   `json:"audio_seconds"`
	Timestamp    time.Time `json:"timestamp"`
}

// Config holds Kafka publisher configuration.
type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Publisher publishes finished transcripts to a Kafka topic, keyed by session
// id. When disabled it only logs the event, so callers never need to care
// whether a broker is configured.
type Publisher struct {
	writer *kafka.Writer
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a transcript event publisher. With Enabled false or no
// brokers it runs in log-only mode.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("Event publishing disabled, using log-only mode")
		return &Publisher{topic: cfg.Topic, logger: logger}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("Event publisher initialized",
		slog.Any("brokers", cfg.Brokers),
		slog.String("topic", cfg.Topic),
	)

	return &Publisher{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger,
	}
}

// PublishTranscript publishes one final transcript event keyed by session id.
func (p *Publisher) PublishTranscript(ctx context.Context, sessionID, transcript string, chunks int, audioSeconds float64) error {
	event := TranscriptEvent{
		EventID:      uuid.NewString(),
		SessionID:    sessionID,
		Transcript:   transcript,
		Chunks:       chunks,
		AudioSeconds: audioSeconds,
		Timestamp:    time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript event: %w", err)
	}

	p.logger.Debug("Publishing transcript event",
		slog.String("event_id", event.EventID),
		slog.String("session_id", sessionID),
		slog.Int("payload_bytes", len(payload)),
	)

	if p.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("transcript.final")},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to write transcript event",
			slog.String("session_id", sessionID),
			slog.String("topic", p.topic),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to publish transcript event: %w", err)
	}

	return nil
}

// Close closes the underlying Kafka writer if one was created.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
