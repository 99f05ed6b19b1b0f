// Package events carries catalog traffic over Kafka: ingest requests come in
// on one topic, verdicts and moderation outcomes go out on another.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"stickervault/internal/metrics"
	"stickervault/internal/models"
)

type Type string

const (
	TypeIngested       Type = "media.ingested"
	TypeRejected       Type = "media.rejected"
	TypeDeleteEligible Type = "media.delete_eligible"
)

type Event struct {
	Type       Type           `json:"type"`
	MediaID    *uuid.UUID     `json:"media_id,omitempty"`
	Verdict    models.Verdict `json:"verdict,omitempty"`
	StorageKey string         `json:"storage_key,omitempty"`
	ChatID     string         `json:"chat_id,omitempty"`
	Votes      int            `json:"votes,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher hands events to whatever transport is configured.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event. It is used when Kafka is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaPublisher(cfg models.KafkaConfig, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.EventsTopic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		log: log.With().Str("component", "event-publisher").Logger(),
	}
}

// Publish writes e keyed by media id, so events about one item stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	const op = "events.Publish"

	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := kafka.Message{Value: value, Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}}}
	if e.MediaID != nil {
		msg.Key = []byte(e.MediaID.String())
	}

	err = p.writer.WriteMessages(ctx, msg)
	metrics.EventsPublishedTotal.WithLabelValues(string(e.Type), metrics.Status(err)).Inc()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.log.Debug().Str("type", string(e.Type)).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
