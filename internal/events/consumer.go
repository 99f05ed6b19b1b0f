package events

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"stickervault/internal/models"
	"stickervault/internal/storage"
)

// Message headers understood on the ingest topic.
const (
	HeaderMimetype           = "mimetype"
	HeaderChatID             = "chat_id"
	HeaderGroupID            = "group_id"
	HeaderSenderID           = "sender_id"
	HeaderCaption            = "caption"
	HeaderAllowNearDuplicate = "allow_near_duplicate"
)

const maxAttempts = 3

type Ingester interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error)
}

// Consumer reads payloads from the ingest topic and runs each through the
// ingester. Offsets are committed once a message has a final outcome.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   messageReader
	ingester Ingester
	log      zerolog.Logger
	backoff  time.Duration
}

func NewConsumer(cfg models.KafkaConfig, maxBytes int64, ingester Ingester, log zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.IngestTopic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: int(maxBytes) + 64*1024,
		}),
		ingester: ingester,
		log:      log.With().Str("component", "ingest-consumer").Logger(),
		backoff:  200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			c.log.Error().Err(err).Msg("error reading message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("commit failed")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	req := RequestFromMessage(msg)
	log := c.log.With().Int("partition", msg.Partition).Int64("offset", msg.Offset).Str("chat_id", req.ChatID).Logger()

	for attempt := 1; ; attempt++ {
		res, err := c.ingester.Ingest(ctx, req)
		if err == nil {
			log.Info().Str("media_id", res.MediaID.String()).Str("verdict", string(res.Verdict)).Msg("media ingested")
			return
		}
		if models.Terminal(err) {
			log.Info().Err(err).Msg("media rejected")
			return
		}
		if !storage.IsTransient(err) || attempt >= maxAttempts {
			log.Error().Err(err).Int("attempt", attempt).Msg("error processing media")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
}

// RequestFromMessage maps an ingest topic message onto an IngestRequest.
func RequestFromMessage(msg kafka.Message) models.IngestRequest {
	req := models.IngestRequest{Data: msg.Value, Source: "kafka"}
	for _, h := range msg.Headers {
		value := strings.TrimSpace(string(h.Value))
		switch strings.ToLower(h.Key) {
		case HeaderMimetype:
			req.ClaimedMime = value
		case HeaderChatID:
			req.ChatID = value
		case HeaderGroupID:
			req.GroupID = value
		case HeaderSenderID:
			req.SenderID = value
		case HeaderCaption:
			req.Caption = string(h.Value)
		case HeaderAllowNearDuplicate:
			req.AllowNearDuplicate, _ = strconv.ParseBool(value)
		}
	}
	return req
}
