package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickervault/internal/models"
)

func TestRequestFromMessage(t *testing.T) {
	msg := kafka.Message{
		Value: []byte("payload"),
		Headers: []kafka.Header{
			{Key: "mimetype", Value: []byte("image/webp")},
			{Key: "Chat_ID", Value: []byte(" chat-1 ")},
			{Key: "group_id", Value: []byte("g")},
			{Key: "sender_id", Value: []byte("s")},
			{Key: "caption", Value: []byte("cat, meme")},
			{Key: "allow_near_duplicate", Value: []byte("true")},
			{Key: "unknown", Value: []byte("ignored")},
		},
	}

	req := RequestFromMessage(msg)
	assert.Equal(t, models.IngestRequest{
		Data:               []byte("payload"),
		ClaimedMime:        "image/webp",
		ChatID:             "chat-1",
		GroupID:            "g",
		SenderID:           "s",
		Caption:            "cat, meme",
		AllowNearDuplicate: true,
		Source:             "kafka",
	}, req)
}

func TestRequestFromMessageBadFlag(t *testing.T) {
	req := RequestFromMessage(kafka.Message{Headers: []kafka.Header{{Key: "allow_near_duplicate", Value: []byte("maybe")}}})
	assert.False(t, req.AllowNearDuplicate)
}

type scriptedIngester struct {
	errs  []error
	calls int
}

func (s *scriptedIngester) Ingest(context.Context, models.IngestRequest) (*models.IngestResult, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return &models.IngestResult{}, s.errs[s.calls-1]
	}
	return &models.IngestResult{MediaID: uuid.New(), Verdict: models.VerdictNovel}, nil
}

func newTestConsumer(ing Ingester) *Consumer {
	return &Consumer{ingester: ing, log: zerolog.Nop(), backoff: time.Millisecond}
}

func TestHandleDoesNotRetryTerminalErrors(t *testing.T) {
	ing := &scriptedIngester{errs: []error{&models.DuplicateError{ExistingID: uuid.New()}}}
	newTestConsumer(ing).handle(context.Background(), kafka.Message{})
	assert.Equal(t, 1, ing.calls)
}

func TestHandleRetriesTransientErrors(t *testing.T) {
	serialization := fmt.Errorf("catalog.Ingest: %w", &pgconn.PgError{Code: "40001"})
	ing := &scriptedIngester{errs: []error{serialization, serialization}}
	newTestConsumer(ing).handle(context.Background(), kafka.Message{})
	assert.Equal(t, 3, ing.calls)

	ing = &scriptedIngester{errs: []error{serialization, serialization, serialization, serialization}}
	newTestConsumer(ing).handle(context.Background(), kafka.Message{})
	assert.Equal(t, maxAttempts, ing.calls)
}

func TestHandleDoesNotRetryUnknownErrors(t *testing.T) {
	ing := &scriptedIngester{errs: []error{errors.New("boom")}}
	newTestConsumer(ing).handle(context.Background(), kafka.Message{})
	assert.Equal(t, 1, ing.calls)
}

func TestNopPublisher(t *testing.T) {
	require.NoError(t, Nop{}.Publish(context.Background(), Event{Type: TypeIngested}))
}

// brokenReader fails every fetch the way an unreachable broker does.
type brokenReader struct {
	fetches atomic.Int32
	commits atomic.Int32
}

func (r *brokenReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.fetches.Add(1)
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{}, errors.New("dial tcp: connection refused")
}

func (r *brokenReader) CommitMessages(context.Context, ...kafka.Message) error {
	r.commits.Add(1)
	return nil
}

func (r *brokenReader) Close() error { return nil }

func TestRunBacksOffOnFetchErrors(t *testing.T) {
	reader := &brokenReader{}
	c := &Consumer{reader: reader, ingester: &scriptedIngester{}, log: zerolog.Nop(), backoff: 40 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.LessOrEqual(t, reader.fetches.Load(), int32(4))
	assert.GreaterOrEqual(t, reader.fetches.Load(), int32(1))
	assert.Zero(t, reader.commits.Load())
}
