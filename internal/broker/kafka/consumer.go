package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/TrackLedger/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic through a consumer group and commits a message
// only after its handler accepted it.
type Consumer struct {
	r   messageReader
	log *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *zap.Logger) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(kafka.NewReader(cfg), log)
}

func newConsumerWithReader(r messageReader, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, log: log}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume blocks until ctx is done or the handler fails. A failed message
// stays uncommitted and is redelivered to the group.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			c.log.Error("handler failed, message left uncommitted",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrapf(err, "commit offset %d", msg.Offset)
		}
	}
}

// AdminStatusHandler decodes AdminStatusChanged messages and passes them to
// apply. A message that can never be applied is logged and acknowledged:
// broken JSON, an empty tracking number, or an apply error matched by poison.
// Any other apply error is returned so Consume stops before the commit.
func AdminStatusHandler(
	ctx context.Context,
	log *zap.Logger,
	apply func(context.Context, messages.AdminStatusChanged) error,
	poison func(error) bool,
) func(key, value []byte) error {
	if log == nil {
		log = zap.NewNop()
	}
	return func(key, value []byte) error {
		var m messages.AdminStatusChanged
		if err := json.Unmarshal(value, &m); err != nil {
			log.Warn("skip undecodable admin status message", zap.ByteString("key", key), zap.Error(err))
			return nil
		}
		if strings.TrimSpace(m.TrackingNumber) == "" {
			log.Warn("skip admin status message without tracking number",
				zap.ByteString("key", key), zap.String("status", m.Status))
			return nil
		}

		err := apply(ctx, m)
		if err != nil && poison != nil && poison(err) {
			log.Warn("skip invalid admin status message",
				zap.String("tracking_number", m.TrackingNumber),
				zap.String("status", m.Status),
				zap.Error(err))
			return nil
		}
		return err
	}
}
