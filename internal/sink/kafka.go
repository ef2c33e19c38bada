package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/ledgerpulse/engine/internal/publish"
	"github.com/ledgerpulse/engine/internal/wire"
)

// TypeWhale is the envelope type of whale messages.
const TypeWhale = "whale"

// KafkaWhaleSink publishes one message per whale event, keyed by
// transaction hash so replays land on the same partition.
type KafkaWhaleSink struct {
	topic string
	p     sarama.SyncProducer
	now   func() time.Time
}

// NewKafkaWhaleSink connects a synchronous producer to brokers.
func NewKafkaWhaleSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaWhaleSink, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.ClientID = "ledgerpulse"
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaWhaleSinkWithProducer(p, topic), nil
}

// NewKafkaWhaleSinkWithProducer wraps an existing producer.
func NewKafkaWhaleSinkWithProducer(p sarama.SyncProducer, topic string) *KafkaWhaleSink {
	return &KafkaWhaleSink{topic: topic, p: p, now: time.Now}
}

// Close closes the producer.
func (s *KafkaWhaleSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}

// Consume sends the whales carried by u. Updates without whales are
// ignored. The first send error is returned after every whale was tried.
func (s *KafkaWhaleSink) Consume(_ context.Context, u publish.Update) error {
	var firstErr error
	for _, ev := range u.Whales {
		w := wire.NewWhale(ev)
		b, err := encode(TypeWhale, w, s.now())
		if err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: s.topic,
			Key:   sarama.StringEncoder(w.Hash),
			Value: sarama.ByteEncoder(b),
		}
		partition, offset, err := s.p.SendMessage(msg)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("kafka emit %s: %w", w.Hash, err)
			}
			continue
		}
		slog.Debug("whale_emitted", "tx", w.Hash, "topic", s.topic, "partition", partition, "offset", offset)
	}
	return firstErr
}
