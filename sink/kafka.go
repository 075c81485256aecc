package sink

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/segmentio/kafka-go"
)

// Producer publishes serialised events to one Kafka topic, keyed by entity
// id so that all events of one transaction or block land on one partition.
type Producer struct {
	writer *kafka.Writer
	log    log.Logger
}

func NewProducer(lg log.Logger, address, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(address),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: time.Second,
			BatchSize:    1,
		},
		log: lg,
	}
}

func (p *Producer) Send(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return err
	}
	p.log.Debug("event published", "topic", p.writer.Topic, "key", key)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
