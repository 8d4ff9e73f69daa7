package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = TopicTransactionCommitted
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

const requestIDHeader = "request_id"

// Publish keys each message by transaction id so a consumer sees retries of
// one event on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event TransactionCommitted) error {
	msg, err := message(event)
	if err != nil {
		return fmt.Errorf("KafkaPublisher.Publish: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("KafkaPublisher.Publish: %w", err)
	}
	return nil
}

// message also copies the request id into a header so consumers can route on
// it without decoding the payload.
func message(event TransactionCommitted) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Key:   []byte(event.TxID.String()),
		Value: data,
	}
	if event.RequestID != "" {
		msg.Headers = []kafka.Header{{Key: requestIDHeader, Value: []byte(event.RequestID)}}
	}
	return msg, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
