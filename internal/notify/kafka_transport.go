package notify

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaTransport publishes messages to a topic keyed by company.
type KafkaTransport struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaTransport creates a writer for topic on brokers.
func NewKafkaTransport(brokers []string, topic string, logger *zap.Logger) *KafkaTransport {
	return &KafkaTransport{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

func (t *KafkaTransport) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	record := kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.CompanyID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "template", Value: []byte(msg.TemplateID)},
		},
	}
	if err := t.writer.WriteMessages(ctx, record); err != nil {
		t.logger.Warn("notification publish failed", zap.String("template", msg.TemplateID), zap.Error(err))
		return err
	}
	t.logger.Debug("notification published", zap.String("id", msg.ID), zap.String("template", msg.TemplateID))
	return nil
}

// Close flushes and closes the writer.
func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
