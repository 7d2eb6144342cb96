package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/xela07ax/spaceai-console/internal/presence"
)

// MessageWriter: часть kafka.Writer, которой пользуется хранилище.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaStorage публикует объяснения в топик для HR-разбора.
type KafkaStorage struct {
	w MessageWriter
}

func NewKafkaStorage(w MessageWriter) *KafkaStorage {
	return &KafkaStorage{w: w}
}

// NewKafkaWriter: writer с ключом по пользователю (записи одного человека в одной партиции).
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func (s *KafkaStorage) WriteBatch(ctx context.Context, records []presence.JustificationRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("kafka: marshal %s: %w", r.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.UserIdentity),
			Value: value,
			Time:  r.CapturedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte("presence.justification")},
				{Key: "justification_id", Value: []byte(r.ID)},
			},
		})
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d messages: %w", len(msgs), err)
	}
	return nil
}
