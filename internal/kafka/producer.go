package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"eco-tiket/internal/config"
	"eco-tiket/internal/models"
)

// Producer streams committed ledger transactions, one topic per
// transaction type. Downstream consumers (reporting, notifications) key
// off the account id.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics}
}

func (p *Producer) publish(topic string, tx models.Transaction) error {
	msgBytes, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	fmt.Printf("Publishing to Kafka [%s]: %s\n", topic, tx.ID)

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(tx.AccountID),
			Value: msgBytes,
		},
	)
}

// PublishExchange streams a recorded bottle exchange.
func (p *Producer) PublishExchange(tx models.Transaction) error {
	return p.publish(p.Topics.Exchange, tx)
}

// PublishUsage streams a recorded ticket debit.
func (p *Producer) PublishUsage(tx models.Transaction) error {
	return p.publish(p.Topics.Usage, tx)
}

// PublishExpiration streams a forfeiture sweep result.
func (p *Producer) PublishExpiration(tx models.Transaction) error {
	return p.publish(p.Topics.Expiration, tx)
}

// PublishReversal streams an administrative reversal marker.
func (p *Producer) PublishReversal(tx models.Transaction) error {
	return p.publish(p.Topics.Reversal, tx)
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.Writer.Close()
}
