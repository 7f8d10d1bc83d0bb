package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/paylinks/pricechange/internal/config"
	"github.com/paylinks/pricechange/internal/kafka"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/pubsub"
)

// Publisher hands notification records to kafka. Delivery services consume the topic.
type Publisher struct {
	producer *kafka.Producer
	config   *config.Configuration
	logger   *logger.Logger
}

// NewPublisher creates a new kafka-based publisher
func NewPublisher(config *config.Configuration, logger *logger.Logger) (pubsub.Publisher, error) {
	producer, err := kafka.NewProducer(config)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		producer: producer,
		config:   config,
		logger:   logger,
	}, nil
}

// Publish publishes a message on topic
func (p *Publisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return p.producer.Publish(topic, msg)
}

// Close closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
