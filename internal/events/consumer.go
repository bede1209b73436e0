package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// Message is a decoded event. Exactly one of Price and Notification is set.
type Message struct {
	Topic        string
	Key          string
	Price        *PriceUpdate
	Notification *NotificationCreated
}

// Decode parses value according to topic.
func Decode(topic string, opts Options, key, value []byte) (Message, error) {
	opts = opts.withDefaults()
	m := Message{Topic: topic, Key: string(key)}
	switch topic {
	case opts.PriceTopic:
		var p PriceUpdate
		if err := json.Unmarshal(value, &p); err != nil {
			return Message{}, fmt.Errorf("events: decode %s: %w", topic, err)
		}
		m.Price = &p
	case opts.NotificationTopic:
		var n NotificationCreated
		if err := json.Unmarshal(value, &n); err != nil {
			return Message{}, fmt.Errorf("events: decode %s: %w", topic, err)
		}
		m.Notification = &n
	default:
		return Message{}, fmt.Errorf("events: %w: unexpected topic %q", models.ErrInvalidInput, topic)
	}
	return m, nil
}

// Consumer reads both topics as one consumer group member.
type Consumer struct {
	consumer *kafka.Consumer
	opts     Options
}

func NewConsumer(opts Options, groupID string) (*Consumer, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("events: %w: no kafka brokers configured", models.ErrInvalidInput)
	}
	opts = opts.withDefaults()

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": strings.Join(opts.Brokers, ","),
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("events: create kafka consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{opts.PriceTopic, opts.NotificationTopic}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("events: subscribe: %w", err)
	}
	return &Consumer{consumer: c, opts: opts}, nil
}

// Run hands every decodable message to handle until ctx is done. Read and
// decode errors are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(Message)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := c.consumer.ReadMessage(500 * time.Millisecond)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.IsTimeout() {
				continue
			}
			logger.Log.Warn("Kafka consumer error", zap.Error(err))
			continue
		}

		m, err := Decode(topicName(msg.TopicPartition.Topic), c.opts, msg.Key, msg.Value)
		if err != nil {
			logger.Log.Warn("Skipping undecodable message", zap.Error(err))
			continue
		}
		handle(m)
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
