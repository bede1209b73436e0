package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	DefaultPriceTopic        = "price.updates"
	DefaultNotificationTopic = "notifications.created"

	source       = "coingecko"
	flushTimeout = 5 * time.Second
)

// Publisher fans evaluator output out to other systems.
type Publisher interface {
	PublishSnapshots(ctx context.Context, username string, snaps []models.PriceSnapshot)
	PublishNotification(ctx context.Context, username string, n models.Notification)
	Close()
}

// PriceUpdate is the price.updates message body, keyed by asset id.
type PriceUpdate struct {
	Source    string  `json:"source"`
	AssetID   string  `json:"asset_id"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Username  string  `json:"username"`
	Timestamp string  `json:"timestamp"`
}

// NotificationCreated is the notifications.created message body, keyed by
// username.
type NotificationCreated struct {
	Username     string              `json:"username"`
	Notification models.Notification `json:"notification"`
}

type Options struct {
	Brokers           []string
	PriceTopic        string
	NotificationTopic string
}

func (o Options) withDefaults() Options {
	if o.PriceTopic == "" {
		o.PriceTopic = DefaultPriceTopic
	}
	if o.NotificationTopic == "" {
		o.NotificationTopic = DefaultNotificationTopic
	}
	return o
}

// KafkaPublisher produces asynchronously; delivery failures are logged by a
// background drain of the producer's event channel.
type KafkaPublisher struct {
	producer          *kafka.Producer
	priceTopic        string
	notificationTopic string
	done              chan struct{}
}

func NewKafkaPublisher(opts Options) (*KafkaPublisher, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("events: %w: no kafka brokers configured", models.ErrInvalidInput)
	}
	opts = opts.withDefaults()

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": strings.Join(opts.Brokers, ","),
		"acks":              "1",
	})
	if err != nil {
		return nil, fmt.Errorf("events: create kafka producer: %w", err)
	}

	kp := &KafkaPublisher{
		producer:          p,
		priceTopic:        opts.PriceTopic,
		notificationTopic: opts.NotificationTopic,
		done:              make(chan struct{}),
	}
	go kp.drain()
	return kp, nil
}

func (kp *KafkaPublisher) PublishSnapshots(_ context.Context, username string, snaps []models.PriceSnapshot) {
	for _, s := range snaps {
		value, err := EncodePriceUpdate(username, s)
		if err != nil {
			logger.Log.Error("Error marshaling price update", zap.String("asset_id", s.AssetID), zap.Error(err))
			continue
		}
		kp.produce(kp.priceTopic, s.AssetID, value)
	}
}

func (kp *KafkaPublisher) PublishNotification(_ context.Context, username string, n models.Notification) {
	value, err := EncodeNotification(username, n)
	if err != nil {
		logger.Log.Error("Error marshaling notification", zap.String("id", n.ID), zap.Error(err))
		return
	}
	kp.produce(kp.notificationTopic, username, value)
}

// Close flushes outstanding messages and shuts the producer down.
func (kp *KafkaPublisher) Close() {
	if remaining := kp.producer.Flush(int(flushTimeout / time.Millisecond)); remaining > 0 {
		logger.Log.Warn("Kafka messages left unflushed", zap.Int("remaining", remaining))
	}
	kp.producer.Close()
	select {
	case <-kp.done:
	case <-time.After(flushTimeout):
	}
}

func (kp *KafkaPublisher) produce(topic, key string, value []byte) {
	err := kp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, nil)
	if err != nil {
		logger.Log.Warn("Error producing Kafka message",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// drain consumes delivery reports until the producer is closed.
func (kp *KafkaPublisher) drain() {
	defer close(kp.done)
	for ev := range kp.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				logger.Log.Warn("Kafka delivery failed",
					zap.String("topic", topicName(e.TopicPartition.Topic)),
					zap.Error(e.TopicPartition.Error),
				)
			}
		case kafka.Error:
			logger.Log.Error("Kafka producer error", zap.Error(e))
		}
	}
}

func EncodePriceUpdate(username string, s models.PriceSnapshot) ([]byte, error) {
	return json.Marshal(PriceUpdate{
		Source:    source,
		AssetID:   s.AssetID,
		Price:     s.Price,
		Change24h: s.Change24h,
		Username:  username,
		Timestamp: s.ObservedAt.UTC().Format(time.RFC3339),
	})
}

func EncodeNotification(username string, n models.Notification) ([]byte, error) {
	return json.Marshal(NotificationCreated{Username: username, Notification: n})
}

func topicName(t *string) string {
	if t == nil {
		return ""
	}
	return *t
}

// Noop drops everything. Used when Kafka is disabled.
type Noop struct{}

func (Noop) PublishSnapshots(context.Context, string, []models.PriceSnapshot) {}
func (Noop) PublishNotification(context.Context, string, models.Notification) {}
func (Noop) Close()                                                           {}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = Noop{}
)
