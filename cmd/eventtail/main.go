// Command eventtail follows the price and notification topics and logs
// every event, for debugging downstream consumers.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cryptotracker/internal/config"
	"cryptotracker/internal/events"
	"cryptotracker/internal/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	group := flag.String("group", "cryptotracker-eventtail", "Kafka consumer group")
	user := flag.String("user", "", "Only show events for this username")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg.LogLevel)
	defer logger.Sync()

	consumer, err := events.NewConsumer(events.Options{
		Brokers:           cfg.Kafka.Brokers,
		PriceTopic:        cfg.Kafka.PriceTopic,
		NotificationTopic: cfg.Kafka.NotificationTopic,
	}, *group)
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Info("Listening for events",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("group", *group),
	)
	err = consumer.Run(ctx, func(m events.Message) {
		switch {
		case m.Price != nil:
			if *user != "" && m.Price.Username != *user {
				return
			}
			logger.Log.Info("Price update",
				zap.String("asset_id", m.Price.AssetID),
				zap.Float64("price", m.Price.Price),
				zap.Float64("change_24h", m.Price.Change24h),
				zap.String("username", m.Price.Username),
				zap.String("timestamp", m.Price.Timestamp),
			)
		case m.Notification != nil:
			if *user != "" && m.Notification.Username != *user {
				return
			}
			n := m.Notification.Notification
			logger.Log.Info("Notification created",
				zap.String("username", m.Notification.Username),
				zap.String("id", n.ID),
				zap.String("type", string(n.Type)),
				zap.String("title", n.Title),
				zap.String("message", n.Message),
			)
		}
	})
	if err != nil {
		logger.Log.Error("Consumer stopped", zap.Error(err))
	}
}
