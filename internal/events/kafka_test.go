package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cryptotracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePriceUpdate(t *testing.T) {
	observed := time.Date(2024, 2, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	raw, err := EncodePriceUpdate("alice", models.PriceSnapshot{
		AssetID:    "bitcoin",
		Price:      43000.5,
		Change24h:  -2.25,
		ObservedAt: observed,
	})
	require.NoError(t, err)

	var got PriceUpdate
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, PriceUpdate{
		Source:    "coingecko",
		AssetID:   "bitcoin",
		Price:     43000.5,
		Change24h: -2.25,
		Username:  "alice",
		Timestamp: "2024-02-01T08:30:00Z",
	}, got)
}

func TestEncodeNotification(t *testing.T) {
	raw, err := EncodeNotification("bob", models.Notification{
		ID:      "n1",
		Type:    models.NotificationSuccess,
		Title:   "Price Alert Triggered",
		AssetID: models.StringPtr("ethereum"),
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "bob", got["username"])
	n := got["notification"].(map[string]any)
	assert.Equal(t, "n1", n["id"])
	assert.Equal(t, "ethereum", n["asset_id"])
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(Options{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	p.PublishSnapshots(context.Background(), "alice", []models.PriceSnapshot{{AssetID: "bitcoin"}})
	p.PublishNotification(context.Background(), "alice", models.Notification{})
	p.Close()
}

func TestDecode(t *testing.T) {
	raw, err := EncodePriceUpdate("alice", models.PriceSnapshot{AssetID: "bitcoin", Price: 1})
	require.NoError(t, err)
	m, err := Decode(DefaultPriceTopic, Options{}, []byte("bitcoin"), raw)
	require.NoError(t, err)
	require.NotNil(t, m.Price)
	assert.Nil(t, m.Notification)
	assert.Equal(t, "bitcoin", m.Key)
	assert.Equal(t, "alice", m.Price.Username)

	raw, err = EncodeNotification("alice", models.Notification{ID: "n1", Title: "Price Alert Triggered"})
	require.NoError(t, err)
	m, err = Decode("custom.notes", Options{NotificationTopic: "custom.notes"}, nil, raw)
	require.NoError(t, err)
	require.NotNil(t, m.Notification)
	assert.Equal(t, "Price Alert Triggered", m.Notification.Notification.Title)

	_, err = Decode("other", Options{}, nil, raw)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = Decode(DefaultPriceTopic, Options{}, nil, []byte("{"))
	assert.Error(t, err)
}

func TestNewConsumer_RequiresBrokers(t *testing.T) {
	_, err := NewConsumer(Options{}, "group")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
