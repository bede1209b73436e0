package monitor

import (
	"fmt"

	"cryptotracker/internal/models"
	"cryptotracker/internal/notifications"
)

const (
	TitlePriceAlert  = "Price Alert Triggered"
	TitleLargeMove   = "Significant Price Movement"
	TitleUnavailable = "Price Data Unavailable"
)

func thresholdNotification(e models.WatchlistEntry, cur models.PriceSnapshot) models.Notification {
	thr := notifications.FormatPrice(*e.AlertThreshold)
	price := notifications.FormatPrice(cur.Price)

	var msg string
	if e.AlertDirection == models.AlertBelow {
		msg = fmt.Sprintf("%s dropped below $%s, your alert price! Current price: $%s", e.DisplayName(), thr, price)
	} else {
		msg = fmt.Sprintf("%s reached $%s, your target price! Current price: $%s", e.DisplayName(), thr, price)
	}
	return models.Notification{
		Type:    models.NotificationSuccess,
		Title:   TitlePriceAlert,
		Message: msg,
		AssetID: models.StringPtr(e.AssetID),
	}
}

func largeMoveNotification(e models.WatchlistEntry, cur models.PriceSnapshot) models.Notification {
	typ, verb := models.NotificationSuccess, "surged"
	if cur.Change24h < 0 {
		typ, verb = models.NotificationWarning, "dropped"
	}
	return models.Notification{
		Type:  typ,
		Title: TitleLargeMove,
		Message: fmt.Sprintf("%s has %s %s%% in the last 24 hours! Current price: $%s",
			e.DisplayName(), verb, notifications.FormatPercent(cur.Change24h), notifications.FormatPrice(cur.Price)),
		AssetID: models.StringPtr(e.AssetID),
	}
}

func unavailableNotification(e models.WatchlistEntry, misses int) models.Notification {
	return models.Notification{
		Type:  models.NotificationInfo,
		Title: TitleUnavailable,
		Message: fmt.Sprintf("No live price for %s in the last %d checks. Charts show simulated data until it returns.",
			e.DisplayName(), misses),
		AssetID: models.StringPtr(e.AssetID),
	}
}
