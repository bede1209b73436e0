package notifications

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
	one      = decimal.NewFromInt(1)
)

// FormatPrice renders a USD amount the way the dashboard shows it:
// 1.23M, 45.00K, 12.34, 0.081234. A value that rounds up to the next unit
// is shown in that unit, so 999999.999 is 1.00M rather than 1000.00K.
func FormatPrice(v float64) string {
	d := decimal.NewFromFloat(v)
	if d.LessThan(one) {
		if d.Round(6).LessThan(one) {
			return d.StringFixed(6)
		}
		d = one
	}
	if d.LessThan(thousand) {
		if d.Round(2).LessThan(thousand) {
			return d.StringFixed(2)
		}
		d = thousand
	}
	if d.LessThan(million) {
		if k := d.Div(thousand); k.Round(2).LessThan(thousand) {
			return k.StringFixed(2) + "K"
		}
		d = million
	}
	return d.Div(million).StringFixed(2) + "M"
}

// FormatPercent renders a percentage magnitude with two decimals.
func FormatPercent(v float64) string {
	return decimal.NewFromFloat(v).Abs().StringFixed(2)
}

// TimeAgo renders the age of t relative to now.
func TimeAgo(t, now time.Time) string {
	diff := now.Sub(t)
	mins := int(diff / time.Minute)
	hours := int(diff / time.Hour)
	days := int(diff / (24 * time.Hour))

	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return fmt.Sprintf("%d min%s ago", mins, plural(mins))
	case hours < 24:
		return fmt.Sprintf("%d hour%s ago", hours, plural(hours))
	default:
		return fmt.Sprintf("%d day%s ago", days, plural(days))
	}
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
