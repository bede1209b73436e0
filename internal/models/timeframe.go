package models

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a chart window.
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
	Timeframe90d Timeframe = "90d"
	Timeframe1y  Timeframe = "1y"

	DefaultTimeframe = Timeframe7d
)

// Timeframes lists the supported windows, shortest first.
var Timeframes = []Timeframe{Timeframe24h, Timeframe7d, Timeframe30d, Timeframe90d, Timeframe1y}

// ParseTimeframe validates s. An empty string yields DefaultTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultTimeframe, nil
	}
	for _, tf := range Timeframes {
		if string(tf) == s {
			return tf, nil
		}
	}
	return "", fmt.Errorf("%w: unknown timeframe %q", ErrInvalidInput, s)
}

// Days is the market_chart "days" parameter for the window.
func (tf Timeframe) Days() int {
	switch tf {
	case Timeframe24h:
		return 1
	case Timeframe30d:
		return 30
	case Timeframe90d:
		return 90
	case Timeframe1y:
		return 365
	default:
		return 7
	}
}

// Interval is the sampling granularity name ("hourly" or "daily").
func (tf Timeframe) Interval() string {
	if tf.Step() == time.Hour {
		return "hourly"
	}
	return "daily"
}

// Step is the spacing between samples.
func (tf Timeframe) Step() time.Duration {
	switch tf {
	case Timeframe30d, Timeframe90d, Timeframe1y:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Points is the number of samples a full series has.
func (tf Timeframe) Points() int {
	switch tf {
	case Timeframe24h:
		return 24
	case Timeframe30d:
		return 30
	case Timeframe90d:
		return 90
	case Timeframe1y:
		return 365
	default:
		return 168
	}
}
