// Package trend classifies the direction of a daily visit series.
package trend

import (
	"math"

	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

// Direction of change between the two halves of a series.
type Direction string

// Direction values.
const (
	Up      Direction = "up"
	Down    Direction = "down"
	Neutral Direction = "neutral"
)

// MinPoints is the shortest series that gets classified.
const MinPoints = 14

const threshold = 5.0

// Trend is the direction and rounded absolute percent change.
type Trend struct {
	Direction Direction `json:"direction"`
	Magnitude int       `json:"magnitude"`
}

// Calculate compares the sum of the second half of points to the first.
func Calculate(points []traffic.HistoryPoint) Trend {
	if len(points) < MinPoints {
		return Trend{Direction: Neutral}
	}
	mid := len(points) / 2
	var first, second int64
	for i, p := range points {
		if i < mid {
			first += p.Visits
		} else {
			second += p.Visits
		}
	}
	if first == 0 {
		return Trend{Direction: Neutral}
	}
	change := float64(second-first) / float64(first) * 100
	out := Trend{Direction: Neutral, Magnitude: int(math.Round(math.Abs(change)))}
	switch {
	case change > threshold:
		out.Direction = Up
	case change < -threshold:
		out.Direction = Down
	}
	return out
}
