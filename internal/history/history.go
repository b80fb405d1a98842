// Package history builds the 30-day daily visit series attached to records.
package history

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

const weekendFactor = 0.85

// VarianceFunc returns the multiplicative noise for one day.
type VarianceFunc func(day time.Time) float64

// Generate returns a deterministic synthetic series for domain ending at ref.
// Calling it twice with the same arguments yields identical output. It panics
// when monthlyVisits is negative.
func Generate(domain string, monthlyVisits int64, ref time.Time) []traffic.HistoryPoint {
	return Build(monthlyVisits, ref, SeededVariance(domain))
}

// Illustrative returns a series with random daily variance in [0.9, 1.1). It
// is used when headline numbers come from a live provider and the daily split
// is only indicative.
func Illustrative(monthlyVisits int64, ref time.Time, rnd *rand.Rand) []traffic.HistoryPoint {
	return Build(monthlyVisits, ref, func(time.Time) float64 {
		return 0.9 + rnd.Float64()*0.2
	})
}

// SeededVariance derives the per-day factor from the calendar date and the
// domain length, in [0.85, 1.14].
func SeededVariance(domain string) VarianceFunc {
	return func(day time.Time) float64 {
		seed := day.Day() + (int(day.Month())-1)*31 + len(domain)
		return 0.85 + float64((seed*17)%30)/100
	}
}

// Build lays out HistoryDays points oldest first, ending at the calendar day
// of ref, each scaled by the weekend factor and variance.
func Build(monthlyVisits int64, ref time.Time, variance VarianceFunc) []traffic.HistoryPoint {
	if monthlyVisits < 0 {
		panic(fmt.Sprintf("history: monthly visits must be non-negative, got %d", monthlyVisits))
	}
	end := traffic.Day(ref)
	dailyBase := float64(monthlyVisits) / traffic.HistoryDays
	points := make([]traffic.HistoryPoint, 0, traffic.HistoryDays)
	for i := traffic.HistoryDays - 1; i >= 0; i-- {
		day := end.AddDate(0, 0, -i)
		factor := 1.0
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			factor = weekendFactor
		}
		points = append(points, traffic.HistoryPoint{
			Date:   day,
			Visits: int64(math.Round(dailyBase * factor * variance(day))),
		})
	}
	return points
}
