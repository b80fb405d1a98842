// Package estimate implements the closed-form traffic model used when no live
// measurement is available. Every output of this package is an estimate.
package estimate

import (
	"fmt"
	"math"

	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

// Default calibration for the rank to visits power law.
const (
	DefaultBaseVisits = 8.5e10
	DefaultExponent   = -0.93
	MinMonthlyVisits  = 1000
)

// Model holds the tunable constants of the rank to visits power law.
type Model struct {
	BaseVisits float64
	Exponent   float64
}

// Estimate is the output of FromRank.
type Estimate struct {
	Visits                  int64
	AvgVisitDurationSeconds float64
	PagesPerVisit           float64
	BounceRate              float64
}

// DefaultModel returns the model with the default calibration.
func DefaultModel() Model {
	return Model{BaseVisits: DefaultBaseVisits, Exponent: DefaultExponent}
}

// Validate rejects calibrations that would break monotonicity in rank.
func (m Model) Validate() error {
	if m.BaseVisits <= 0 {
		return fmt.Errorf("estimate.base_visits must be > 0")
	}
	if m.Exponent >= 0 {
		return fmt.Errorf("estimate.exponent must be < 0")
	}
	return nil
}

// FromRank estimates visits and engagement for a 1-based rank. It panics when
// rank is not positive.
func (m Model) FromRank(rank int) Estimate {
	if rank <= 0 {
		panic(fmt.Sprintf("estimate: rank must be positive, got %d", rank))
	}
	r := float64(rank)
	visits := math.Round(math.Min(traffic.MaxMonthlyVisits, math.Max(MinMonthlyVisits, m.BaseVisits*math.Pow(r, m.Exponent))))
	ef := math.Min(1, 10000/r)
	return Estimate{
		Visits:                  int64(visits),
		AvgVisitDurationSeconds: math.Round(30 + ef*570),
		PagesPerVisit:           round(1.5+ef*3.5, 1),
		BounceRate:              round(0.70-ef*0.40, 2),
	}
}

// FromRank estimates with the default calibration.
func FromRank(rank int) Estimate {
	return DefaultModel().FromRank(rank)
}

// Metrics converts the estimate into record metrics for the given rank.
func (e Estimate) Metrics(rank int) traffic.Metrics {
	return traffic.Metrics{
		GlobalRank:              traffic.Ptr(rank),
		MonthlyVisits:           traffic.Ptr(e.Visits),
		AvgVisitDurationSeconds: traffic.Ptr(e.AvgVisitDurationSeconds),
		PagesPerVisit:           traffic.Ptr(e.PagesPerVisit),
		BounceRate:              traffic.Ptr(e.BounceRate),
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
