// Package traffic defines the record, ports, and error taxonomy shared by the
// resolution chain and its collaborators.
package traffic

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// HistoryDays is the fixed length of every daily history series.
const HistoryDays = 30

// Engagement bounds applied when a record is assembled.
const (
	MinBounceRate    = 0.30
	MaxBounceRate    = 0.80
	MinPagesPerVisit = 1.0
)

// Upper bounds for ranks and visit counts. Larger upstream values are
// treated as absent.
const (
	MaxRank          = math.MaxInt32
	MaxMonthlyVisits = 1 << 62
)

// Source identifies the stage that produced a record.
type Source string

// Source values emitted on the wire.
const (
	SourceProvider Source = "provider"
	SourceRankList Source = "rank-list"
	SourceEstimate Source = "estimate"
)

// HistoryPoint is one calendar day of visits.
type HistoryPoint struct {
	Date   time.Time
	Visits int64
}

type historyPointJSON struct {
	Date   string `json:"date"`
	Visits int64  `json:"visits"`
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (p HistoryPoint) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(historyPointJSON{Date: p.Date.Format(time.DateOnly), Visits: p.Visits})
	if err != nil {
		return nil, fmt.Errorf("marshal history point: %w", err)
	}
	return data, nil
}

// UnmarshalJSON parses the YYYY-MM-DD wire form.
func (p *HistoryPoint) UnmarshalJSON(data []byte) error {
	var raw historyPointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal history point: %w", err)
	}
	date, err := time.Parse(time.DateOnly, raw.Date)
	if err != nil {
		return fmt.Errorf("parse history date: %w", err)
	}
	p.Date = date
	p.Visits = raw.Visits
	return nil
}

// Record is the assembled traffic estimate for one domain. Absent values are
// nil pointers and serialize as null.
type Record struct {
	Domain                  string         `json:"domain"`
	GlobalRank              *int           `json:"globalRank"`
	CountryRank             *int           `json:"countryRank"`
	CategoryRank            *int           `json:"categoryRank"`
	MonthlyVisits           *int64         `json:"monthlyVisits"`
	AvgVisitDurationSeconds *float64       `json:"avgVisitDurationSeconds"`
	PagesPerVisit           *float64       `json:"pagesPerVisit"`
	BounceRate              *float64       `json:"bounceRate"`
	History                 []HistoryPoint `json:"history"`
	IsEstimate              bool           `json:"isEstimate"`
	Source                  Source         `json:"source"`
}

// Metrics holds the headline numbers recovered from a single source before
// they are assembled into a Record.
type Metrics struct {
	GlobalRank              *int
	CountryRank             *int
	CategoryRank            *int
	MonthlyVisits           *int64
	AvgVisitDurationSeconds *float64
	PagesPerVisit           *float64
	BounceRate              *float64
}

// Displayable reports whether a rank or a visit count is present.
func (m Metrics) Displayable() bool {
	return m.GlobalRank != nil || m.MonthlyVisits != nil
}

// Assemble builds a Record from metrics, clamping engagement values into
// their allowed ranges. History is attached as given; callers pass nil when
// no visit volume is known.
func Assemble(domain string, m Metrics, history []HistoryPoint, source Source) Record {
	rec := Record{
		Domain:                  domain,
		GlobalRank:              m.GlobalRank,
		CountryRank:             m.CountryRank,
		CategoryRank:            m.CategoryRank,
		MonthlyVisits:           m.MonthlyVisits,
		AvgVisitDurationSeconds: m.AvgVisitDurationSeconds,
		History:                 history,
		IsEstimate:              source != SourceProvider,
		Source:                  source,
	}
	if m.PagesPerVisit != nil {
		rec.PagesPerVisit = Ptr(max(*m.PagesPerVisit, MinPagesPerVisit))
	}
	if m.BounceRate != nil {
		rec.BounceRate = Ptr(min(max(*m.BounceRate, MinBounceRate), MaxBounceRate))
	}
	if m.MonthlyVisits == nil {
		rec.History = nil
	}
	return rec
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Day truncates t to its calendar day in UTC, keeping t's own year/month/day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
