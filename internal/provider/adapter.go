// Package provider normalizes payloads from the paid analytics provider into
// traffic records. The payload schema has drifted across provider versions,
// so every logical value is looked up through an ordered list of field paths.
package provider

import (
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/trafficpeek/internal/history"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

// reader converts a raw JSON value into a number.
type reader func(v any) (float64, bool)

// fieldPath is one known location of a logical value. Keys match exactly
// first, then case-insensitively.
type fieldPath struct {
	keys []string
	read reader
}

func path(read reader, keys ...string) fieldPath {
	return fieldPath{keys: keys, read: read}
}

// Field paths per logical value, highest priority first. New schema variants
// are added here.
var (
	globalRankPaths = []fieldPath{
		path(number, "GlobalRank", "Rank"),
		path(number, "GlobalRank"),
		path(number, "global_rank", "rank"),
		path(number, "global_rank"),
		path(number, "Ranks", "Global"),
		path(number, "rank"),
	}
	countryRankPaths = []fieldPath{
		path(number, "CountryRank", "Rank"),
		path(number, "CountryRank"),
		path(number, "country_rank", "rank"),
		path(number, "country_rank"),
		path(number, "Ranks", "Country"),
	}
	categoryRankPaths = []fieldPath{
		path(number, "CategoryRank", "Rank"),
		path(number, "CategoryRank"),
		path(number, "category_rank", "rank"),
		path(number, "category_rank"),
		path(number, "Ranks", "Category"),
	}
	monthlyVisitsPaths = []fieldPath{
		path(latestInSeries, "EstimatedMonthlyVisits"),
		path(number, "Engagments", "Visits"),
		path(number, "Engagements", "Visits"),
		path(number, "MonthlyVisits"),
		path(number, "monthly_visits"),
		path(number, "TotalVisits"),
		path(number, "Traffic", "Visits"),
		path(number, "visits"),
	}
	visitDurationPaths = []fieldPath{
		path(duration, "Engagments", "TimeOnSite"),
		path(duration, "Engagements", "TimeOnSite"),
		path(duration, "Engagements", "AvgVisitDuration"),
		path(duration, "AvgVisitDuration"),
		path(duration, "avg_visit_duration"),
		path(duration, "TimeOnSite"),
	}
	pagesPerVisitPaths = []fieldPath{
		path(number, "Engagments", "PagePerVisit"),
		path(number, "Engagements", "PagePerVisit"),
		path(number, "Engagements", "PagesPerVisit"),
		path(number, "PagesPerVisit"),
		path(number, "pages_per_visit"),
	}
	bounceRatePaths = []fieldPath{
		path(ratio, "Engagments", "BounceRate"),
		path(ratio, "Engagements", "BounceRate"),
		path(ratio, "BounceRate"),
		path(ratio, "bounce_rate"),
	}
)

// Extract recovers headline metrics from an opaque payload. ok is false when
// neither a global rank nor a visit count could be found.
func Extract(payload map[string]any) (traffic.Metrics, bool) {
	m := traffic.Metrics{
		GlobalRank:              rankAt(payload, globalRankPaths),
		CountryRank:             rankAt(payload, countryRankPaths),
		CategoryRank:            rankAt(payload, categoryRankPaths),
		AvgVisitDurationSeconds: floatAt(payload, visitDurationPaths),
		PagesPerVisit:           floatAt(payload, pagesPerVisitPaths),
		BounceRate:              floatAt(payload, bounceRatePaths),
	}
	if v, ok := first(payload, monthlyVisitsPaths); ok && v >= 0 && v <= traffic.MaxMonthlyVisits {
		m.MonthlyVisits = traffic.Ptr(int64(math.Round(v)))
	}
	return m, m.Displayable()
}

// Adapt builds a provider record from payload. The daily history is
// illustrative: it spreads the live monthly figure with random variance.
func Adapt(domain string, payload map[string]any, ref time.Time, rnd *rand.Rand) (traffic.Record, bool) {
	m, ok := Extract(payload)
	if !ok {
		return traffic.Record{}, false
	}
	var series []traffic.HistoryPoint
	if m.MonthlyVisits != nil {
		series = history.Illustrative(*m.MonthlyVisits, ref, rnd)
	}
	return traffic.Assemble(domain, m, series, traffic.SourceProvider), true
}

func first(payload map[string]any, paths []fieldPath) (float64, bool) {
	for _, p := range paths {
		raw, ok := lookup(payload, p.keys)
		if !ok {
			continue
		}
		if v, ok := p.read(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func rankAt(payload map[string]any, paths []fieldPath) *int {
	v, ok := first(payload, paths)
	if !ok || v < 1 || v > traffic.MaxRank {
		return nil
	}
	return traffic.Ptr(int(math.Round(v)))
}

func floatAt(payload map[string]any, paths []fieldPath) *float64 {
	v, ok := first(payload, paths)
	if !ok || v < 0 {
		return nil
	}
	return traffic.Ptr(v)
}

func lookup(payload map[string]any, keys []string) (any, bool) {
	var cur any = payload
	for _, key := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = field(obj, key); !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func field(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.EqualFold(name, key) {
			return obj[name], true
		}
	}
	return nil, false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case interface{ Float64() (float64, error) }:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

// duration accepts seconds as a number or an "hh:mm:ss" string.
func duration(v any) (float64, bool) {
	if s, ok := v.(string); ok && strings.Contains(s, ":") {
		parts := strings.Split(strings.TrimSpace(s), ":")
		total := 0.0
		for _, part := range parts {
			n, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return 0, false
			}
			total = total*60 + n
		}
		return total, true
	}
	return number(v)
}

// ratio accepts a 0..1 fraction, a 0..100 percentage, or a "45%" string.
func ratio(v any) (float64, bool) {
	if s, ok := v.(string); ok && strings.HasSuffix(strings.TrimSpace(s), "%") {
		f, ok := number(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		return f / 100, ok
	}
	f, ok := number(v)
	if ok && f > 1 {
		f /= 100
	}
	return f, ok
}

// latestInSeries reads a {"YYYY-MM-DD": visits} object and returns the most
// recent month. Scalars are accepted as-is.
func latestInSeries(v any) (float64, bool) {
	series, ok := v.(map[string]any)
	if !ok {
		return number(v)
	}
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i := len(keys) - 1; i >= 0; i-- {
		if f, ok := number(series[keys[i]]); ok {
			return f, true
		}
	}
	return 0, false
}
