package provider

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestExtractCurrentSchema(t *testing.T) {
	t.Parallel()

	payload := decode(t, `{
		"GlobalRank": {"Rank": 52},
		"CountryRank": {"Country": 840, "Rank": 31},
		"CategoryRank": {"Rank": "4", "Category": "Computers"},
		"EstimatedMonthlyVisits": {"2024-01-01": 100, "2024-03-01": 350000000, "2024-02-01": 200},
		"Engagments": {"TimeOnSite": "00:07:30", "PagePerVisit": "6.2", "BounceRate": "0.35", "Visits": "999"}
	}`)

	m, ok := Extract(payload)
	require.True(t, ok)
	assert.Equal(t, 52, *m.GlobalRank)
	assert.Equal(t, 31, *m.CountryRank)
	assert.Equal(t, 4, *m.CategoryRank)
	assert.Equal(t, int64(350000000), *m.MonthlyVisits)
	assert.InDelta(t, 450, *m.AvgVisitDurationSeconds, 1e-9)
	assert.InDelta(t, 6.2, *m.PagesPerVisit, 1e-9)
	assert.InDelta(t, 0.35, *m.BounceRate, 1e-9)
}

func TestExtractSchemaVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantRank   *int
		wantVisits *int64
		wantBounce *float64
	}{
		{
			name:       "flat snake case",
			raw:        `{"global_rank": 1200, "monthly_visits": 5000000, "bounce_rate": 45}`,
			wantRank:   traffic.Ptr(1200),
			wantVisits: traffic.Ptr(int64(5000000)),
			wantBounce: traffic.Ptr(0.45),
		},
		{
			name:       "case insensitive keys",
			raw:        `{"globalrank": {"rank": "77"}, "engagements": {"visits": "1,250,000", "bouncerate": "52%"}}`,
			wantRank:   traffic.Ptr(77),
			wantVisits: traffic.Ptr(int64(1250000)),
			wantBounce: traffic.Ptr(0.52),
		},
		{
			name:     "ranks object",
			raw:      `{"Ranks": {"Global": 9}}`,
			wantRank: traffic.Ptr(9),
		},
		{
			name:       "visits only",
			raw:        `{"TotalVisits": 42000}`,
			wantVisits: traffic.Ptr(int64(42000)),
		},
		{
			name:       "null primary falls through",
			raw:        `{"GlobalRank": {"Rank": null}, "global_rank": 300}`,
			wantRank:   traffic.Ptr(300),
		},
		{
			name:       "non-positive rank is absent",
			raw:        `{"GlobalRank": {"Rank": 0}, "MonthlyVisits": 10}`,
			wantVisits: traffic.Ptr(int64(10)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, ok := Extract(decode(t, tt.raw))
			require.True(t, ok)
			assert.Equal(t, tt.wantRank, m.GlobalRank)
			assert.Equal(t, tt.wantVisits, m.MonthlyVisits)
			assert.Equal(t, tt.wantBounce, m.BounceRate)
		})
	}
}

func TestExtractNoData(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`{}`,
		`{"message": "You are not subscribed to this API."}`,
		`{"GlobalRank": {"Rank": null}, "EstimatedMonthlyVisits": {}}`,
		`{"MonthlyVisits": -5, "Engagments": {"BounceRate": 0.5}}`,
	} {
		_, ok := Extract(decode(t, raw))
		assert.False(t, ok, raw)
	}
}

func TestAdaptBuildsProviderRecord(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	payload := decode(t, `{"GlobalRank": {"Rank": 52}, "MonthlyVisits": 300000, "BounceRate": 0.95, "PagesPerVisit": 0.4}`)

	rec, ok := Adapt("github.com", payload, ref, rand.New(rand.NewPCG(1, 2)))
	require.True(t, ok)
	assert.Equal(t, "github.com", rec.Domain)
	assert.Equal(t, traffic.SourceProvider, rec.Source)
	assert.False(t, rec.IsEstimate)
	assert.InDelta(t, traffic.MaxBounceRate, *rec.BounceRate, 1e-9)
	assert.InDelta(t, traffic.MinPagesPerVisit, *rec.PagesPerVisit, 1e-9)
	require.Len(t, rec.History, traffic.HistoryDays)
	assert.Equal(t, traffic.Day(ref), rec.History[traffic.HistoryDays-1].Date)
	for _, p := range rec.History {
		assert.LessOrEqual(t, p.Visits, int64(11000))
	}
}

func TestExtractIgnoresOutOfRangeNumbers(t *testing.T) {
	t.Parallel()

	_, ok := Extract(decode(t, `{"GlobalRank": {"Rank": 1e20}, "MonthlyVisits": 1e20}`))
	assert.False(t, ok)

	m, ok := Extract(decode(t, `{"GlobalRank": {"Rank": 3}, "MonthlyVisits": "1e20", "CountryRank": 4294967296}`))
	require.True(t, ok)
	assert.Equal(t, 3, *m.GlobalRank)
	assert.Nil(t, m.MonthlyVisits)
	assert.Nil(t, m.CountryRank)

	m, ok = Extract(decode(t, `{"GlobalRank": 2147483647, "MonthlyVisits": 4611686018427387904}`))
	require.True(t, ok)
	assert.Equal(t, traffic.MaxRank, *m.GlobalRank)
	assert.Equal(t, int64(traffic.MaxMonthlyVisits), *m.MonthlyVisits)
}

func TestAdaptOversizedVisitsDoesNotPanic(t *testing.T) {
	t.Parallel()

	payload := decode(t, `{"GlobalRank": {"Rank": 3}, "MonthlyVisits": "1e20"}`)
	require.NotPanics(t, func() {
		rec, ok := Adapt("example.com", payload, time.Now(), rand.New(rand.NewPCG(1, 2)))
		require.True(t, ok)
		assert.Equal(t, 3, *rec.GlobalRank)
		assert.Nil(t, rec.MonthlyVisits)
		assert.Nil(t, rec.History)
	})
}

func TestAdaptRankOnlyHasNoHistory(t *testing.T) {
	t.Parallel()

	rec, ok := Adapt("example.com", decode(t, `{"GlobalRank": 10}`), time.Now(), rand.New(rand.NewPCG(1, 2)))
	require.True(t, ok)
	assert.Nil(t, rec.MonthlyVisits)
	assert.Nil(t, rec.History)
	assert.Equal(t, traffic.SourceProvider, rec.Source)
}

func TestReaders(t *testing.T) {
	t.Parallel()

	d, ok := duration("1:02:03")
	require.True(t, ok)
	assert.InDelta(t, 3723, d, 1e-9)

	_, ok = duration("aa:bb")
	assert.False(t, ok)

	r, ok := ratio(0.4)
	require.True(t, ok)
	assert.InDelta(t, 0.4, r, 1e-9)

	_, ok = number("not a number")
	assert.False(t, ok)

	_, ok = number(true)
	assert.False(t, ok)
}
