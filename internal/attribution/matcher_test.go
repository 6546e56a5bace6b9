package attribution

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/vector-attribution/internal/models"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse("2006-01-02T15:04:05", s)
	require.NoError(t, err)
	return v
}

func testPlan(t *testing.T, start, end string, window int) models.AttributionPlan {
	t.Helper()
	from, err := time.Parse(models.DateLayout, start)
	require.NoError(t, err)
	to, err := time.Parse(models.DateLayout, end)
	require.NoError(t, err)
	return models.AttributionPlan{
		ImpressionTable: "hoff_hybe",
		ConversionTable: "hoff_appsflyer",
		ColumnA:         "campaign",
		ColumnB:         "bannerid",
		ImpressionFrom:  from,
		ImpressionTo:    to,
		ConversionFrom:  from,
		ConversionTo:    to.AddDate(0, 0, window),
		WindowDays:      window,
	}
}

func TestMatchSingleImpression(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-01T10:00:00"), AttrA: "camp1", AttrB: "ban1"},
	}
	convs := []models.Conversion{
		{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-03T10:00:00"), EventName: "install", EventValue: "{}"},
	}

	rows := Match(plan, imps, convs)

	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "dev-1", row.AdvertisingID)
	assert.Equal(t, ts(t, "2025-01-03T10:00:00"), row.EventTime)
	assert.Equal(t, ts(t, "2025-01-01T10:00:00"), row.Date)
	assert.Equal(t, "camp1", row.AttrA)
	assert.Equal(t, "ban1", row.AttrB)
	assert.Equal(t, "install", row.EventName)
	assert.Equal(t, "{}", row.EventValue)
	assert.EqualValues(t, 2, row.TimeToConversion)
}

func TestMatchMostRecentImpressionWins(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-01T10:00:00"), AttrA: "camp1", AttrB: "ban1"},
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-02T10:00:00"), AttrA: "camp2", AttrB: "ban2"},
	}
	convs := []models.Conversion{
		{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-03T10:00:00"), EventName: "purchase"},
	}

	rows := Match(plan, imps, convs)

	require.Len(t, rows, 1)
	assert.Equal(t, ts(t, "2025-01-02T10:00:00"), rows[0].Date)
	assert.Equal(t, "camp2", rows[0].AttrA)
	assert.EqualValues(t, 1, rows[0].TimeToConversion)
}

func TestMatchRejectsImpressionAfterConversion(t *testing.T) {
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-10T00:00:00"), AttrA: "camp1", AttrB: "ban1"},
	}
	convs := []models.Conversion{
		{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-05T00:00:00"), EventName: "install"},
	}

	for _, window := range []int{7, 30, 365} {
		plan := testPlan(t, "2025-01-01", "2025-01-31", window)
		assert.Empty(t, Match(plan, imps, convs), "window %d", window)
	}
}

func TestMatchRejectsOutsideWindow(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-01T00:00:00"), AttrA: "camp1", AttrB: "ban1"},
	}
	convs := []models.Conversion{
		{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-10T00:00:00"), EventName: "install"},
	}

	assert.Empty(t, Match(plan, imps, convs))
}

func TestMatchWindowBoundaryIsInclusive(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-01T00:00:00"), AttrA: "a", AttrB: "b"},
	}

	exact := []models.Conversion{{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-08T00:00:00")}}
	rows := Match(plan, imps, exact)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 7, rows[0].TimeToConversion)

	past := []models.Conversion{{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-08T00:00:01")}}
	assert.Empty(t, Match(plan, imps, past))
}

func TestMatchSameInstantQualifies(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	at := ts(t, "2025-01-04T12:00:00")
	imps := []models.Impression{{AdvertisingID: "dev-1", Datetime: at, AttrA: "a", AttrB: "b"}}
	convs := []models.Conversion{{AdvertisingID: "dev-1", EventTime: at}}

	rows := Match(plan, imps, convs)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 0, rows[0].TimeToConversion)
}

func TestMatchConversionWithoutImpression(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-01T10:00:00"), AttrA: "camp1", AttrB: "ban1"},
	}
	convs := []models.Conversion{
		{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-02T10:00:00")},
		{AdvertisingID: "dev-2", EventTime: ts(t, "2025-01-02T11:00:00")},
	}

	rows := Match(plan, imps, convs)
	require.Len(t, rows, 1)
	assert.Equal(t, "dev-1", rows[0].AdvertisingID)
}

func TestMatchImpressionBounds(t *testing.T) {
	plan := testPlan(t, "2025-01-05", "2025-01-10", 7)
	convs := []models.Conversion{
		{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-06T00:00:00")},
	}

	// Before the campaign: outside the impression bounds.
	early := []models.Impression{{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-04T23:00:00")}}
	assert.Empty(t, Match(plan, early, convs))

	// The end date covers its whole day.
	convs = []models.Conversion{{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-12T00:00:00")}}
	late := []models.Impression{{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-10T23:30:00")}}
	require.Len(t, Match(plan, late, convs), 1)

	after := []models.Impression{{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-11T00:00:00")}}
	assert.Empty(t, Match(plan, after, convs))
}

func TestMatchConversionHorizonTrailsCampaign(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-10", 7)
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-10T20:00:00"), AttrA: "a", AttrB: "b"},
	}

	inside := []models.Conversion{{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-15T09:00:00")}}
	assert.Len(t, Match(plan, imps, inside), 1)

	beyond := []models.Conversion{{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-18T09:00:00")}}
	assert.Empty(t, Match(plan, imps, beyond))
}

func TestMatchCollapsesSameInstantConversions(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-01T10:00:00"), AttrA: "a", AttrB: "b"},
	}
	at := ts(t, "2025-01-02T10:00:00")
	convs := []models.Conversion{
		{AdvertisingID: "dev-1", EventTime: at, EventName: "purchase", EventValue: "100"},
		{AdvertisingID: "dev-1", EventTime: at, EventName: "install"},
	}

	rows := Match(plan, imps, convs)
	require.Len(t, rows, 1)
	assert.Equal(t, "install", rows[0].EventName)
}

func TestMatchTieBreakIsDeterministic(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	at := ts(t, "2025-01-02T10:00:00")
	imps := []models.Impression{
		{AdvertisingID: "dev-1", Datetime: at, AttrA: "camp9", AttrB: "ban1"},
		{AdvertisingID: "dev-1", Datetime: at, AttrA: "camp1", AttrB: "ban7"},
		{AdvertisingID: "dev-1", Datetime: at, AttrA: "camp1", AttrB: "ban2"},
	}
	convs := []models.Conversion{{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-03T10:00:00")}}

	reversed := []models.Impression{imps[2], imps[1], imps[0]}

	a := Match(plan, imps, convs)
	b := Match(plan, reversed, convs)
	require.Len(t, a, 1)
	assert.Equal(t, a, b)
	assert.Equal(t, "camp1", a[0].AttrA)
	assert.Equal(t, "ban2", a[0].AttrB)
}

func TestMatchDoesNotMutateInputs(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-31", 7)
	imps := []models.Impression{
		{AdvertisingID: "dev-2", Datetime: ts(t, "2025-01-03T00:00:00"), AttrA: "x", AttrB: "y"},
		{AdvertisingID: "dev-1", Datetime: ts(t, "2025-01-01T00:00:00"), AttrA: "a", AttrB: "b"},
	}
	convs := []models.Conversion{
		{AdvertisingID: "dev-2", EventTime: ts(t, "2025-01-04T00:00:00")},
		{AdvertisingID: "dev-1", EventTime: ts(t, "2025-01-02T00:00:00")},
	}
	impsCopy := append([]models.Impression(nil), imps...)
	convsCopy := append([]models.Conversion(nil), convs...)

	_ = Match(plan, imps, convs)

	assert.Equal(t, impsCopy, imps)
	assert.Equal(t, convsCopy, convs)
}

// TestMatchProperties checks ordering, uniqueness and bounds over a generated fixture.
func TestMatchProperties(t *testing.T) {
	plan := testPlan(t, "2025-01-01", "2025-01-20", 7)
	base := ts(t, "2024-12-28T00:00:00")

	var imps []models.Impression
	var convs []models.Conversion
	for dev := 0; dev < 12; dev++ {
		id := fmt.Sprintf("dev-%02d", dev)
		for i := 0; i < 9; i++ {
			at := base.Add(time.Duration(dev*7+i*61) * time.Hour)
			imps = append(imps, models.Impression{
				AdvertisingID: id,
				Datetime:      at,
				AttrA:         fmt.Sprintf("camp%d", i%3),
				AttrB:         fmt.Sprintf("ban%d", i%4),
			})
		}
		for i := 0; i < 6; i++ {
			at := base.Add(time.Duration(dev*5+i*97+13) * time.Hour)
			convs = append(convs, models.Conversion{AdvertisingID: id, EventTime: at, EventName: "event"})
			// A same-instant duplicate must collapse.
			if i%2 == 0 {
				convs = append(convs, models.Conversion{AdvertisingID: id, EventTime: at, EventName: "dup"})
			}
		}
	}

	rows := Match(plan, imps, convs)
	require.NotEmpty(t, rows)

	seen := make(map[string]bool)
	for i, row := range rows {
		key := row.AdvertisingID + "|" + row.EventTime.String()
		assert.False(t, seen[key], "duplicate attribution for %s", key)
		seen[key] = true

		assert.GreaterOrEqual(t, row.TimeToConversion, int64(0))
		assert.LessOrEqual(t, row.TimeToConversion, int64(plan.WindowDays))
		assert.False(t, row.Date.After(row.EventTime), "impression after conversion")
		assert.LessOrEqual(t, row.EventTime.Sub(row.Date), time.Duration(plan.WindowDays)*day)

		if i > 0 {
			assert.False(t, row.EventTime.Before(rows[i-1].EventTime), "rows not sorted")
		}
	}

	assert.Equal(t, rows, Match(plan, imps, convs), "matching is not idempotent")
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		a, b string
		want int64
	}{
		{"2025-01-03T10:00:00", "2025-01-01T10:00:00", 2},
		{"2025-01-01T10:00:00", "2025-01-03T10:00:00", 2},
		{"2025-01-02T01:00:00", "2025-01-01T23:00:00", 1},
		{"2025-01-01T23:59:59", "2025-01-01T00:00:00", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DaysBetween(ts(t, tt.a), ts(t, tt.b)), "%s - %s", tt.a, tt.b)
	}
}
