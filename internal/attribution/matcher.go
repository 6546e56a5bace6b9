package attribution

import (
	"sort"
	"time"

	"github.com/radiusdt/vector-attribution/internal/models"
)

const day = 24 * time.Hour

type conversionKey struct {
	advertisingID string
	eventTime     int64
}

// Match credits every conversion to its most recent qualifying impression.
//
// Candidate pairs share an advertising id, fall inside the plan's date
// bounds and have 0 <= conversion-impression <= window seconds. Pairs are
// partitioned by (advertising_id, event_time) and one survives per
// partition: latest impression first, then attribute A, attribute B, event
// name and event value ascending, then input order. The SQL engines use the
// same ordering so every engine returns the same rows.
//
// The inputs are not modified.
func Match(plan models.AttributionPlan, impressions []models.Impression, conversions []models.Conversion) []models.AttributionRow {
	byID := make(map[string][]int)
	for i, imp := range impressions {
		if imp.AdvertisingID == "" || !inDays(imp.Datetime, plan.ImpressionFrom, plan.ImpressionTo) {
			continue
		}
		byID[imp.AdvertisingID] = append(byID[imp.AdvertisingID], i)
	}

	window := plan.WindowSeconds()
	winners := make(map[conversionKey]models.AttributionRow)
	order := make([]conversionKey, 0)

	for _, conv := range conversions {
		if !inDays(conv.EventTime, plan.ConversionFrom, plan.ConversionTo) {
			continue
		}
		candidates, ok := byID[conv.AdvertisingID]
		if !ok {
			continue
		}

		convUnix := conv.EventTime.Unix()
		best := -1
		for _, i := range candidates {
			elapsed := convUnix - impressions[i].Datetime.Unix()
			if elapsed < 0 || elapsed > window {
				continue
			}
			if best < 0 || impressionBefore(impressions[i], impressions[best]) {
				best = i
			}
		}
		if best < 0 {
			continue
		}

		row := project(conv, impressions[best])
		key := conversionKey{advertisingID: conv.AdvertisingID, eventTime: conv.EventTime.UnixNano()}
		prev, seen := winners[key]
		if !seen {
			order = append(order, key)
			winners[key] = row
			continue
		}
		if rowBefore(row, prev) {
			winners[key] = row
		}
	}

	rows := make([]models.AttributionRow, 0, len(order))
	for _, key := range order {
		rows = append(rows, winners[key])
	}
	SortRows(rows)
	return rows
}

// SortRows orders rows by event time, then advertising id.
func SortRows(rows []models.AttributionRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].EventTime.Equal(rows[j].EventTime) {
			return rows[i].EventTime.Before(rows[j].EventTime)
		}
		return rows[i].AdvertisingID < rows[j].AdvertisingID
	})
}

// DaysBetween is the absolute calendar-day difference between a and b.
func DaysBetween(a, b time.Time) int64 {
	d := int64(Day(a).Sub(Day(b)) / day)
	if d < 0 {
		return -d
	}
	return d
}

func project(conv models.Conversion, imp models.Impression) models.AttributionRow {
	return models.AttributionRow{
		AdvertisingID:    conv.AdvertisingID,
		EventTime:        conv.EventTime,
		Date:             imp.Datetime,
		AttrA:            imp.AttrA,
		AttrB:            imp.AttrB,
		EventName:        conv.EventName,
		EventValue:       conv.EventValue,
		TimeToConversion: DaysBetween(conv.EventTime, imp.Datetime),
	}
}

// impressionBefore reports whether a ranks ahead of b. Equal keys keep the
// earlier candidate.
func impressionBefore(a, b models.Impression) bool {
	if !a.Datetime.Equal(b.Datetime) {
		return a.Datetime.After(b.Datetime)
	}
	if a.AttrA != b.AttrA {
		return a.AttrA < b.AttrA
	}
	return a.AttrB < b.AttrB
}

// rowBefore ranks two winners of the same partition.
func rowBefore(a, b models.AttributionRow) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if a.AttrA != b.AttrA {
		return a.AttrA < b.AttrA
	}
	if a.AttrB != b.AttrB {
		return a.AttrB < b.AttrB
	}
	if a.EventName != b.EventName {
		return a.EventName < b.EventName
	}
	return a.EventValue < b.EventValue
}

func inDays(t, from, to time.Time) bool {
	d := Day(t)
	return !d.Before(Day(from)) && !d.After(Day(to))
}
