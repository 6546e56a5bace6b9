package models

import (
	"time"
)

// DateLayout is the calendar-date format used for request dates and bound
// parameters.
const DateLayout = "2006-01-02"

// ===========================================
// REQUEST
// ===========================================

// AttributionRequest carries the parameters collected by the form layer.
type AttributionRequest struct {
	Client           string    `json:"client"`
	ImpressionSource string    `json:"impression_source"`
	ConversionSource string    `json:"conversion_source"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	WindowDays       int       `json:"window_days"`
}

// ===========================================
// PLAN
// ===========================================

// AttributionPlan is the bounded join produced by the query
// builder. Table and column identifiers are already validated against the
// catalog; the date bounds and window are only ever sent as bound parameters.
type AttributionPlan struct {
	ImpressionTable string `json:"impression_table"`
	ConversionTable string `json:"conversion_table"`
	ColumnA         string `json:"column_a"`
	ColumnB         string `json:"column_b"`

	// Impressions must fall on a calendar day in [ImpressionFrom, ImpressionTo].
	ImpressionFrom time.Time `json:"impression_from"`
	ImpressionTo   time.Time `json:"impression_to"`

	// Conversions must fall on a calendar day in [ConversionFrom, ConversionTo],
	// where ConversionTo trails the campaign end by the window.
	ConversionFrom time.Time `json:"conversion_from"`
	ConversionTo   time.Time `json:"conversion_to"`

	WindowDays int `json:"window_days"`
}

// WindowSeconds is the upper bound on conversion time minus impression time.
func (p AttributionPlan) WindowSeconds() int64 {
	return int64(p.WindowDays) * 24 * 60 * 60
}

// Params returns the named bound parameters shared by every SQL engine.
func (p AttributionPlan) Params() map[string]any {
	return map[string]any{
		"first_date":  p.ImpressionFrom.Format(DateLayout),
		"second_date": p.ImpressionTo.Format(DateLayout),
		"third_date":  p.ConversionTo.Format(DateLayout),
		"size":        p.WindowDays,
	}
}

// ===========================================
// RESULT
// ===========================================

// AttributionRow is one conversion credited to its last qualifying impression.
type AttributionRow struct {
	AdvertisingID    string    `json:"advertising_id"`
	EventTime        time.Time `json:"event_time"`
	Date             time.Time `json:"date"`
	AttrA            string    `json:"attr_a"`
	AttrB            string    `json:"attr_b"`
	EventName        string    `json:"event_name"`
	EventValue       string    `json:"event_value"`
	TimeToConversion int64     `json:"time_to_conversion"`
}

// AttributionResult is the whole result set of one execution. It is a value
// held by the caller; a new execution replaces it.
type AttributionResult struct {
	ID         string             `json:"id"`
	Request    AttributionRequest `json:"request"`
	ColumnA    string             `json:"column_a"`
	ColumnB    string             `json:"column_b"`
	Rows       []AttributionRow   `json:"rows"`
	Engine     string             `json:"engine"`
	ExecutedAt time.Time          `json:"executed_at"`
}

// Empty reports the "no data" condition. It is not an error.
func (r *AttributionResult) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// Columns returns the output header with the tracker-specific names in
// place of the two attribute columns.
func (r *AttributionResult) Columns() []string {
	return []string{
		"advertising_id",
		"event_time",
		"date",
		r.ColumnA,
		r.ColumnB,
		"event_name",
		"event_value",
		"time_to_conversion",
	}
}
