package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/radiusdt/vector-attribution/internal/models"
)

// TimeLayout formats timestamps in summaries and exports.
const TimeLayout = "2006-01-02 15:04:05"

// NoDataMessage is shown when an execution credited nothing.
const NoDataMessage = "No data for the selected parameters"

// Summarize returns the one-line outcome of an execution.
func Summarize(result *models.AttributionResult) string {
	if result.Empty() {
		return NoDataMessage
	}
	return fmt.Sprintf("Conversions: %d", len(result.Rows))
}

// Records renders the result rows as strings in Columns order, with
// timestamps in TimeLayout.
func Records(result *models.AttributionResult) [][]string {
	if result == nil {
		return nil
	}
	records := make([][]string, 0, len(result.Rows))
	for _, r := range result.Rows {
		records = append(records, []string{
			r.AdvertisingID,
			r.EventTime.UTC().Format(TimeLayout),
			r.Date.UTC().Format(TimeLayout),
			r.AttrA,
			r.AttrB,
			r.EventName,
			r.EventValue,
			strconv.FormatInt(r.TimeToConversion, 10),
		})
	}
	return records
}

// WriteCSV writes the result as CSV with a header row and no index column.
// Attribute columns carry the tracker-specific names.
func WriteCSV(w io.Writer, result *models.AttributionResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(result.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(Records(result)); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}
