package catalog

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnsupportedTracker is returned for a tracker with no known schema.
	ErrUnsupportedTracker = errors.New("unsupported tracker")
	// ErrUnknownClient is returned for a client missing from the catalog.
	ErrUnknownClient = errors.New("unknown client")
	// ErrTrackerNotAvailable is returned when a known tracker is not enabled
	// for the requested client.
	ErrTrackerNotAvailable = errors.New("tracker not available for client")
	// ErrUnsafeIdentifier is returned for names that cannot be used to
	// compose a table name.
	ErrUnsafeIdentifier = errors.New("unsafe identifier")
)

// Tracker identifies an event source.
type Tracker string

const (
	TrackerAdriver   Tracker = "adriver"
	TrackerHybe      Tracker = "hybe"
	TrackerAppsflyer Tracker = "appsflyer"
)

// Columns names the two tracker-specific attributes carried from the
// impression table into the output.
type Columns struct {
	A string `json:"a"`
	B string `json:"b"`
}

// impressionColumns is the schema of every supported impression source.
// A tracker absent from this table cannot be queried.
var impressionColumns = map[Tracker]Columns{
	TrackerAdriver: {A: "customs_string", B: "ad_name"},
	TrackerHybe:    {A: "campaign", B: "bannerid"},
}

// conversionTrackers lists supported conversion sources. They all share the
// fixed conversion schema (advertising_id, event_time, event_name, event_value).
var conversionTrackers = map[Tracker]struct{}{
	TrackerAppsflyer: {},
}

// ResolveColumns returns the attribute columns of an impression tracker.
func ResolveColumns(tracker string) (Columns, error) {
	cols, ok := impressionColumns[Tracker(tracker)]
	if !ok {
		return Columns{}, fmt.Errorf("%w: %q", ErrUnsupportedTracker, tracker)
	}
	return cols, nil
}

// IsImpressionTracker reports whether tracker is a supported impression source.
func IsImpressionTracker(tracker string) bool {
	_, ok := impressionColumns[Tracker(tracker)]
	return ok
}

// IsConversionTracker reports whether tracker is a supported conversion source.
func IsConversionTracker(tracker string) bool {
	_, ok := conversionTrackers[Tracker(tracker)]
	return ok
}

// ImpressionTrackers returns the supported impression sources, sorted.
func ImpressionTrackers() []string {
	out := make([]string, 0, len(impressionColumns))
	for t := range impressionColumns {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// ConversionTrackers returns the supported conversion sources, sorted.
func ConversionTrackers() []string {
	out := make([]string, 0, len(conversionTrackers))
	for t := range conversionTrackers {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}
