package attribution

import (
	"strings"
	"time"

	"github.com/radiusdt/vector-attribution/internal/catalog"
	"github.com/radiusdt/vector-attribution/internal/models"
)

// Limits bound the accepted request parameters.
type Limits struct {
	MinDate       time.Time
	MinWindowDays int
	// MaxWindowDays caps the window so the conversion horizon and the window
	// in seconds stay representable. Zero disables the cap.
	MaxWindowDays int
}

// DefaultLimits mirrors the form: dates from 2025-01-01, window of at least a
// week and at most a year.
func DefaultLimits() Limits {
	return Limits{
		MinDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		MinWindowDays: 7,
		MaxWindowDays: 365,
	}
}

// Validator checks requests against the catalog and limits.
type Validator struct {
	catalog *catalog.Catalog
	limits  Limits
	now     func() time.Time
}

// NewValidator creates a validator. now defaults to time.Now.
func NewValidator(cat *catalog.Catalog, limits Limits, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{catalog: cat, limits: limits, now: now}
}

// Validate returns a *ValidationError for the first invalid field.
func (v *Validator) Validate(req models.AttributionRequest) error {
	if strings.TrimSpace(req.Client) == "" {
		return invalid("client", "is required", nil)
	}
	if _, ok := v.catalog.Clients[req.Client]; !ok {
		return invalid("client", "is not in the catalog", catalog.ErrUnknownClient)
	}

	if req.ImpressionSource == "" {
		return invalid("impression_source", "is required", nil)
	}
	if _, err := catalog.ResolveColumns(req.ImpressionSource); err != nil {
		return invalid("impression_source", "has no known schema", err)
	}
	if _, err := v.catalog.ImpressionTable(req.Client, req.ImpressionSource); err != nil {
		return invalid("impression_source", "is not enabled for client", err)
	}

	if req.ConversionSource == "" {
		return invalid("conversion_source", "is required", nil)
	}
	if _, err := v.catalog.ConversionTable(req.Client, req.ConversionSource); err != nil {
		return invalid("conversion_source", "is not enabled for client", err)
	}

	if req.StartDate.IsZero() {
		return invalid("start_date", "is required", nil)
	}
	if req.EndDate.IsZero() {
		return invalid("end_date", "is required", nil)
	}
	start, end := Day(req.StartDate), Day(req.EndDate)
	if start.Before(Day(v.limits.MinDate)) {
		return invalid("start_date", "is before "+v.limits.MinDate.Format(models.DateLayout), nil)
	}
	if end.Before(start) {
		return invalid("end_date", "is before start_date", nil)
	}
	if end.After(Day(v.now())) {
		return invalid("end_date", "is in the future", nil)
	}

	if req.WindowDays < v.limits.MinWindowDays {
		return invalid("window_days", "is below the minimum attribution window", nil)
	}
	if v.limits.MaxWindowDays > 0 && req.WindowDays > v.limits.MaxWindowDays {
		return invalid("window_days", "exceeds the maximum attribution window", nil)
	}
	return nil
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
