package attribution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/vector-attribution/internal/catalog"
	"github.com/radiusdt/vector-attribution/internal/models"
)

var fixedNow = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(models.DateLayout, s)
	require.NoError(t, err)
	return v
}

func newTestBuilder() *Builder {
	cat := catalog.Default()
	return NewBuilder(cat, NewValidator(cat, DefaultLimits(), func() time.Time { return fixedNow }))
}

func validRequest(t *testing.T) models.AttributionRequest {
	return models.AttributionRequest{
		Client:           "hoff",
		ImpressionSource: "hybe",
		ConversionSource: "appsflyer",
		StartDate:        date(t, "2025-01-01"),
		EndDate:          date(t, "2025-01-31"),
		WindowDays:       7,
	}
}

func TestBuildPlan(t *testing.T) {
	plan, err := newTestBuilder().Build(validRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "hoff_hybe", plan.ImpressionTable)
	assert.Equal(t, "hoff_appsflyer", plan.ConversionTable)
	assert.Equal(t, "campaign", plan.ColumnA)
	assert.Equal(t, "bannerid", plan.ColumnB)
	assert.Equal(t, date(t, "2025-01-01"), plan.ImpressionFrom)
	assert.Equal(t, date(t, "2025-01-31"), plan.ImpressionTo)
	assert.Equal(t, date(t, "2025-01-01"), plan.ConversionFrom)
	assert.Equal(t, date(t, "2025-02-07"), plan.ConversionTo)
	assert.Equal(t, int64(7*86400), plan.WindowSeconds())

	assert.Equal(t, map[string]any{
		"first_date":  "2025-01-01",
		"second_date": "2025-01-31",
		"third_date":  "2025-02-07",
		"size":        7,
	}, plan.Params())
}

func TestBuildPlanAdriverColumns(t *testing.T) {
	req := validRequest(t)
	req.Client = "rendezv"
	req.ImpressionSource = "adriver"

	plan, err := newTestBuilder().Build(req)
	require.NoError(t, err)
	assert.Equal(t, "rendezv_adriver", plan.ImpressionTable)
	assert.Equal(t, "customs_string", plan.ColumnA)
	assert.Equal(t, "ad_name", plan.ColumnB)
}

func TestBuildRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.AttributionRequest)
		field  string
		cause  error
	}{
		{"missing client", func(r *models.AttributionRequest) { r.Client = "" }, "client", nil},
		{"unknown client", func(r *models.AttributionRequest) { r.Client = "acme" }, "client", catalog.ErrUnknownClient},
		{"unsupported tracker", func(r *models.AttributionRequest) { r.ImpressionSource = "doubleclick" }, "impression_source", catalog.ErrUnsupportedTracker},
		{"tracker not enabled", func(r *models.AttributionRequest) {
			r.Client = "rendezv"
			r.ImpressionSource = "hybe"
		}, "impression_source", catalog.ErrTrackerNotAvailable},
		{"conversion tracker unknown", func(r *models.AttributionRequest) { r.ConversionSource = "adjust" }, "conversion_source", catalog.ErrUnsupportedTracker},
		{"conversion as impression", func(r *models.AttributionRequest) { r.ImpressionSource = "appsflyer" }, "impression_source", catalog.ErrUnsupportedTracker},
		{"missing start", func(r *models.AttributionRequest) { r.StartDate = time.Time{} }, "start_date", nil},
		{"before floor", func(r *models.AttributionRequest) { r.StartDate = date(t, "2024-12-31") }, "start_date", nil},
		{"end before start", func(r *models.AttributionRequest) { r.EndDate = date(t, "2024-12-31"); r.StartDate = date(t, "2025-01-05") }, "end_date", nil},
		{"end in future", func(r *models.AttributionRequest) { r.EndDate = date(t, "2025-03-02") }, "end_date", nil},
		{"window too small", func(r *models.AttributionRequest) { r.WindowDays = 6 }, "window_days", nil},
		{"window too large", func(r *models.AttributionRequest) { r.WindowDays = 366 }, "window_days", nil},
		{"window overflows seconds", func(r *models.AttributionRequest) { r.WindowDays = 106751991167301 }, "window_days", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest(t)
			tt.mutate(&req)

			_, err := newTestBuilder().Build(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
			assert.False(t, errors.Is(err, ErrQueryFailed))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestBuildAcceptsToday(t *testing.T) {
	req := validRequest(t)
	req.StartDate = date(t, "2025-03-01")
	req.EndDate = date(t, "2025-03-01")

	_, err := newTestBuilder().Build(req)
	assert.NoError(t, err)
}

func TestBuildAcceptsMaximumWindow(t *testing.T) {
	req := validRequest(t)
	req.WindowDays = DefaultLimits().MaxWindowDays

	plan, err := newTestBuilder().Build(req)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2026-01-31"), plan.ConversionTo)
	assert.Equal(t, int64(365*86400), plan.WindowSeconds())
}

func TestQueryErrorClassification(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewQueryError("clickhouse", cause)

	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, ErrInvalidRequest))
	assert.Contains(t, err.Error(), "clickhouse")
}
