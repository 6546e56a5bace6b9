package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-attribution/internal/attribution"
	"github.com/radiusdt/vector-attribution/internal/metrics"
	"github.com/radiusdt/vector-attribution/internal/models"
	"github.com/radiusdt/vector-attribution/internal/storage"
)

// Service runs attribution requests end to end: plan, query, result.
type Service struct {
	builder *attribution.Builder
	store   storage.EventStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewService creates an attribution service. A zero timeout leaves the
// caller's context deadline in charge.
func NewService(
	builder *attribution.Builder,
	store storage.EventStore,
	m *metrics.Metrics,
	logger *zap.Logger,
	timeout time.Duration,
) *Service {
	return &Service{
		builder: builder,
		store:   store,
		metrics: m,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Engine names the event store behind the service.
func (s *Service) Engine() string {
	return s.store.Engine()
}

// Run executes one attribution request. Configuration problems come back as
// *attribution.ValidationError before any query is issued; store failures as
// *attribution.QueryError. A result with no rows is returned with a nil error.
func (s *Service) Run(ctx context.Context, req models.AttributionRequest) (*models.AttributionResult, error) {
	start := s.now()
	engine := s.store.Engine()

	plan, err := s.builder.Build(req)
	if err != nil {
		s.record(engine, metrics.StatusInvalid, start)
		s.logger.Info("attribution request rejected",
			zap.String("client", req.Client),
			zap.String("impressions", req.ImpressionSource),
			zap.String("conversions", req.ConversionSource),
			zap.Error(err),
		)
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rows, err := s.store.Attribute(ctx, plan)
	if err != nil {
		s.record(engine, metrics.StatusFailed, start)
		s.logger.Error("attribution query failed",
			zap.String("engine", engine),
			zap.String("impression_table", plan.ImpressionTable),
			zap.String("conversion_table", plan.ConversionTable),
			zap.Duration("duration", s.now().Sub(start)),
			zap.Error(err),
		)
		return nil, attribution.NewQueryError(engine, err)
	}

	result := &models.AttributionResult{
		ID:         uuid.NewString(),
		Request:    req,
		ColumnA:    plan.ColumnA,
		ColumnB:    plan.ColumnB,
		Rows:       rows,
		Engine:     engine,
		ExecutedAt: s.now().UTC(),
	}

	status := metrics.StatusOK
	if result.Empty() {
		status = metrics.StatusEmpty
	}
	s.record(engine, status, start)
	if s.metrics != nil {
		ttc := make([]int64, len(rows))
		for i, r := range rows {
			ttc[i] = r.TimeToConversion
		}
		s.metrics.RecordResult(len(rows), ttc)
	}

	s.logger.Info("attribution executed",
		zap.String("result_id", result.ID),
		zap.String("client", req.Client),
		zap.String("impressions", req.ImpressionSource),
		zap.String("conversions", req.ConversionSource),
		zap.String("start", plan.ImpressionFrom.Format(models.DateLayout)),
		zap.String("end", plan.ImpressionTo.Format(models.DateLayout)),
		zap.Int("window_days", plan.WindowDays),
		zap.String("engine", engine),
		zap.Int("rows", len(rows)),
		zap.Duration("duration", s.now().Sub(start)),
	)

	return result, nil
}

func (s *Service) record(engine, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordQuery(engine, status, s.now().Sub(start))
}
