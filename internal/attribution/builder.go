package attribution

import (
	"github.com/radiusdt/vector-attribution/internal/catalog"
	"github.com/radiusdt/vector-attribution/internal/models"
)

// Builder turns a request into a bounded join plan.
type Builder struct {
	catalog   *catalog.Catalog
	validator *Validator
}

// NewBuilder creates a builder over a validated catalog.
func NewBuilder(cat *catalog.Catalog, validator *Validator) *Builder {
	return &Builder{catalog: cat, validator: validator}
}

// Build validates req and derives the plan. Columns are resolved before
// anything else so a plan never references an unknown attribute column.
func (b *Builder) Build(req models.AttributionRequest) (models.AttributionPlan, error) {
	if err := b.validator.Validate(req); err != nil {
		return models.AttributionPlan{}, err
	}

	cols, err := catalog.ResolveColumns(req.ImpressionSource)
	if err != nil {
		return models.AttributionPlan{}, invalid("impression_source", "has no known schema", err)
	}
	impTable, err := b.catalog.ImpressionTable(req.Client, req.ImpressionSource)
	if err != nil {
		return models.AttributionPlan{}, invalid("impression_source", "is not enabled for client", err)
	}
	convTable, err := b.catalog.ConversionTable(req.Client, req.ConversionSource)
	if err != nil {
		return models.AttributionPlan{}, invalid("conversion_source", "is not enabled for client", err)
	}

	start, end := Day(req.StartDate), Day(req.EndDate)

	return models.AttributionPlan{
		ImpressionTable: impTable,
		ConversionTable: convTable,
		ColumnA:         cols.A,
		ColumnB:         cols.B,
		ImpressionFrom:  start,
		ImpressionTo:    end,
		ConversionFrom:  start,
		ConversionTo:    end.AddDate(0, 0, req.WindowDays),
		WindowDays:      req.WindowDays,
	}, nil
}
