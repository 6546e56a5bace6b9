package storage

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/radiusdt/vector-attribution/internal/attribution"
	"github.com/radiusdt/vector-attribution/internal/models"
)

// InMemoryEventStore keeps impression and conversion tables in memory and
// answers Attribute with the in-process matcher.
type InMemoryEventStore struct {
	mu          sync.RWMutex
	impressions map[string][]models.Impression // table -> rows in insertion order
	conversions map[string][]models.Conversion
}

// NewInMemoryEventStore creates an empty in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		impressions: make(map[string][]models.Impression),
		conversions: make(map[string][]models.Conversion),
	}
}

func (s *InMemoryEventStore) Engine() string {
	return "memory"
}

// =============================================
// Writes
// =============================================

func (s *InMemoryEventStore) SaveImpressions(ctx context.Context, table string, imps ...models.Impression) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.impressions[table] = append(s.impressions[table], imps...)
	return nil
}

func (s *InMemoryEventStore) SaveConversions(ctx context.Context, table string, convs ...models.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversions[table] = append(s.conversions[table], convs...)
	return nil
}

// =============================================
// Queries
// =============================================

// Attribute runs the matcher over copies of the two tables. A missing table
// is an error, as it would be for a SQL engine.
func (s *InMemoryEventStore) Attribute(ctx context.Context, plan models.AttributionPlan) ([]models.AttributionRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	imps, okImp := s.impressions[plan.ImpressionTable]
	convs, okConv := s.conversions[plan.ConversionTable]
	imps = append([]models.Impression(nil), imps...)
	convs = append([]models.Conversion(nil), convs...)
	s.mu.RUnlock()

	if !okImp {
		return nil, fmt.Errorf("table %s does not exist", plan.ImpressionTable)
	}
	if !okConv {
		return nil, fmt.Errorf("table %s does not exist", plan.ConversionTable)
	}

	return attribution.Match(plan, imps, convs), nil
}

// =============================================
// Fixtures
// =============================================

// Fixtures is the YAML layout accepted by LoadFixtures.
type Fixtures struct {
	Impressions map[string][]models.Impression `yaml:"impressions"`
	Conversions map[string][]models.Conversion `yaml:"conversions"`
}

// LoadFixtures reads a YAML fixture file into the store.
func (s *InMemoryEventStore) LoadFixtures(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixtures: %w", err)
	}

	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse fixtures: %w", err)
	}

	for table, imps := range f.Impressions {
		if err := s.SaveImpressions(ctx, table, imps...); err != nil {
			return err
		}
	}
	for table, convs := range f.Conversions {
		if err := s.SaveConversions(ctx, table, convs...); err != nil {
			return err
		}
	}
	return nil
}
