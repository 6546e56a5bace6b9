package storage

import (
	"context"
	"errors"

	"github.com/radiusdt/vector-attribution/internal/models"
)

// =============================================
// EVENT STORE
// =============================================

// EventStore executes the attribution join against impression and
// conversion tables. Implementations are read-only and return rows sorted by
// (event_time, advertising_id). A nil error with no rows means no matches.
type EventStore interface {
	Attribute(ctx context.Context, plan models.AttributionPlan) ([]models.AttributionRow, error)
	// Engine names the backend for logs and metrics.
	Engine() string
}

// =============================================
// RESULT STORE
// =============================================

// ErrResultNotFound is returned when a session holds no result.
var ErrResultNotFound = errors.New("result not found")

// ResultStore holds the last result of each session. Put replaces whatever
// the session held before.
type ResultStore interface {
	Put(ctx context.Context, sessionID string, result *models.AttributionResult) error
	Get(ctx context.Context, sessionID string) (*models.AttributionResult, error)
	Delete(ctx context.Context, sessionID string) error
}
