package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-attribution/internal/config"
)

// eventSessionParams are applied to every event store session. Attribution
// only reads, and calendar days are computed in UTC.
var eventSessionParams = map[string]string{
	"application_name":              "vector-attribution",
	"timezone":                      "UTC",
	"default_transaction_read_only": "on",
}

// PostgresDB is the read-only pool behind the PostgreSQL event store.
type PostgresDB struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresDB opens the event store pool. Attribution joins are long and
// infrequent, so the pool stays small and idle connections expire quickly.
func NewPostgresDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresDB, error) {
	poolConfig, err := eventPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event store pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping event store: %w", err)
	}

	logger.Info("connected to PostgreSQL event store",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DBName),
		zap.Int("max_conns", cfg.MaxConns),
	)

	return &PostgresDB{
		Pool:   pool,
		logger: logger,
	}, nil
}

func eventPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse event store config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	for k, v := range eventSessionParams {
		poolConfig.ConnConfig.RuntimeParams[k] = v
	}
	return poolConfig, nil
}

// Close closes the event store pool.
func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("PostgreSQL event store pool closed")
	}
}

// Health pings the event store.
func (db *PostgresDB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stats returns idle, in-use and total connection counts for the pool metrics.
func (db *PostgresDB) Stats() (idle, inUse, total int) {
	s := db.Pool.Stat()
	return int(s.IdleConns()), int(s.AcquiredConns()), int(s.TotalConns())
}
