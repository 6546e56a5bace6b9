package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-attribution/internal/models"
)

// PostgresEventStore runs the attribution join inside PostgreSQL, for event
// tables replicated out of ClickHouse.
type PostgresEventStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresEventStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresEventStore {
	return &PostgresEventStore{pool: pool, logger: logger}
}

func (s *PostgresEventStore) Engine() string {
	return "postgres"
}

func (s *PostgresEventStore) Attribute(ctx context.Context, plan models.AttributionPlan) ([]models.AttributionRow, error) {
	query, args, err := renderPostgres(plan)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribution: %w", err)
	}
	defer rows.Close()

	result := make([]models.AttributionRow, 0)
	for rows.Next() {
		var r models.AttributionRow
		if err := rows.Scan(
			&r.AdvertisingID, &r.EventTime, &r.Date,
			&r.AttrA, &r.AttrB,
			&r.EventName, &r.EventValue,
			&r.TimeToConversion,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attribution row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attribution rows: %w", err)
	}

	return result, nil
}

// Text ordering uses the "C" collation so ties break byte-wise, the same way
// the in-process matcher compares strings. Calendar days are taken in UTC;
// the columns are timestamptz.
const postgresAttributionQuery = `
SELECT
	advertising_id,
	event_time,
	last_interaction AS date,
	attr_a,
	attr_b,
	conv_name,
	conv_value,
	ABS((event_time AT TIME ZONE 'UTC')::date - (last_interaction AT TIME ZONE 'UTC')::date)::bigint AS time_to_conversion
FROM (
	SELECT
		c.advertising_id,
		c.event_time,
		a.datetime AS last_interaction,
		COALESCE(a.{{col_a}}::text, '') AS attr_a,
		COALESCE(a.{{col_b}}::text, '') AS attr_b,
		COALESCE(c.event_name::text, '') AS conv_name,
		COALESCE(c.event_value::text, '') AS conv_value,
		ROW_NUMBER() OVER (
			PARTITION BY c.advertising_id, c.event_time
			ORDER BY a.datetime DESC,
				COALESCE(a.{{col_a}}::text, '') COLLATE "C" ASC,
				COALESCE(a.{{col_b}}::text, '') COLLATE "C" ASC,
				COALESCE(c.event_name::text, '') COLLATE "C" ASC,
				COALESCE(c.event_value::text, '') COLLATE "C" ASC
		) AS win
	FROM {{conversions}} AS c
	JOIN {{impressions}} AS a ON c.advertising_id = a.advertising_id
	WHERE (a.datetime AT TIME ZONE 'UTC')::date >= @first_date
		AND (a.datetime AT TIME ZONE 'UTC')::date <= @second_date
		AND (c.event_time AT TIME ZONE 'UTC')::date >= @first_date
		AND (c.event_time AT TIME ZONE 'UTC')::date <= @third_date
		AND EXTRACT(EPOCH FROM (c.event_time - a.datetime)) >= 0
		AND EXTRACT(EPOCH FROM (c.event_time - a.datetime)) <= @size::bigint * 86400
) ranked
WHERE win = 1
ORDER BY event_time ASC, advertising_id COLLATE "C" ASC`

func renderPostgres(plan models.AttributionPlan) (string, pgx.NamedArgs, error) {
	if err := checkIdentifiers("", plan); err != nil {
		return "", nil, err
	}

	quote := func(name string) string { return `"` + name + `"` }
	query := strings.NewReplacer(
		"{{col_a}}", quote(plan.ColumnA),
		"{{col_b}}", quote(plan.ColumnB),
		"{{conversions}}", quote(plan.ConversionTable),
		"{{impressions}}", quote(plan.ImpressionTable),
	).Replace(postgresAttributionQuery)

	// pgx encodes time.Time into the date comparisons directly.
	args := pgx.NamedArgs{
		"first_date":  plan.ImpressionFrom,
		"second_date": plan.ImpressionTo,
		"third_date":  plan.ConversionTo,
		"size":        plan.WindowDays,
	}
	return query, args, nil
}
