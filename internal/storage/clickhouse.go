package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-attribution/internal/catalog"
	"github.com/radiusdt/vector-attribution/internal/models"
)

// ClickHouseEventStore runs the attribution join inside ClickHouse.
type ClickHouseEventStore struct {
	conn     driver.Conn
	database string
	logger   *zap.Logger
}

// NewClickHouseEventStore creates a store reading tables from database.
func NewClickHouseEventStore(conn driver.Conn, database string, logger *zap.Logger) (*ClickHouseEventStore, error) {
	if !catalog.IsSafeIdentifier(database) {
		return nil, fmt.Errorf("clickhouse database: %w: %q", catalog.ErrUnsafeIdentifier, database)
	}
	return &ClickHouseEventStore{conn: conn, database: database, logger: logger}, nil
}

func (s *ClickHouseEventStore) Engine() string {
	return "clickhouse"
}

// Attribute executes one query. The connection taken from the driver pool is
// returned when rows are closed, on every exit path.
func (s *ClickHouseEventStore) Attribute(ctx context.Context, plan models.AttributionPlan) ([]models.AttributionRow, error) {
	query, args, err := renderClickHouse(s.database, plan)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("executing attribution query",
		zap.String("impressions", plan.ImpressionTable),
		zap.String("conversions", plan.ConversionTable),
		zap.Any("params", plan.Params()),
	)

	rows, err := s.conn.Query(ctx, query, args...)
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

// Calendar days are taken in UTC regardless of the server or column timezone.
const clickHouseAttributionQuery = `
SELECT
	advertising_id,
	event_time,
	last_interaction AS date,
	attr_a,
	attr_b,
	conv_name,
	conv_value,
	toInt64(abs(dateDiff('day', last_interaction, event_time, 'UTC'))) AS time_to_conversion
FROM
(
	SELECT
		c.advertising_id AS advertising_id,
		c.event_time AS event_time,
		a.datetime AS last_interaction,
		toString(a.{{col_a}}) AS attr_a,
		toString(a.{{col_b}}) AS attr_b,
		toString(c.event_name) AS conv_name,
		toString(c.event_value) AS conv_value,
		row_number() OVER (
			PARTITION BY c.advertising_id, c.event_time
			ORDER BY a.datetime DESC, attr_a ASC, attr_b ASC, conv_name ASC, conv_value ASC
		) AS win
	FROM {{conversions}} AS c
	INNER JOIN {{impressions}} AS a ON c.advertising_id = a.advertising_id
	WHERE toDate(a.datetime, 'UTC') >= toDate(@first_date)
		AND toDate(a.datetime, 'UTC') <= toDate(@second_date)
		AND toDate(c.event_time, 'UTC') >= toDate(@first_date)
		AND toDate(c.event_time, 'UTC') <= toDate(@third_date)
		AND toUnixTimestamp(c.event_time) - toUnixTimestamp(a.datetime) >= 0
		AND toUnixTimestamp(c.event_time) - toUnixTimestamp(a.datetime) <= @size * 86400
)
WHERE win = 1
ORDER BY event_time ASC, advertising_id ASC`

// renderClickHouse substitutes validated identifiers into the query text and
// returns the date bounds and window as named parameters.
func renderClickHouse(database string, plan models.AttributionPlan) (string, []any, error) {
	if err := checkIdentifiers(database, plan); err != nil {
		return "", nil, err
	}

	quote := func(name string) string { return "`" + name + "`" }
	query := strings.NewReplacer(
		"{{col_a}}", quote(plan.ColumnA),
		"{{col_b}}", quote(plan.ColumnB),
		"{{conversions}}", quote(database)+"."+quote(plan.ConversionTable),
		"{{impressions}}", quote(database)+"."+quote(plan.ImpressionTable),
	).Replace(clickHouseAttributionQuery)

	params := plan.Params()
	args := []any{
		clickhouse.Named("first_date", params["first_date"]),
		clickhouse.Named("second_date", params["second_date"]),
		clickhouse.Named("third_date", params["third_date"]),
		clickhouse.Named("size", params["size"]),
	}
	return query, args, nil
}

// checkIdentifiers rejects any name that did not come from the catalog
// allow-list shape. Names are the only values ever spliced into query text.
func checkIdentifiers(database string, plan models.AttributionPlan) error {
	names := []string{plan.ImpressionTable, plan.ConversionTable, plan.ColumnA, plan.ColumnB}
	if database != "" {
		names = append(names, database)
	}
	for _, name := range names {
		if !catalog.IsSafeIdentifier(name) {
			return fmt.Errorf("%w: %q", catalog.ErrUnsafeIdentifier, name)
		}
	}
	return nil
}
