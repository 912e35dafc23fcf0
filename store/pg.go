package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tempmon/models"
)

var _ Store = (*PGStore)(nil)

// PGStore talks to postgres through pgxpool without the ORM. The collector
// uses it; the schema matches what GormStore.Migrate creates.
type PGStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, now: time.Now}
}

func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS samples (
			id           BIGSERIAL PRIMARY KEY,
			timestamp    TIMESTAMPTZ NOT NULL,
			cpu_temp     DOUBLE PRECISION NOT NULL,
			battery_temp DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON samples (timestamp);
		CREATE TABLE IF NOT EXISTS predictions (
			id                     BIGSERIAL PRIMARY KEY,
			timestamp              TIMESTAMPTZ NOT NULL,
			predicted_cpu_temp     DOUBLE PRECISION NOT NULL,
			predicted_battery_temp DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions (timestamp);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PGStore) AppendSample(ctx context.Context, cpuTemp, batteryTemp float64) (models.Sample, error) {
	sample := models.Sample{
		Timestamp:   s.now().UTC(),
		CPUTemp:     cpuTemp,
		BatteryTemp: batteryTemp,
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO samples (timestamp, cpu_temp, battery_temp)
		VALUES ($1, $2, $3)
		RETURNING id
	`, sample.Timestamp, sample.CPUTemp, sample.BatteryTemp).Scan(&id)
	if err != nil {
		return models.Sample{}, fmt.Errorf("insert sample: %w", err)
	}
	sample.ID = uint(id)
	return sample, nil
}

func (s *PGStore) ListSamples(ctx context.Context, q Query) ([]models.Sample, error) {
	sql, args := listSQL("samples", "cpu_temp, battery_temp", q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Sample, error) {
		var m models.Sample
		var id int64
		if err := row.Scan(&id, &m.Timestamp, &m.CPUTemp, &m.BatteryTemp); err != nil {
			return m, err
		}
		m.ID = uint(id)
		m.Timestamp = m.Timestamp.UTC()
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan samples: %w", err)
	}
	return out, nil
}

func (s *PGStore) AppendPrediction(ctx context.Context, p models.Prediction) (models.Prediction, error) {
	p.Timestamp = p.Timestamp.UTC()
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO predictions (timestamp, predicted_cpu_temp, predicted_battery_temp)
		VALUES ($1, $2, $3)
		RETURNING id
	`, p.Timestamp, p.PredictedCPUTemp, p.PredictedBatteryTemp).Scan(&id)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("insert prediction: %w", err)
	}
	p.ID = uint(id)
	return p, nil
}

func (s *PGStore) ListPredictions(ctx context.Context, q Query) ([]models.Prediction, error) {
	sql, args := listSQL("predictions", "predicted_cpu_temp, predicted_battery_temp", q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Prediction, error) {
		var m models.Prediction
		var id int64
		if err := row.Scan(&id, &m.Timestamp, &m.PredictedCPUTemp, &m.PredictedBatteryTemp); err != nil {
			return m, err
		}
		m.ID = uint(id)
		m.Timestamp = m.Timestamp.UTC()
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan predictions: %w", err)
	}
	return out, nil
}

func listSQL(table, columns string, q Query) (string, []any) {
	var args []any
	where := ""
	if q.Before != nil {
		where = "WHERE timestamp < $1"
		args = append(args, q.Before.UTC())
	}
	dir := q.Order.sql()
	sql := fmt.Sprintf("SELECT id, timestamp, %s FROM %s %s ORDER BY timestamp %s, id %s",
		columns, table, where, dir, dir)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return sql, args
}
