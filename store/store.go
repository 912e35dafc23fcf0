// Package store persists samples and predictions and serves them back in
// timestamp order.
package store

import (
	"context"
	"time"

	"tempmon/models"
)

type Order int

const (
	Ascending Order = iota
	Descending
)

// Query selects a time-ordered slice of records. Limit <= 0 means no limit.
// Before, when set, keeps only records strictly older than the instant.
type Query struct {
	Order  Order
	Limit  int
	Before *time.Time
}

type SampleStore interface {
	AppendSample(ctx context.Context, cpuTemp, batteryTemp float64) (models.Sample, error)
	ListSamples(ctx context.Context, q Query) ([]models.Sample, error)
}

type PredictionStore interface {
	AppendPrediction(ctx context.Context, p models.Prediction) (models.Prediction, error)
	ListPredictions(ctx context.Context, q Query) ([]models.Prediction, error)
}

// Store is both halves, which is what every backend here provides.
type Store interface {
	SampleStore
	PredictionStore
}

func (o Order) sql() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}
