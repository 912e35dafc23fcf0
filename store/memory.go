package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tempmon/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process. Used by tests and DB_DRIVER=memory.
type MemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	samples     []models.Sample
	predictions []models.Prediction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// NewMemoryStoreWithClock stamps samples using now instead of the wall clock.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{now: now}
}

func (s *MemoryStore) AppendSample(_ context.Context, cpuTemp, batteryTemp float64) (models.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := models.Sample{
		ID:          uint(len(s.samples) + 1),
		Timestamp:   s.now().UTC(),
		CPUTemp:     cpuTemp,
		BatteryTemp: batteryTemp,
	}
	s.samples = append(s.samples, sample)
	return sample, nil
}

func (s *MemoryStore) ListSamples(_ context.Context, q Query) ([]models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Sample, 0, len(s.samples))
	for _, sample := range s.samples {
		if q.Before != nil && !sample.Timestamp.Before(*q.Before) {
			continue
		}
		out = append(out, sample)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Timestamp, out[i].ID, out[j].Timestamp, out[j].ID, q.Order)
	})
	return limit(out, q.Limit), nil
}

func (s *MemoryStore) AppendPrediction(_ context.Context, p models.Prediction) (models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uint(len(s.predictions) + 1)
	p.Timestamp = p.Timestamp.UTC()
	s.predictions = append(s.predictions, p)
	return p, nil
}

func (s *MemoryStore) ListPredictions(_ context.Context, q Query) ([]models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Prediction, 0, len(s.predictions))
	for _, p := range s.predictions {
		if q.Before != nil && !p.Timestamp.Before(*q.Before) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Timestamp, out[i].ID, out[j].Timestamp, out[j].ID, q.Order)
	})
	return limit(out, q.Limit), nil
}

// SeedSample inserts a sample with a caller-chosen timestamp. Only the
// in-memory backend allows this; tests use it to build synthetic history.
func (s *MemoryStore) SeedSample(ts time.Time, cpuTemp, batteryTemp float64) models.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := models.Sample{
		ID:          uint(len(s.samples) + 1),
		Timestamp:   ts.UTC(),
		CPUTemp:     cpuTemp,
		BatteryTemp: batteryTemp,
	}
	s.samples = append(s.samples, sample)
	return sample
}

func (s *MemoryStore) SampleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

func (s *MemoryStore) PredictionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.predictions)
}

func less(ti time.Time, idi uint, tj time.Time, idj uint, order Order) bool {
	if order == Descending {
		ti, tj = tj, ti
		idi, idj = idj, idi
	}
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return idi < idj
}

func limit[T any](rows []T, n int) []T {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}
