package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/stat"

	"tempmon/models"
	"tempmon/store"
)

const (
	// ForecastHorizon is how far past the newest sample every forecast looks.
	ForecastHorizon = 3600 * time.Second
	// RecentPredictions is how many stored predictions Forecast returns.
	RecentPredictions = 10

	PredictionsChannel = "tempmon:predictions"
)

// ErrInsufficientHistory means there are fewer than two samples at distinct
// instants, so no line can be fitted. Nothing is stored in that case.
var ErrInsufficientHistory = errors.New("not enough data to forecast")

var (
	forecastsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempmon_forecaster_forecasts_generated_total",
		Help: "Total number of forecasts computed and stored.",
	})
	forecastsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempmon_forecaster_forecasts_failed_total",
		Help: "Total number of forecast failures, including insufficient history.",
	})
	forecastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tempmon_forecaster_duration_seconds",
		Help:    "Duration of a full load, fit and persist cycle.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
	})
	historySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempmon_forecaster_history_samples",
		Help: "Number of samples the last forecast was fitted over.",
	})
	fitRSquared = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tempmon_forecaster_fit_r_squared",
		Help: "Coefficient of determination of the last fit, per quantity.",
	}, []string{"quantity"})
)

// Notifier receives each prediction after it is stored.
type Notifier interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Forecaster refits both lines over the complete history on every call, so
// each forecast costs O(history).
type Forecaster struct {
	samples     store.SampleStore
	predictions store.PredictionStore
	notifier    Notifier
}

// NewForecaster builds a Forecaster. notifier may be nil.
func NewForecaster(samples store.SampleStore, predictions store.PredictionStore, notifier Notifier) *Forecaster {
	return &Forecaster{samples: samples, predictions: predictions, notifier: notifier}
}

// Forecast fits time->cpu and time->battery, extrapolates ForecastHorizon past
// the newest sample, stores exactly one Prediction and returns the latest
// RecentPredictions, newest first. Predictions are not clamped.
func (f *Forecaster) Forecast(ctx context.Context) ([]models.Prediction, error) {
	start := time.Now()
	defer func() {
		forecastDuration.Observe(time.Since(start).Seconds())
	}()

	history, err := f.samples.ListSamples(ctx, store.Query{Order: store.Ascending})
	if err != nil {
		forecastsFailed.Inc()
		return nil, fmt.Errorf("load history: %w", err)
	}
	historySize.Set(float64(len(history)))

	prediction, err := extrapolate(history, ForecastHorizon)
	if err != nil {
		forecastsFailed.Inc()
		return nil, err
	}

	stored, err := f.predictions.AppendPrediction(ctx, prediction)
	if err != nil {
		forecastsFailed.Inc()
		return nil, fmt.Errorf("store prediction: %w", err)
	}
	forecastsGenerated.Inc()

	if f.notifier != nil {
		if err := f.notifier.Publish(ctx, PredictionsChannel, stored); err != nil {
			log.Printf("publish prediction failed: %v", err)
		}
	}

	recent, err := f.predictions.ListPredictions(ctx, store.Query{Order: store.Descending, Limit: RecentPredictions})
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}

	log.Printf("forecast stored: target=%s cpu=%.2f battery=%.2f samples=%d (%.3fs)",
		stored.Timestamp.Format(time.RFC3339), stored.PredictedCPUTemp, stored.PredictedBatteryTemp,
		len(history), time.Since(start).Seconds())

	return recent, nil
}

func extrapolate(history []models.Sample, horizon time.Duration) (models.Prediction, error) {
	if len(history) < 2 {
		return models.Prediction{}, ErrInsufficientHistory
	}

	xs := make([]float64, len(history))
	cpu := make([]float64, len(history))
	battery := make([]float64, len(history))
	latest := history[0].Timestamp
	distinct := false
	for i, s := range history {
		xs[i] = unixSeconds(s.Timestamp)
		cpu[i] = s.CPUTemp
		battery[i] = s.BatteryTemp
		if !s.Timestamp.Equal(history[0].Timestamp) {
			distinct = true
		}
		if s.Timestamp.After(latest) {
			latest = s.Timestamp
		}
	}
	if !distinct {
		return models.Prediction{}, ErrInsufficientHistory
	}

	cpuSlope, cpuIntercept := fitLinearRegression(xs, cpu)
	batterySlope, batteryIntercept := fitLinearRegression(xs, battery)
	fitRSquared.WithLabelValues("cpu").Set(stat.RSquared(xs, cpu, nil, cpuIntercept, cpuSlope))
	fitRSquared.WithLabelValues("battery").Set(stat.RSquared(xs, battery, nil, batteryIntercept, batterySlope))

	target := latest.Add(horizon).UTC()
	x := unixSeconds(target)

	return models.Prediction{
		Timestamp:            target,
		PredictedCPUTemp:     cpuSlope*x + cpuIntercept,
		PredictedBatteryTemp: batterySlope*x + batteryIntercept,
	}, nil
}

// fitLinearRegression returns the least squares line y = slope*x + intercept.
// xs must hold at least two distinct values.
func fitLinearRegression(xs, ys []float64) (slope, intercept float64) {
	intercept, slope = stat.LinearRegression(xs, ys, nil, false)
	return slope, intercept
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
