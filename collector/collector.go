// Package collector samples cpu and battery temperatures on a fixed period
// and appends them to the sample store.
package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tempmon/models"
	"tempmon/store"
)

var (
	readsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempmon_collector_reads_failed_total",
		Help: "Total number of ticks skipped because the sensor read failed.",
	})
	samplesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempmon_collector_samples_stored_total",
		Help: "Total number of samples appended to the store.",
	})
	storeFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempmon_collector_store_failed_total",
		Help: "Total number of sample appends that failed.",
	})
	publishFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempmon_collector_publish_failed_total",
		Help: "Total number of failed live publishes.",
	})
)

// SleepFunc waits d or until ctx is done, returning ctx.Err() in that case.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Collector struct {
	source     Source
	store      store.SampleStore
	publishers []Publisher
	interval   time.Duration
	sleep      SleepFunc
}

func New(source Source, samples store.SampleStore, interval time.Duration, publishers ...Publisher) *Collector {
	return &Collector{
		source:     source,
		store:      samples,
		publishers: publishers,
		interval:   interval,
		sleep:      sleepContext,
	}
}

// WithSleep replaces the real timer, mainly for tests.
func (c *Collector) WithSleep(sleep SleepFunc) *Collector {
	c.sleep = sleep
	return c
}

// Run ticks immediately, then waits the full interval after each tick
// finishes, so the period drifts by the time a tick takes. Failed ticks are
// logged and skipped. Run only returns once ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	log.Printf("collector running: source=%s interval=%s", c.source.Name(), c.interval)
	for {
		if _, err := c.Tick(ctx); err != nil {
			log.Printf("collector tick skipped: %v", err)
		}
		if err := c.sleep(ctx, c.interval); err != nil {
			log.Printf("collector shutting down")
			return
		}
	}
}

// Tick takes one reading and appends it. At most one sample is stored.
func (c *Collector) Tick(ctx context.Context) (models.Sample, error) {
	reading, err := c.read(ctx)
	if err != nil {
		readsFailed.Inc()
		return models.Sample{}, fmt.Errorf("read %s: %w", c.source.Name(), err)
	}

	sample, err := c.store.AppendSample(ctx, reading.CPUTemp, reading.BatteryTemp)
	if err != nil {
		storeFailed.Inc()
		return models.Sample{}, fmt.Errorf("store sample: %w", err)
	}
	samplesStored.Inc()
	log.Printf("sample saved: cpu=%.1f°C battery=%.1f°C", sample.CPUTemp, sample.BatteryTemp)

	for _, p := range c.publishers {
		if err := p.Publish(ctx, sample); err != nil {
			publishFailed.Inc()
			log.Printf("publish sample failed: %v", err)
		}
	}
	return sample, nil
}

// read turns a panicking sensor read into an ordinary failed read.
func (c *Collector) read(ctx context.Context) (r Reading, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sensor read panicked: %v", rec)
		}
	}()
	return c.source.Read(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
