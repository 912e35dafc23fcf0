package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempmon/collector"
	"tempmon/config"
	"tempmon/services"
	"tempmon/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	source, err := collector.NewSource(cfg.Collector.Source)
	if err != nil {
		log.Fatalf("sensor source: %v", err)
	}

	samples, closeStore, err := openSampleStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer closeStore()
	log.Printf("db connected: driver=%s", cfg.Database.Driver)

	var publishers []collector.Publisher

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("redis unavailable, live feed disabled: %v", err)
	}
	defer cache.Close()
	if cache.Available() {
		log.Printf("redis connected: %s:%d", cfg.Redis.Host, cfg.Redis.Port)
		publishers = append(publishers, collector.NewRedisPublisher(cache))
	}

	if cfg.MQTT.URL != "" {
		mqttPub, err := collector.NewMQTTPublisher(cfg.MQTT.URL, cfg.MQTT.Topic)
		if err != nil {
			log.Printf("mqtt unavailable, skipping: %v", err)
		} else {
			defer mqttPub.Close()
			publishers = append(publishers, mqttPub)
		}
	}

	go serveHTTP(cfg.Collector.MetricsAddr)

	interval := time.Duration(cfg.Collector.IntervalSec) * time.Second
	collector.New(source, samples, interval, publishers...).Run(ctx)
}

// openSampleStore uses pgx directly against postgres and gorm for sqlite.
func openSampleStore(ctx context.Context, db config.DatabaseConfig) (store.SampleStore, func(), error) {
	switch db.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, db.GetURL())
		if err != nil {
			return nil, nil, fmt.Errorf("db pool init: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		pg := store.NewPGStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	case "sqlite":
		gdb, err := store.OpenGorm(db.Driver, db.GetDSN())
		if err != nil {
			return nil, nil, err
		}
		gs := store.NewGormStore(gdb)
		if err := gs.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		closeDB := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gs, closeDB, nil
	case "memory":
		log.Printf("memory store selected: samples are lost on exit")
		return store.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported db driver %q", db.Driver)
	}
}

func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func serveHTTP(addr string) {
	server := &http.Server{
		Addr:              addr,
		Handler:           newMetricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("metrics server failed: %v", err)
	}
}
