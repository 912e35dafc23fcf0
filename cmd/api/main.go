package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempmon/config"
	"tempmon/handlers"
	"tempmon/middleware"
	"tempmon/services"
	"tempmon/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st, closeStore, err := openStore(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("Redis unavailable, running without cache: %v", err)
	}
	defer cache.Close()

	router := newRouter(cfg, st, cache, services.NewAuthService(cfg.JWT))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

func newRouter(cfg *config.Config, st store.Store, cache *services.CacheService, auth *services.AuthService) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"message": "tempmon API is running",
			"redis":   cache.Available(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterRoutes(router,
		handlers.NewSampleHandler(st, cache),
		handlers.NewPredictHandler(services.NewForecaster(st, st, cache)),
		handlers.LiveWebSocket(cache, auth),
	)
	return router
}

// openStore connects the gorm store for postgres or sqlite, or falls back to
// memory for demos.
func openStore(db config.DatabaseConfig) (store.Store, func(), error) {
	if db.Driver == "memory" {
		log.Printf("Using in-memory store: data is lost on exit")
		return store.NewMemoryStore(), func() {}, nil
	}

	gdb, err := store.OpenGorm(db.Driver, db.GetDSN())
	if err != nil {
		return nil, nil, err
	}
	gs := store.NewGormStore(gdb)
	if err := gs.Migrate(); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("Connected to %s", db.Driver)

	return gs, func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	}, nil
}
