package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ndfz-analytics/gridview/internal/forecast"
	"github.com/ndfz-analytics/gridview/internal/metrics"
	"github.com/ndfz-analytics/gridview/internal/pipeline"
	"github.com/ndfz-analytics/gridview/internal/store"
	"github.com/ndfz-analytics/gridview/pkg/otel"
)

func main() {
	ctx := context.Background()

	// Tracing (no-op unless a collector endpoint is configured)
	var tpShutdown func()
	if endpoint := getEnv("OTEL_COLLECTOR", ""); endpoint != "" {
		cfg := otel.DefaultConfig("gridview-server")
		cfg.CollectorEndpoint = endpoint
		cfg.Environment = getEnv("ENVIRONMENT", "development")
		tp, err := otel.InitTracer(ctx, cfg)
		if err != nil {
			log.Fatalf("tracer init failed: %v", err)
		}
		tpShutdown = func() {
			if err := otel.Shutdown(context.Background(), tp); err != nil {
				log.Printf("tracer shutdown error: %v", err)
			}
		}
	}

	// Record store backend
	backend := getEnv("STORE_BACKEND", "memory")
	var recordStore store.Store
	var err error

	switch backend {
	case "memory":
		snapshotPath := getEnv("STORE_SNAPSHOT", "data/restrictions.json")
		recordStore = store.NewMemoryStore(snapshotPath)
	case "redis":
		redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
		recordStore, err = store.NewRedisStore(redisAddr, getEnv("REDIS_KEY", ""))
		if err != nil {
			log.Fatalf("Failed to create Redis store: %v", err)
		}
	case "postgres":
		connStr := getEnv("POSTGRES_CONN", "")
		recordStore, err = store.NewPostgresStore(connStr)
		if err != nil {
			log.Fatalf("Failed to create Postgres store: %v", err)
		}
	default:
		log.Fatalf("Unknown STORE_BACKEND: %s", backend)
	}

	m := metrics.New()
	records := store.NewRecordService(recordStore, m)

	forecaster, err := forecast.New(
		forecast.WithCache(getEnvInt("FORECAST_CACHE_SIZE", 256), 0),
		forecast.WithMetrics(m),
	)
	if err != nil {
		log.Fatalf("forecaster init failed: %v", err)
	}

	tokenRate := getEnvInt("TOKEN_RATE", 50)
	srv := &Server{
		records:    records,
		pipeline:   pipeline.New(m),
		forecaster: forecaster,
		limiter:    rate.NewLimiter(rate.Limit(tokenRate), tokenRate*2),
		spravkaCSV: getEnv("SPRAVKA_CSV", ""),
		pogodaCSV:  getEnv("POGODA_CSV", ""),
		horizon:    getEnvInt("FORECAST_HORIZON", 7),
		rangeDays:  getEnvInt("DEFAULT_RANGE_DAYS", 30),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/reconciled", srv.handleReconciled)
	mux.HandleFunc("/api/range", srv.handleRange)
	mux.HandleFunc("/api/forecast", srv.handleForecast)
	mux.HandleFunc("/api/restrictions", srv.handleRestrictions)
	mux.HandleFunc("/api/restrictions/", srv.handleRestrictionByID)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s (store=%s)", port, backend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdown
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := recordStore.Close(); err != nil {
		log.Printf("Error closing record store: %v", err)
	}
	if tpShutdown != nil {
		tpShutdown()
	}
	log.Println("Server stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
