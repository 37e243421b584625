package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"contentops/backend/features/job"
	"contentops/backend/features/stats"
	"contentops/backend/features/target"
	"contentops/backend/internal/config"
	"contentops/backend/internal/database"
	"contentops/backend/internal/metrics"
	"contentops/backend/internal/middleware"
	"contentops/backend/internal/worker"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	Handler        http.Handler
	JobService     *job.Service
	TargetService  *target.Service
	Dispatcher     *worker.Dispatcher
	ResultConsumer *worker.ResultConsumer
	Registry       *prometheus.Registry

	cfg    *config.Config
	logger *slog.Logger
}

func New(
	cfg *config.Config,
	db *sql.DB,
	taskPub worker.TaskPublisher,
	logger *slog.Logger,
) (*App, error) {
	if db == nil {
		return nil, errors.New("app: nil database")
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPromMetrics(reg)

	// Feature: Target
	targetRepo := target.NewPostgresRepo(db)
	targetService := target.NewService(targetRepo)
	targetHandler := target.NewHandler(targetService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(database.NewPool(db), jobRepo, targetRepo, logger, job.WithRecorder(m))
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(jobRepo, targetRepo)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PATCH, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}
	scoped := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(middleware.DomainScope(h)))
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /domains/{domainId}/jobs", scoped(jobHandler.Publish))
	mux.Handle("GET /domains/{domainId}/jobs", scoped(jobHandler.List))
	mux.Handle("GET /domains/{domainId}/jobs/{id}", scoped(jobHandler.Get))
	mux.Handle("POST /domains/{domainId}/jobs/{id}/retry", scoped(jobHandler.Retry))
	mux.Handle("DELETE /domains/{domainId}/jobs/{id}", scoped(jobHandler.Cancel))

	mux.Handle("GET /domains/{domainId}/targets", scoped(targetHandler.List))
	mux.Handle("POST /domains/{domainId}/targets", scoped(targetHandler.Create))
	mux.Handle("PATCH /domains/{domainId}/targets/{id}/config", scoped(targetHandler.UpdateConfig))
	mux.Handle("POST /domains/{domainId}/targets/{id}/toggle", scoped(targetHandler.Toggle))
	mux.Handle("DELETE /domains/{domainId}/targets/{id}", scoped(targetHandler.Delete))

	mux.Handle("GET /domains/{domainId}/stats", scoped(statsHandler.GetStats))

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker
	dispatcher := worker.NewDispatcher(jobService, targetRepo, taskPub, m, worker.DispatcherConfig{
		Interval:   cfg.DispatchInterval,
		BatchSize:  cfg.DispatchBatchSize,
		StaleAfter: cfg.PublishStaleAfter,
	}, logger)
	resultConsumer := worker.NewResultConsumer(jobService)

	return &App{
		Handler:        mux,
		JobService:     jobService,
		TargetService:  targetService,
		Dispatcher:     dispatcher,
		ResultConsumer: resultConsumer,
		Registry:       reg,
		cfg:            cfg,
		logger:         logger,
	}, nil
}

// StartResultConsumer subscribes the result consumer to the result topic. It connects through
// nsqlookupd when one is configured and straight to nsqd otherwise.
func (a *App) StartResultConsumer() (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(config.TopicPublishResult, config.ChannelBackend, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.ResultConsumer)

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("nsq consumer connect error: %w", err)
	}
	a.logger.Info("NSQ result consumer connected", "topic", config.TopicPublishResult)
	return consumer, nil
}

// Run serves the API and drives the dispatcher until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.EnableDispatcher {
		go a.Dispatcher.Run(ctx)
	}

	if !a.cfg.EnableAPI {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
	}()

	a.logger.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
