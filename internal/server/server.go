// Package server assembles the harvester's services from configuration
// and runs the HTTP API with the worker pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/api"
	"github.com/tastewell/harvester/internal/clock/system"
	"github.com/tastewell/harvester/internal/config"
	"github.com/tastewell/harvester/internal/dispatcher"
	"github.com/tastewell/harvester/internal/fetch"
	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/hash/sha256"
	uuidgen "github.com/tastewell/harvester/internal/id/uuid"
	"github.com/tastewell/harvester/internal/ingest"
	"github.com/tastewell/harvester/internal/job"
	"github.com/tastewell/harvester/internal/policy/ratelimit"
	memorypublisher "github.com/tastewell/harvester/internal/publisher/memory"
	gcppublisher "github.com/tastewell/harvester/internal/publisher/pubsub"
	queuememory "github.com/tastewell/harvester/internal/queue/memory"
	"github.com/tastewell/harvester/internal/storage/gcs"
	"github.com/tastewell/harvester/internal/storage/local"
	"github.com/tastewell/harvester/internal/storage/memory"
	"github.com/tastewell/harvester/internal/storage/postgres"
	"github.com/tastewell/harvester/internal/telemetry"
	"github.com/tastewell/harvester/internal/worker"
)

const shutdownGrace = 15 * time.Second

// Services holds the assembled application.
type Services struct {
	Config     config.Config
	Logger     *zap.Logger
	API        *api.Server
	Dispatcher *dispatcher.Dispatcher
	Sweeper    *job.Sweeper
	Jobs       harvest.JobStore
	Policies   harvest.PolicyStore
	Runner     *job.Runner

	closers []func()
}

// Close releases held clients and connection pools.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Build wires every service from the configuration. Fail fast: any
// backend that cannot be reached surfaces here, not on the first request.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Services, error) {
	svc := &Services{Config: cfg, Logger: logger}

	var jobs harvest.JobStore
	var policies harvest.PolicyStore
	if cfg.DB.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		svc.closers = append(svc.closers, pool.Close)
		jobs, err = postgres.NewJobStore(pool)
		if err != nil {
			return nil, fmt.Errorf("init job store: %w", err)
		}
		policies, err = postgres.NewPolicyStore(pool)
		if err != nil {
			return nil, fmt.Errorf("init policy store: %w", err)
		}
		logger.Info("using postgres job and policy stores")
	} else {
		jobs = memory.NewJobStore()
		policies = memory.NewPolicyStore()
		logger.Info("using in-memory job and policy stores")
	}
	recipes := memory.NewRecipeStore()

	blobs, err := buildBlobStore(ctx, cfg, svc)
	if err != nil {
		return nil, err
	}

	var events harvest.Publisher
	if cfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		svc.closers = append(svc.closers, func() { _ = client.Close() })
		events, err = gcppublisher.New(client)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		logger.Info("publishing harvest events to pubsub",
			zap.String("project", cfg.PubSub.ProjectID))
	} else {
		events = memorypublisher.New()
	}

	clk := system.New()
	ids := uuidgen.New()
	fetcher := ratelimit.NewFetcher(
		fetch.New(fetch.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.Fetch.Timeout(),
		}),
		ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Crawl.RequestsPerSecond}),
	)
	ingester := ingest.NewService(recipes, ids, clk, logger)
	runner := job.NewRunner(job.Deps{
		Jobs:     jobs,
		Policies: policies,
		Ingester: ingester,
		Fetcher:  fetcher,
		Blobs:    blobs,
		Events:   events,
		Hasher:   sha256.New(),
		Clock:    clk,
	}, cfg.Harvest, logger)

	queue := queuememory.NewQueue(cfg.Workers.QueueCapacity)
	workers := make([]*worker.Worker, 0, cfg.Workers.Count)
	for i := 0; i < cfg.Workers.Count; i++ {
		workers = append(workers, worker.New(queue, runner, logger))
	}
	disp := dispatcher.New(queue, workers)
	sweeper := job.NewSweeper(jobs, disp, clk, logger,
		cfg.Workers.SweepInterval, cfg.Workers.SweepBatch)

	agg := telemetry.New(jobs, policies, clk, logger)

	svc.Jobs = jobs
	svc.Policies = policies
	svc.Runner = runner
	svc.Dispatcher = disp
	svc.Sweeper = sweeper
	svc.API = api.NewServer(api.Deps{
		Jobs:       jobs,
		Policies:   policies,
		Recipes:    recipes,
		Runner:     runner,
		Dispatcher: disp,
		Fetcher:    fetcher,
		Telemetry:  agg,
		IDGen:      ids,
		Clock:      clk,
	}, cfg, logger)
	return svc, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, svc *Services) (harvest.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "memory", "":
		return memory.NewBlobStore(), nil
	case "local":
		blobs, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return blobs, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect gcs: %w", err)
		}
		svc.closers = append(svc.closers, func() { _ = client.Close() })
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return blobs, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// Run serves the API and runs the worker pool until the process receives
// SIGINT or SIGTERM, then drains both.
func (s *Services) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Config.Server.Port),
		Handler:           s.API.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		s.Dispatcher.Run(ctx)
	}()
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		s.Sweeper.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		<-workersDone
		<-sweepDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	<-workersDone
	<-sweepDone
	return nil
}
