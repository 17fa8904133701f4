package main

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docscan/internal/async"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/detect"
	"github.com/joseph-ayodele/docscan/internal/dispatch"
	"github.com/joseph-ayodele/docscan/internal/export"
	"github.com/joseph-ayodele/docscan/internal/extract"
	"github.com/joseph-ayodele/docscan/internal/imaging"
	"github.com/joseph-ayodele/docscan/internal/ingest"
	"github.com/joseph-ayodele/docscan/internal/lifecycle"
	"github.com/joseph-ayodele/docscan/internal/metrics"
	"github.com/joseph-ayodele/docscan/internal/ocr"
	"github.com/joseph-ayodele/docscan/internal/pipeline"
	"github.com/joseph-ayodele/docscan/internal/runner"
	"github.com/joseph-ayodele/docscan/internal/server"
	"github.com/joseph-ayodele/docscan/internal/storage"

	repo "github.com/joseph-ayodele/docscan/internal/repository"
)

const inboxDebounce = 500 * time.Millisecond

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("docscand stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close(logger)
	if err := db.HealthCheck(ctx, 5*time.Second, logger); err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	docs := repo.NewDocumentRepository(db, logger)

	store, closeStore, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close storage", "error", err)
		}
	}()

	exec := runner.New(logger)
	cache := detect.NewModelCache(detect.FileLoader{
		Dir:     cfg.Models.Dir,
		Weights: cfg.Models.Weights,
		Command: cfg.Models.DetectorCmd,
		Runner:  exec,
		Logger:  logger,
	}, logger)
	detector := detect.NewDetector(cache, detect.Registry{
		Identity: cfg.Models.Identity,
		Invoice:  cfg.Models.Invoice,
		Fallback: cfg.Models.Fallback,
	}, logger)
	recognizer := ocr.NewRecognizer(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.Lang,
		OEM:         cfg.OCR.OEM,
		TessdataDir: cfg.OCR.TessdataDir,
	}, exec, logger)
	orchestrator := extract.NewOrchestrator(detector, recognizer, logger)

	manager := lifecycle.NewManager(docs, logger)
	processor := pipeline.NewProcessor(manager, store, imaging.NewNormalizer(logger), orchestrator, logger)
	metrics.PublishModelLoads(cache.Loads)

	g, gctx := errgroup.WithContext(ctx)

	var broker async.Broker
	switch cfg.Queue.Backend {
	case "redis":
		client, err := async.NewRedisClient(cfg.Queue.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		rb := async.NewRedisBroker(client, cfg.Queue.Name, logger)
		broker = rb
		metrics.PublishQueueLength(rb.Len)
		worker := async.NewRedisWorker(client, cfg.Queue.Name, processor, logger,
			async.WithConsumers(cfg.Queue.Workers),
			async.WithJobTimeout(cfg.Queue.JobTimeout),
		)
		g.Go(func() error { return worker.Run(gctx) })
	case "memory":
		q := async.NewProcessorQueue(processor, logger,
			async.WithWorkers(cfg.Queue.Workers),
			async.WithQueueSize(512),
			async.WithProcessTimeout(cfg.Queue.JobTimeout),
		)
		broker = q
		metrics.PublishQueueLength(func(context.Context) (int64, error) { return int64(q.Len()), nil })
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			q.Shutdown(sctx)
			return nil
		})
	default:
		logger.Info("queue disabled, documents are processed inline")
	}

	dispatcher := dispatch.New(broker, processor, docs, cfg.Queue.ProbeTimeout, logger)

	if cfg.Inbox.Dir != "" {
		ingestor := ingest.NewIngestor(store, docs, dispatcher, logger)
		g.Go(func() error { return ingestor.Watch(gctx, cfg.Inbox.Dir, cfg.Inbox.OwnerID, inboxDebounce) })
	}

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/debug/vars", expvar.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := db.HealthCheck(r.Context(), time.Second, logger); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		hs := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	svc := server.NewDocumentService(manager, dispatcher, export.NewService(docs, logger), logger)
	grpcServer, health := server.NewGRPCServer(svc, logger)
	g.Go(func() error {
		logger.Info("docscand listening", "addr", cfg.Server.GRPCAddr, "queue", cfg.Queue.Backend)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		health.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("docscand stopped")
	return nil
}
