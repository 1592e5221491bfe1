package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	docfeature "askmydoc/features/document"
	"askmydoc/features/ingest"
	"askmydoc/features/job"
	"askmydoc/features/mcp"
	"askmydoc/features/stats"
	"askmydoc/internal/artifact"
	"askmydoc/internal/config"
	"askmydoc/internal/extract"
	"askmydoc/internal/middleware"
	"askmydoc/internal/pipeline"
	"askmydoc/internal/render"
	"askmydoc/internal/retrieval"
	"askmydoc/internal/source"
	"askmydoc/internal/worker"

	"github.com/nsqio/go-nsq"
)

const retryChannel = "askmydoc"

type App struct {
	Handler      http.Handler
	Ingest       *pipeline.Service
	Retrieval    *retrieval.Service
	Jobs         *job.Service
	StepConsumer *worker.StepConsumer

	cfg *config.Config
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	if deps == nil || deps.Documents == nil || deps.Jobs == nil || deps.VectorStore == nil || deps.Objects == nil {
		return nil, errors.New("app: documents, jobs, vector store and object store are required")
	}

	// A nil producer disables event publishing and step retries.
	var pub pipeline.Publisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	}

	// Feature: Job
	jobService := job.NewService(deps.Jobs, pub)
	jobHandler := job.NewHandler(jobService)

	// Ingestion pipeline
	var renderer source.PageRenderer
	if deps.Launcher != nil {
		renderer = render.NewRenderer(deps.Launcher, cfg.RenderTimeout)
	}
	var fetchClient *http.Client
	if cfg.FetchTimeout > 0 {
		fetchClient = &http.Client{Timeout: cfg.FetchTimeout}
	}
	resolver := source.NewResolver(deps.Objects, fetchClient, renderer, cfg.MaxUploadSizeMB<<20)
	artifacts := artifact.NewService(deps.Embedder, deps.Generator, cfg.VectorDimensions, cfg.SummaryMaxChars, cfg.ModelTimeout)

	ingestService := pipeline.NewService(pipeline.Deps{
		Resolver:  resolver,
		Extractor: extract.New(),
		Artifacts: artifacts,
		Objects:   deps.Objects,
		Documents: deps.Documents,
		Index:     deps.VectorStore,
		Publisher: pub,
		Failures:  jobService,
	})
	ingestHandler := ingest.NewHandler(ingestService, deps.Objects, cfg.MaxUploadSizeMB)

	// Feature: Retrieval
	queryLogger := retrieval.NewQueryLogger(os.Stdout)
	if cfg.QueryLogPath != "" {
		fileLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
		if err != nil {
			slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		} else {
			queryLogger = fileLogger
		}
	}
	retrievalService := retrieval.NewService(deps.Documents, deps.Embedder, deps.VectorStore, deps.Generator, queryLogger, cfg.ModelTimeout)
	documentHandler := docfeature.NewHandler(deps.Documents, deps.VectorStore, retrievalService)

	// Feature: MCP
	mcpHandler := mcp.NewHandler(deps.Documents, retrievalService)

	// Feature: Stats
	statsHandler := stats.NewHandler(deps.Documents, deps.VectorStore, jobService)

	// Worker (Step Consumer)
	stepConsumer := worker.NewStepConsumer(ingestService.Executor(), jobService, worker.DefaultMaxAttempts, cfg.ModelTimeout)

	// Routes
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.CorrelationID(middleware.CORS(h)))
	}

	route("POST /ingest", ingestHandler.Ingest)
	route("POST /upload", ingestHandler.Upload)

	route("GET /documents", documentHandler.List)
	route("GET /documents/{id}", documentHandler.Get)
	route("GET /documents/{id}/embedding", documentHandler.Embedding)
	route("POST /documents/{id}/ask", documentHandler.Ask)
	route("POST /documents/{id}/search", documentHandler.Search)

	route("GET /jobs/failed", jobHandler.List)
	route("POST /jobs/{id}/retry", jobHandler.Retry)

	route("GET /stats", statsHandler.GetStats)

	mux.Handle("POST /mcp", middleware.CorrelationID(mcpHandler))
	route("GET /mcp/sse", mcpHandler.HandleSSE)
	route("POST /mcp/messages", mcpHandler.HandleMessage)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:      middleware.Recover(mux),
		Ingest:       ingestService,
		Retrieval:    retrievalService,
		Jobs:         jobService,
		StepConsumer: stepConsumer,
		cfg:          cfg,
	}, nil
}

// startConsumer subscribes the step consumer to the retry topic. The returned consumer is nil
// when the worker is disabled.
func (a *App) startConsumer() (*nsq.Consumer, error) {
	if !a.cfg.EnableWorker || a.cfg.NSQLookupd == "" {
		return nil, nil
	}

	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxAttempts = worker.DefaultMaxAttempts
	consumer, err := nsq.NewConsumer(config.TopicStepRetry, retryChannel, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.StepConsumer)
	if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("connect to nsqlookupd: %w", err)
	}
	slog.Info("step retry consumer connected", "topic", config.TopicStepRetry)
	return consumer, nil
}

func (a *App) Run(ctx context.Context) error {
	consumer, err := a.startConsumer()
	if err != nil {
		slog.Error("failed to start step retry consumer", "error", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
		if consumer != nil {
			consumer.Stop()
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
