package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"askmydoc/features/job"
	"askmydoc/internal/adapter/chrome"
	"askmydoc/internal/adapter/gcs"
	"askmydoc/internal/adapter/gemini"
	"askmydoc/internal/adapter/localfs"
	"askmydoc/internal/adapter/vertex"
	wstore "askmydoc/internal/adapter/weaviate"
	"askmydoc/internal/config"
	"askmydoc/internal/document"
	"askmydoc/internal/vector"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
)

// Dependencies are the external services the app talks to. Bootstrap builds the real ones;
// tests assemble their own.
type Dependencies struct {
	DB          *sql.DB
	Documents   document.Repository
	Jobs        job.Repository
	VectorStore VectorStore
	Objects     ObjectStore
	Embedder    Embedder
	Generator   Generator
	Launcher    Launcher
	NSQProducer *nsq.Producer

	closers []func() error
}

// Close releases every client Bootstrap opened.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("failed to close dependency", "error", err)
		}
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (deps *Dependencies, err error) {
	deps = &Dependencies{}
	defer func() {
		if err != nil {
			deps.Close()
			deps = nil
		}
	}()

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Relational store
	switch cfg.DocumentStore {
	case config.StoreSQLite:
		if err = openSQLite(ctx, cfg, deps); err != nil {
			return deps, err
		}
	default:
		if err = openPostgres(cfg, deps, retryDelay); err != nil {
			return deps, err
		}
	}

	// Weaviate
	wClient, err := vector.NewClient(cfg.WeaviateHost, cfg.WeaviateScheme)
	if err != nil {
		return deps, fmt.Errorf("weaviate client error: %w", err)
	}
	vecStore := wstore.NewStore(wClient, cfg.VectorClass, cfg.VectorDimensions)
	if err = EnsureSchemaWithRetry(ctx, vecStore, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return deps, fmt.Errorf("weaviate schema error: %w", err)
	}
	deps.VectorStore = vecStore

	// Object store
	switch cfg.ObjectStore {
	case config.ObjectStoreGCS:
		store, serr := gcs.NewStore(ctx, cfg.GCSBucket)
		if serr != nil {
			return deps, fmt.Errorf("gcs client error: %w", serr)
		}
		deps.closers = append(deps.closers, store.Close)
		deps.Objects = store
	default:
		store, serr := localfs.NewStore(cfg.LocalObjectDir)
		if serr != nil {
			return deps, fmt.Errorf("local object store error: %w", serr)
		}
		deps.Objects = store
	}

	// Models
	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY is empty, embedding calls will fail")
	}
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return deps, fmt.Errorf("gemini embedder error: %w", err)
	}
	deps.closers = append(deps.closers, embedder.Close)
	deps.Embedder = embedder

	switch cfg.GeneratorProvider {
	case config.GeneratorVertex:
		gen, gerr := vertex.NewGenerator(ctx, cfg.VertexProject, cfg.VertexRegion, cfg.GenerativeModel)
		if gerr != nil {
			return deps, fmt.Errorf("vertex generator error: %w", gerr)
		}
		deps.closers = append(deps.closers, gen.Close)
		deps.Generator = gen
	default:
		gen, gerr := gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerativeModel)
		if gerr != nil {
			return deps, fmt.Errorf("gemini generator error: %w", gerr)
		}
		deps.closers = append(deps.closers, gen.Close)
		deps.Generator = gen
	}

	deps.Launcher = chrome.NewLauncher(cfg.ChromeWSURL, cfg.ChromePath)

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return deps, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer

	createTopics(cfg.NSQDHTTP)

	return deps, nil
}

func openPostgres(cfg *config.Config, deps *Dependencies, retryDelay time.Duration) error {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	deps.DB = db
	deps.closers = append(deps.closers, db.Close)

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied")

	deps.Documents = document.NewPostgresRepo(db)
	deps.Jobs = job.NewPostgresRepo(db)
	return nil
}

func openSQLite(ctx context.Context, cfg *config.Config, deps *Dependencies) error {
	db, err := document.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}
	deps.DB = db
	deps.closers = append(deps.closers, db.Close)

	docs, err := document.NewSQLiteRepo(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite documents schema: %w", err)
	}
	jobs, err := job.NewSQLiteRepo(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite failed_jobs schema: %w", err)
	}
	deps.Documents = docs
	deps.Jobs = jobs
	slog.Info("using embedded sqlite store", "path", cfg.SQLitePath)
	return nil
}

func createTopics(nsqdHTTP string) {
	if nsqdHTTP == "" {
		return
	}
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicDocumentIngested)
		create(config.TopicStepRetry)
	}()
}

// EnsureSchemaWithRetry delegates schema check to a helper with retry logic.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
