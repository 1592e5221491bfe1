package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	ObjectStoreGCS   = "gcs"
	ObjectStoreLocal = "local"

	GeneratorGemini = "gemini"
	GeneratorVertex = "vertex"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"askmydoc"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"askmydoc"`

	// Document store backend: postgres or sqlite
	DocumentStore string `envconfig:"DOCUMENT_STORE" default:"postgres"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/askmydoc.db"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	WeaviateHost     string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme   string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	VectorClass      string `envconfig:"VECTOR_CLASS" default:"Document"`
	VectorDimensions int    `envconfig:"VECTOR_DIMENSIONS" default:"3072"`

	ObjectStore    string `envconfig:"OBJECT_STORE" default:"local"`
	GCSBucket      string `envconfig:"GCS_BUCKET"`
	LocalObjectDir string `envconfig:"LOCAL_OBJECT_DIR" default:"./objects"`

	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	GeneratorProvider string `envconfig:"GENERATOR_PROVIDER" default:"gemini"`
	GenerativeModel   string `envconfig:"GENERATIVE_MODEL" default:"gemini-2.0-flash"`
	VertexProject     string `envconfig:"VERTEX_PROJECT"`
	VertexRegion      string `envconfig:"VERTEX_REGION" default:"us-central1"`
	SummaryMaxChars   int    `envconfig:"SUMMARY_MAX_CHARS" default:"12000"`

	// Rendering. ChromeWSURL points at a remote DevTools endpoint; when empty a local browser is launched.
	ChromeWSURL   string        `envconfig:"CHROME_WS_URL"`
	ChromePath    string        `envconfig:"CHROME_PATH"`
	RenderTimeout time.Duration `envconfig:"RENDER_TIMEOUT" default:"30s"`
	FetchTimeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"20s"`
	ModelTimeout  time.Duration `envconfig:"MODEL_TIMEOUT" default:"60s"`

	NSQLookupd   string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost     string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP     string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableWorker bool   `envconfig:"ENABLE_STEP_WORKER" default:"true"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win; .env files are optional
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DocumentStore {
	case StorePostgres:
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: DOCUMENT_STORE=%q", ErrInvalidValue, c.DocumentStore)
	}

	switch c.ObjectStore {
	case ObjectStoreGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("%w: GCS_BUCKET", ErrMissingRequired)
		}
	case ObjectStoreLocal:
		if c.LocalObjectDir == "" {
			return fmt.Errorf("%w: LOCAL_OBJECT_DIR", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: OBJECT_STORE=%q", ErrInvalidValue, c.ObjectStore)
	}

	switch c.GeneratorProvider {
	case GeneratorGemini:
	case GeneratorVertex:
		if c.VertexProject == "" {
			return fmt.Errorf("%w: VERTEX_PROJECT", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: GENERATOR_PROVIDER=%q", ErrInvalidValue, c.GeneratorProvider)
	}

	if c.VectorDimensions <= 0 {
		return fmt.Errorf("%w: VECTOR_DIMENSIONS must be positive", ErrInvalidValue)
	}
	if c.SummaryMaxChars <= 0 {
		return fmt.Errorf("%w: SUMMARY_MAX_CHARS must be positive", ErrInvalidValue)
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
