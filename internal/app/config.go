package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/navincodesalot/moonshot/internal/data/db"
	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/envutil"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/realtime/bus"
	"github.com/navincodesalot/moonshot/internal/services"
)

type Config struct {
	ServiceName string
	Environment string
	Port        string
	CORSOrigins []string

	StoreDriver     string
	PostgresDSN     string
	SQLitePath      string
	MongoURI        string
	MongoDatabase   string
	StoreTimeout    time.Duration
	StoreMaxConns   int
	AutoMigrate     bool
	ShutdownTimeout time.Duration

	SummarizerProvider string
	VSSBaseURL         string
	VSSModel           string
	VSSChunkDuration   int
	VSSTimeout         time.Duration

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITimeout     time.Duration
	OpenAITemperature *float64

	ReportKind     reports.Kind
	PromptsFile    string
	MaxUploadBytes int64
	RunStaleAfter  time.Duration

	VideoBucketName     string
	ObjectStorageMode   string
	StorageEmulatorHost string
	GCPCredentials      string
	VideoAILanguage     string
	VideoAIMinLabelConf float64
	VideoAITimeout      time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string
}

func LoadConfig(log *logger.Logger) (Config, error) {
	kind, err := reports.ParseKind(envutil.String("REPORT_SCHEMA", string(reports.KindActivity), log))
	if err != nil {
		return Config{}, err
	}

	driver := strings.ToLower(envutil.String("STORE_DRIVER", db.DriverPostgres, log))
	cfg := Config{
		ServiceName: envutil.String("SERVICE_NAME", "moonshot", log),
		Environment: envutil.String("APP_ENV", "development", log),
		Port:        envutil.String("PORT", "8080", log),
		CORSOrigins: envutil.List("CORS_ALLOWED_ORIGINS", nil, log),

		StoreDriver:     driver,
		SQLitePath:      envutil.String("SQLITE_PATH", "moonshot.db", log),
		MongoURI:        envutil.String("MONGODB_URI", "", log),
		MongoDatabase:   envutil.String("MONGODB_DATABASE", "moonDB", log),
		StoreTimeout:    envutil.Duration("STORE_CONNECT_TIMEOUT", 10*time.Second, log),
		StoreMaxConns:   envutil.Int("STORE_MAX_OPEN_CONNS", 20, log),
		AutoMigrate:     envutil.Bool("STORE_AUTO_MIGRATE", true, log),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 30*time.Second, log),

		SummarizerProvider: strings.ToLower(envutil.String("SUMMARIZER_PROVIDER", services.ProviderVSS, log)),
		VSSBaseURL:         envutil.String("VSS_BASE_URL", envutil.String("BACKEND_BASE_URL", "", log), log),
		VSSModel:           envutil.String("VSS_MODEL", "", log),
		VSSChunkDuration:   envutil.Int("VSS_CHUNK_DURATION", 0, log),
		VSSTimeout:         envutil.Duration("VSS_TIMEOUT_SECONDS", 15*time.Minute, log),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: envutil.String("OPENAI_BASE_URL", "", log),
		OpenAIModel:   envutil.String("OPENAI_MODEL", "", log),
		OpenAITimeout: envutil.Duration("OPENAI_TIMEOUT_SECONDS", 10*time.Minute, log),

		ReportKind:     kind,
		PromptsFile:    envutil.String("PROMPTS_FILE", "", log),
		MaxUploadBytes: envutil.Int64("MAX_UPLOAD_BYTES", services.DefaultMaxUploadBytes, log),
		RunStaleAfter:  envutil.Duration("RUN_STALE_AFTER", services.DefaultRunStaleAfter, log),

		VideoBucketName:     envutil.String("VIDEO_GCS_BUCKET_NAME", "", log),
		ObjectStorageMode:   envutil.String("OBJECT_STORAGE_MODE", "", log),
		StorageEmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", "", log),
		GCPCredentials:      gcpCredentials(),
		VideoAILanguage:     envutil.String("VIDEO_AI_LANGUAGE", "en-US", log),
		VideoAIMinLabelConf: envutil.Float("VIDEO_AI_MIN_LABEL_CONFIDENCE", 0.5, log),
		VideoAITimeout:      envutil.Duration("VIDEO_AI_TIMEOUT", 30*time.Minute, log),

		RedisAddr:     envutil.String("REDIS_ADDR", "", log),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envutil.Int("REDIS_DB", 0, log),
		RedisChannel:  envutil.String("REDIS_CHANNEL", bus.DefaultChannel, log),
	}
	if driver == db.DriverPostgres {
		cfg.PostgresDSN = db.PostgresDSNFromEnv(log)
	}
	if _, ok := os.LookupEnv("OPENAI_TEMPERATURE"); ok {
		t := envutil.Float("OPENAI_TEMPERATURE", 0, log)
		cfg.OpenAITemperature = &t
	}
	return cfg, nil
}

// gcpCredentials prefers inline JSON over a credentials file path.
func gcpCredentials() string {
	if v := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case db.DriverPostgres, db.DriverSQLite:
	case db.DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required when STORE_DRIVER=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q (postgres, sqlite, mongo)", c.StoreDriver))
	}

	switch c.SummarizerProvider {
	case services.ProviderVSS:
		if c.VSSBaseURL == "" {
			errs = append(errs, errors.New("VSS_BASE_URL (or BACKEND_BASE_URL) is required when SUMMARIZER_PROVIDER=vss"))
		}
	case services.ProviderGCP:
		if c.VideoBucketName == "" {
			errs = append(errs, errors.New("VIDEO_GCS_BUCKET_NAME is required when SUMMARIZER_PROVIDER=gcp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported SUMMARIZER_PROVIDER %q (vss, gcp)", c.SummarizerProvider))
	}

	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.OpenAIModel == "" {
		errs = append(errs, errors.New("OPENAI_MODEL is required"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.RunStaleAfter < 0 {
		errs = append(errs, errors.New("RUN_STALE_AFTER must not be negative"))
	}
	return errors.Join(errs...)
}
