package app

import (
	"context"
	"fmt"

	"github.com/navincodesalot/moonshot/internal/platform/gcp"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/platform/openai"
	"github.com/navincodesalot/moonshot/internal/platform/promptconfig"
	"github.com/navincodesalot/moonshot/internal/platform/vss"
	"github.com/navincodesalot/moonshot/internal/realtime/bus"
	"github.com/navincodesalot/moonshot/internal/services"
)

// Clients are the external systems the pipeline talks to. Optional ones stay nil.
type Clients struct {
	VSS       vss.Client
	OpenAI    openai.Client
	Bucket    gcp.VideoBucket
	Annotator gcp.VideoAnnotator
	Events    bus.Bus
	Prompts   *promptconfig.Prompts
}

func (c Clients) Close(log *logger.Logger) {
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			log.Warn("Event bus close failed", "error", err)
		}
	}
	if c.Annotator != nil {
		if err := c.Annotator.Close(); err != nil {
			log.Warn("Video annotator close failed", "error", err)
		}
	}
	if c.Bucket != nil {
		if err := c.Bucket.Close(); err != nil {
			log.Warn("Video bucket close failed", "error", err)
		}
	}
}

type BootstrapErrorCode string

const (
	BootstrapInvalidConfig BootstrapErrorCode = "invalid_config"
	BootstrapConnectFailed BootstrapErrorCode = "connect_failed"
)

// BootstrapError names the client that could not be built.
type BootstrapError struct {
	Client string
	Code   BootstrapErrorCode
	Cause  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("init %s (code=%s): %v", e.Client, e.Code, e.Cause)
}

func (e *BootstrapError) Unwrap() error { return e.Cause }

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (out Clients, err error) {
	log.Info("Wiring clients...", "summarizer_provider", cfg.SummarizerProvider)
	defer func() {
		if err != nil {
			out.Close(log)
		}
	}()

	// Prompts
	out.Prompts, err = promptconfig.Load(cfg.PromptsFile, log)
	if err != nil {
		return out, &BootstrapError{Client: "prompts", Code: BootstrapInvalidConfig, Cause: err}
	}

	// Openai
	out.OpenAI, err = openai.NewClient(log, openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Timeout:     cfg.OpenAITimeout,
		Temperature: cfg.OpenAITemperature,
	})
	if err != nil {
		return out, &BootstrapError{Client: "openai", Code: BootstrapInvalidConfig, Cause: err}
	}

	// Vss
	if cfg.SummarizerProvider == services.ProviderVSS {
		out.VSS, err = vss.NewClient(log, vss.Config{
			BaseURL:       cfg.VSSBaseURL,
			Model:         cfg.VSSModel,
			ChunkDuration: cfg.VSSChunkDuration,
			Timeout:       cfg.VSSTimeout,
		})
		if err != nil {
			return out, &BootstrapError{Client: "vss", Code: BootstrapInvalidConfig, Cause: err}
		}
	}

	// Gcs
	if cfg.VideoBucketName != "" {
		storageCfg, serr := gcp.ResolveObjectStorageConfig(cfg.ObjectStorageMode, cfg.StorageEmulatorHost)
		if serr != nil {
			return out, &BootstrapError{Client: "video bucket", Code: BootstrapInvalidConfig, Cause: serr}
		}
		out.Bucket, err = gcp.NewVideoBucket(ctx, log, gcp.BucketConfig{
			Name:        cfg.VideoBucketName,
			Storage:     storageCfg,
			Credentials: cfg.GCPCredentials,
		})
		if err != nil {
			return out, &BootstrapError{Client: "video bucket", Code: BootstrapConnectFailed, Cause: err}
		}
	} else {
		log.Info("VIDEO_GCS_BUCKET_NAME not set; uploaded videos will not be archived")
	}

	// Video intelligence
	if cfg.SummarizerProvider == services.ProviderGCP {
		out.Annotator, err = gcp.NewVideoAnnotator(ctx, log, cfg.GCPCredentials)
		if err != nil {
			return out, &BootstrapError{Client: "video intelligence", Code: BootstrapConnectFailed, Cause: err}
		}
	}

	// Redis
	out.Events = bus.Nop()
	if cfg.RedisAddr != "" {
		out.Events, err = bus.NewRedisBus(ctx, log, bus.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			return out, &BootstrapError{Client: "redis", Code: BootstrapConnectFailed, Cause: err}
		}
	}
	return out, nil
}
