package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	apphttp "github.com/navincodesalot/moonshot/internal/http"
	"github.com/navincodesalot/moonshot/internal/observability"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Router   *gin.Engine
	Store    Store
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	shutdownOTel func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logMode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := observability.Init(log)
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = shutdownOTel(context.Background())
		log.Sync()
		return nil, err
	}
	store := wireStore(log, cfg)
	warmStore(ctx, log, store)

	serviceset := wireServices(log, cfg, store, clients)
	handlerset := wireHandlers(log, cfg, store, serviceset)
	router := wireRouter(log, cfg, metrics, handlerset)

	log.Info("App ready",
		"store_driver", cfg.StoreDriver,
		"summarizer_provider", cfg.SummarizerProvider,
		"report_kind", cfg.ReportKind,
		"video_archive", clients.Bucket != nil,
		"metrics", metrics != nil,
	)
	return &App{
		Log:          log,
		Cfg:          cfg,
		Router:       router,
		Store:        store,
		Clients:      clients,
		Services:     serviceset,
		Metrics:      metrics,
		shutdownOTel: shutdownOTel,
	}, nil
}

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, h Handlers) *gin.Engine {
	log.Info("Wiring router...")
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		ServiceName:    cfg.ServiceName,
		CORSOrigins:    cfg.CORSOrigins,
		ReportHandler:  h.Report,
		UploadHandler:  h.Upload,
		AnalyzeHandler: h.Analyze,
		VideoHandler:   h.Video,
		HealthHandler:  h.Health,
	})
}

// Start launches background consumers. Status events from other replicas are
// logged so one process's log shows every run.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	log := a.Log.With("component", "ReportEvents")
	err := a.Clients.Events.StartForwarder(ctx, func(ev realtime.ReportEvent) {
		log.Debug("Report status event", "report_id", ev.ReportID, "status", ev.Status, "at", ev.At)
	})
	if err != nil {
		a.Log.Warn("Report event forwarder not started", "error", err)
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	srv := apphttp.NewServer(a.Log, apphttp.ServerConfig{
		Addr:            net.JoinHostPort("", a.Cfg.Port),
		ShutdownTimeout: a.Cfg.ShutdownTimeout,
	}, a.Router)
	return srv.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close(a.Log)
	if err := a.Store.Close(); err != nil {
		a.Log.Warn("Report store close failed", "error", err)
	}
	if a.shutdownOTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownOTel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
