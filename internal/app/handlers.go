package app

import (
	httpH "github.com/navincodesalot/moonshot/internal/http/handlers"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

type Handlers struct {
	Report  *httpH.ReportHandler
	Upload  *httpH.UploadHandler
	Analyze *httpH.AnalyzeHandler
	Video   *httpH.VideoHandler
	Health  *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, cfg Config, store Store, svc Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Report:  httpH.NewReportHandler(log, svc.Reports),
		Upload:  httpH.NewUploadHandler(log, svc.Reports, cfg.MaxUploadBytes),
		Analyze: httpH.NewAnalyzeHandler(log, svc.Pipeline),
		Video:   httpH.NewVideoHandler(log, svc.Reports),
		Health:  httpH.NewHealthHandler(log, store.Reports),
	}
}
