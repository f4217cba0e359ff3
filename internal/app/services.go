package app

import (
	"github.com/navincodesalot/moonshot/internal/platform/gcp"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/services"
)

type Services struct {
	Reports  services.ReportService
	Pipeline services.PipelineService
}

func wireServices(log *logger.Logger, cfg Config, store Store, clients Clients) Services {
	log.Info("Wiring services...")

	var (
		intake     services.MediaIntake
		summarizer services.Summarizer
	)
	switch cfg.SummarizerProvider {
	case services.ProviderGCP:
		intake = services.NewGCSMediaIntake(log, clients.Bucket)
		summarizer = services.NewVideoAISummarizer(log, clients.Annotator, gcp.VideoAIConfig{
			LanguageCode:       cfg.VideoAILanguage,
			MinLabelConfidence: float32(cfg.VideoAIMinLabelConf),
			Timeout:            cfg.VideoAITimeout,
		})
	default:
		intake = services.NewVSSMediaIntake(log, clients.VSS)
		summarizer = services.NewVSSSummarizer(log, clients.VSS)
	}

	reportSvc := services.NewReportService(log, store.Reports, intake, clients.Bucket, services.ReportServiceConfig{
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	structurer := services.NewStructurer(log, clients.OpenAI, clients.Prompts, cfg.ReportKind)
	pipeline := services.NewPipelineService(log, store.Reports, summarizer, structurer, clients.Prompts, clients.Events,
		services.PipelineConfig{StaleAfter: cfg.RunStaleAfter},
	)

	return Services{Reports: reportSvc, Pipeline: pipeline}
}
