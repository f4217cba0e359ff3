package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/navincodesalot/moonshot/internal/http/handlers"
	httpMW "github.com/navincodesalot/moonshot/internal/http/middleware"
	"github.com/navincodesalot/moonshot/internal/observability"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	ReportHandler  *httpH.ReportHandler
	UploadHandler  *httpH.UploadHandler
	AnalyzeHandler *httpH.AnalyzeHandler
	VideoHandler   *httpH.VideoHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.UploadHandler != nil {
			api.POST("/upload", cfg.UploadHandler.Upload)
		}
		if cfg.AnalyzeHandler != nil {
			api.POST("/analyze", cfg.AnalyzeHandler.Analyze)
		}

		// Reports
		if cfg.ReportHandler != nil {
			api.GET("/reports", cfg.ReportHandler.ListReports)
			api.GET("/reports/:id", cfg.ReportHandler.GetReport)
			api.PATCH("/reports/:id", cfg.ReportHandler.PatchReport)
			api.DELETE("/reports/:id", cfg.ReportHandler.DeleteReport)
			api.GET("/reports/:id/source", cfg.ReportHandler.GetSource)
		}
		if cfg.VideoHandler != nil {
			api.GET("/reports/:id/video", cfg.VideoHandler.StreamVideo)
		}
	}

	return r
}
