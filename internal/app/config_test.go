package app

import (
	"strings"
	"testing"
	"time"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("VSS_BASE_URL", "vss.internal:8100")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Port != "8080" || cfg.SummarizerProvider != "vss" || cfg.ReportKind != reports.KindActivity {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.MongoDatabase != "moonDB" || cfg.RunStaleAfter != 30*time.Minute {
		t.Fatalf("defaults: mongo=%q stale=%s", cfg.MongoDatabase, cfg.RunStaleAfter)
	}
	if cfg.OpenAITemperature != nil {
		t.Fatalf("temperature should be unset")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("VSS_BASE_URL", "")
	t.Setenv("BACKEND_BASE_URL", "legacy-vss:8100")
	t.Setenv("REPORT_SCHEMA", "worker-centric")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")
	t.Setenv("VSS_TIMEOUT_SECONDS", "90")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.VSSBaseURL != "legacy-vss:8100" {
		t.Fatalf("BACKEND_BASE_URL fallback: got=%q", cfg.VSSBaseURL)
	}
	if cfg.ReportKind != reports.KindWorkerCentric {
		t.Fatalf("report kind: got=%q", cfg.ReportKind)
	}
	if cfg.OpenAITemperature == nil || *cfg.OpenAITemperature != 0.2 {
		t.Fatalf("temperature: got=%v", cfg.OpenAITemperature)
	}
	if cfg.VSSTimeout != 90*time.Second {
		t.Fatalf("vss timeout: got=%s", cfg.VSSTimeout)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("cors: got=%v", cfg.CORSOrigins)
	}
}

func TestLoadConfigRejectsUnknownSchema(t *testing.T) {
	setRequired(t)
	t.Setenv("REPORT_SCHEMA", "freeform")
	if _, err := LoadConfig(logger.Nop()); err == nil {
		t.Fatalf("expected error for unknown schema")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Config{
		StoreDriver:        "mongo",
		SummarizerProvider: "gcp",
		MaxUploadBytes:     1,
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"MONGODB_URI", "VIDEO_GCS_BUCKET_NAME", "OPENAI_API_KEY", "OPENAI_MODEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error should mention %s: %v", want, err)
		}
	}

	cfg = Config{StoreDriver: "oracle", SummarizerProvider: "azure", OpenAIAPIKey: "k", OpenAIModel: "m", MaxUploadBytes: 1}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "STORE_DRIVER") || !strings.Contains(err.Error(), "SUMMARIZER_PROVIDER") {
		t.Fatalf("unsupported driver/provider: %v", err)
	}
}

func TestWireServicesWithGCPProvider(t *testing.T) {
	setRequired(t)
	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.SummarizerProvider = "gcp"
	cfg.SQLitePath = "file::memory:?cache=shared"
	store := wireStore(logger.Nop(), cfg)
	defer store.Close()

	svc := wireServices(logger.Nop(), cfg, store, Clients{})
	if svc.Reports == nil || svc.Pipeline == nil {
		t.Fatalf("services not wired: %+v", svc)
	}
	h := wireHandlers(logger.Nop(), cfg, store, svc)
	r := wireRouter(logger.Nop(), cfg, nil, h)
	if len(r.Routes()) != 9 {
		t.Fatalf("routes: want=9 got=%d", len(r.Routes()))
	}
}
