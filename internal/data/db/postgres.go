package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/navincodesalot/moonshot/internal/platform/envutil"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

type Config struct {
	Driver         string
	PostgresDSN    string
	SQLitePath     string
	ConnectTimeout time.Duration
	MaxOpenConns   int
	AutoMigrate    bool
}

// PostgresDSNFromEnv prefers DATABASE_URL and falls back to the POSTGRES_* variables.
func PostgresDSNFromEnv(log *logger.Logger) string {
	if dsn := envutil.String("DATABASE_URL", "", log); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		envutil.String("POSTGRES_USER", "postgres", log),
		os.Getenv("POSTGRES_PASSWORD"),
		envutil.String("POSTGRES_HOST", "localhost", log),
		envutil.String("POSTGRES_PORT", "5432", log),
		envutil.String("POSTGRES_NAME", "moonshot", log),
		envutil.String("POSTGRES_SSLMODE", "disable", log),
	)
}

// Provider hands out the shared gorm handle, connecting on first use.
type Provider struct {
	log  *logger.Logger
	cfg  Config
	conn *lazyConn[*gorm.DB]
}

func NewProvider(log *logger.Logger, cfg Config) *Provider {
	p := &Provider{
		log: log.With("service", "DBProvider", "driver", cfg.Driver),
		cfg: cfg,
	}
	p.conn = &lazyConn[*gorm.DB]{
		open:    p.open,
		close:   closeGorm,
		timeout: cfg.ConnectTimeout,
	}
	return p
}

// NewProviderFromDB wraps an already open handle; used by tests and tooling.
func NewProviderFromDB(log *logger.Logger, db *gorm.DB) *Provider {
	p := &Provider{log: log.With("service", "DBProvider")}
	p.conn = &lazyConn[*gorm.DB]{
		open:  func(context.Context) (*gorm.DB, error) { return db, nil },
		close: closeGorm,
	}
	return p
}

// DB returns the shared handle. Connection failures are classified as
// reports.ErrStoreUnavailable and retried on the next call.
func (p *Provider) DB(ctx context.Context) (*gorm.DB, error) {
	db, err := p.conn.get(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	return db, nil
}

func (p *Provider) Close() error {
	return p.conn.shutdown()
}

func (p *Provider) open(ctx context.Context) (*gorm.DB, error) {
	start := time.Now()
	var dialector gorm.Dialector
	switch p.cfg.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(p.cfg.PostgresDSN)
	case DriverSQLite:
		dialector = sqlite.Open(p.cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", p.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(),
	})
	if err != nil {
		p.log.Error("Store connection failed", "error", err)
		return nil, fmt.Errorf("open %s: %w", p.cfg.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if p.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(p.cfg.MaxOpenConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", p.cfg.Driver, err)
	}
	if p.cfg.AutoMigrate {
		if err := AutoMigrateAll(db.WithContext(ctx)); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	p.log.Info("Store connected", "duration_ms", time.Since(start).Milliseconds())
	return db, nil
}

func newGormLogger() gormLogger.Interface {
	return gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

func closeGorm(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
