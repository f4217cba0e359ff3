package app

import (
	"context"

	"github.com/navincodesalot/moonshot/internal/data/db"
	repos "github.com/navincodesalot/moonshot/internal/data/repos/reports"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

type Store struct {
	Reports repos.ReportRepo
	close   func() error
}

func (s Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// wireStore picks the report repository for STORE_DRIVER. Nothing dials until
// the first query, so a down database does not block startup.
func wireStore(log *logger.Logger, cfg Config) Store {
	log.Info("Wiring report store...", "driver", cfg.StoreDriver)
	if cfg.StoreDriver == db.DriverMongo {
		p := db.NewMongoProvider(log, db.MongoConfig{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			ConnectTimeout: cfg.StoreTimeout,
		})
		return Store{Reports: repos.NewMongoReportRepo(p, log), close: p.Close}
	}

	dbCfg := db.Config{
		Driver:         cfg.StoreDriver,
		PostgresDSN:    cfg.PostgresDSN,
		SQLitePath:     cfg.SQLitePath,
		ConnectTimeout: cfg.StoreTimeout,
		MaxOpenConns:   cfg.StoreMaxConns,
		AutoMigrate:    cfg.AutoMigrate,
	}
	if cfg.StoreDriver == db.DriverSQLite {
		dbCfg.MaxOpenConns = 1
	}
	p := db.NewProvider(log, dbCfg)
	return Store{Reports: repos.NewReportRepo(p, log), close: p.Close}
}

// warmStore dials once at boot so misconfiguration shows up in the startup log.
func warmStore(ctx context.Context, log *logger.Logger, s Store) {
	if err := s.Reports.Ping(ctx); err != nil {
		log.Warn("Report store not reachable yet; requests will retry", "error", err)
	}
}
