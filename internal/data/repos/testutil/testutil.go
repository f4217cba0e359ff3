package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/navincodesalot/moonshot/internal/data/db"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens an isolated, migrated database for one test. TEST_POSTGRES_DSN
// selects a real Postgres; otherwise each test gets its own in-memory SQLite.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	var dialector gorm.Dialector
	if dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN")); dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		name := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				return r
			}
			return '_'
		}, tb.Name())
		dialector = sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	if conn.Dialector.Name() == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrateAll(conn); err != nil {
		tb.Fatalf("automigrate: %v", err)
	}
	tb.Cleanup(func() {
		if conn.Dialector.Name() != "sqlite" {
			_ = conn.Exec("DELETE FROM report").Error
		}
		_ = sqlDB.Close()
	})
	return conn
}

// Provider wraps DB in a connection provider the repositories accept.
func Provider(tb testing.TB) (*db.Provider, *gorm.DB) {
	tb.Helper()
	conn := DB(tb)
	return db.NewProviderFromDB(Logger(tb), conn), conn
}
