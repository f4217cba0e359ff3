package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/navincodesalot/moonshot/internal/domain/reports"
)

// SeedReport inserts a report directly, bypassing repository defaults.
func SeedReport(tb testing.TB, ctx context.Context, tx *gorm.DB, mutate func(r *types.Report)) *types.Report {
	tb.Helper()
	now := time.Now().UTC()
	r := &types.Report{
		ID:            uuid.New(),
		Status:        types.StatusUploaded,
		SourceFileRef: "file-" + uuid.NewString()[:8],
		VideoFilename: "site.mp4",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(r)
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed report: %v", err)
	}
	return r
}
