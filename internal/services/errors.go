package services

import (
	"errors"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
)

// storeError maps report store failures onto the API error taxonomy.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apierr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, reports.ErrNotFound):
		return apierr.NotFound("report_not_found", errors.New("Report not found"))
	case errors.Is(err, reports.ErrTransitionRejected):
		return apierr.Conflict("analysis_in_progress", err)
	case errors.Is(err, reports.ErrStoreUnavailable):
		return apierr.Store("store_unavailable", err)
	default:
		return apierr.Store("store_error", err)
	}
}
