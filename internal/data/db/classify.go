package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
)

// Classify marks connectivity failures with reports.ErrStoreUnavailable.
func Classify(err error) error {
	if err == nil || errors.Is(err, reports.ErrStoreUnavailable) {
		return err
	}
	var connErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connErr),
		mongo.IsNetworkError(err),
		mongo.IsTimeout(err),
		errors.Is(err, ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		strings.Contains(strings.ToLower(err.Error()), "connection refused"):
		return fmt.Errorf("%w: %w", reports.ErrStoreUnavailable, err)
	}
	return err
}
