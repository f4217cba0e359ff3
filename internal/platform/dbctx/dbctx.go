package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context plus an optional open transaction.
// Repositories fall back to their own handle when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func Background() Context {
	return Context{Ctx: context.Background()}
}

func From(ctx context.Context) Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return Context{Ctx: ctx}
}
