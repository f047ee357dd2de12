package store

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func SetGooseUpContext(fn func(ctx context.Context, db *sql.DB, dir string) error) (restore func()) {
	prev := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		return fn(ctx, db, dir)
	}
	return func() { gooseUpContext = prev }
}
