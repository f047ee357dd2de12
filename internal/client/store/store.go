package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/fieldkeeper/fieldsync/internal/client/migrations"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/repositories/metadata"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/fieldkeeper/fieldsync/internal/dbx"
	"github.com/fieldkeeper/fieldsync/internal/filex"
	"github.com/fieldkeeper/fieldsync/internal/logging"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Write transactions begin IMMEDIATE so a transaction that reads before it
// writes cannot lose the write lock to an autocommit statement in between.
const dsnFormat = "file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

type Store struct {
	reader
	sqlDB *sql.DB
	log   logging.Logger

	// writeMu makes the store single-writer.
	writeMu  sync.Mutex
	notifier *notifier
}

// Open opens (creating if needed) the database file at path and migrates it.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	path, err := filex.EnsureParentDir(path)
	if err != nil {
		return nil, classify("open store", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf(dsnFormat, path))
	if err != nil {
		return nil, classify("open store", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("open store", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, log), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, log logging.Logger) *Store {
	return &Store{
		reader:   reader{db: db},
		sqlDB:    db,
		log:      log.With("module", "store"),
		notifier: newNotifier(),
	}
}

func (s *Store) Close() error { return s.sqlDB.Close() }

// Meta returns the metadata repository outside any transaction.
func (s *Store) Meta() metadata.Repository {
	return metadata.NewSQLiteRepository(s.sqlDB)
}

// RunTransaction runs fn in a write transaction. It commits when fn returns
// nil and rolls back on error or panic; errors returned by fn come back
// unchanged. On commit subscribers are notified of the touched tables.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		tx    *Tx
		fnErr error
	)
	err := dbx.WithTx(ctx, s.sqlDB, nil, func(ctx context.Context, db dbx.DBTX) error {
		tx = &Tx{reader: reader{db: db}, changed: make(map[models.Table]struct{})}
		fnErr = fn(ctx, tx)
		return fnErr
	})
	if err != nil {
		if fnErr == nil {
			return classify("transaction", err)
		}
		return err
	}

	changed := tx.Changed()
	if len(changed) > 0 {
		s.log.Debug(ctx, "transaction committed", "tables", changed)
	}
	s.notifier.publish(changed)
	return nil
}

// View runs fn in one read-only transaction: every read made through r sees
// the same committed state, whatever commits in the meantime. Writers are
// not blocked.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error {
	var fnErr error
	err := dbx.WithTx(ctx, s.sqlDB, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, db dbx.DBTX) error {
		fnErr = fn(ctx, reader{db: db})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return classify("view", err)
	}
	return err
}

func (s *Store) Upsert(ctx context.Context, r models.Record) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.Upsert(ctx, r)
	})
}

func (s *Store) DeleteCascade(ctx context.Context, table models.Table, id string) ([]models.Table, error) {
	var affected []models.Table
	err := s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		affected, err = tx.DeleteCascade(ctx, table, id)
		return err
	})
	return affected, err
}

// Wipe removes all synced data. Metadata is kept.
func (s *Store) Wipe(ctx context.Context) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.wipe(ctx)
	})
}

// ResetScope wipes synced data and hands the local scope to owner ("" for
// nobody). The last sync time goes with the data.
func (s *Store) ResetScope(ctx context.Context, owner string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		if err := tx.wipe(ctx); err != nil {
			return err
		}
		m := tx.Meta()
		if err := m.Delete(ctx, common.MetaLastSyncedAt); err != nil {
			return err
		}
		if owner == "" {
			return m.Delete(ctx, common.MetaScopeOwner)
		}
		return m.SetString(ctx, common.MetaScopeOwner, owner)
	})
}

// Subscribe starts a subscription for tables; none means all tables.
// Callers must Close it.
func (s *Store) Subscribe(tables ...models.Table) *Subscription {
	return s.notifier.subscribe(tables)
}

// Invalidate notifies every subscriber as if all tables had changed.
func (s *Store) Invalidate() {
	s.notifier.publish(append([]models.Table(nil), models.Tables...))
}
