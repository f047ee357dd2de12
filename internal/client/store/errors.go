package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldkeeper/fieldsync/internal/common"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// classify maps driver errors onto the storage taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%s: %w: %w", op, common.ErrConstraintViolation, err)
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrStorage, err)
}
