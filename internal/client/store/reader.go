package store

import (
	"context"
	"fmt"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/dbx"
)

// Reader is the read side of the store, implemented by Store, Tx and the
// handle View passes to its callback.
type Reader interface {
	FetchAll(ctx context.Context, table models.Table) ([]models.Record, error)
	FetchByID(ctx context.Context, table models.Table, id string) (models.Record, error)
	FetchByParent(ctx context.Context, table models.Table, parentID string) ([]models.Record, error)
	FetchScoped(ctx context.Context, table models.Table, congregationID string) ([]models.Record, error)
	RootOf(ctx context.Context, table models.Table, id string) (models.Root, error)
}

// reader implements the read operations shared by Store (pool) and Tx.
type reader struct {
	db dbx.DBTX
}

func (r reader) query(ctx context.Context, d *descriptor, op, where string, args ...any) ([]models.Record, error) {
	q := d.selectSQL
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := d.scan(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// FetchAll returns every row of table ordered by id.
func (r reader) FetchAll(ctx context.Context, table models.Table) ([]models.Record, error) {
	d, err := describe(table)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, d, "fetch all "+table.String(), "")
}

// FetchByID returns common.ErrNotFound when the row does not exist.
func (r reader) FetchByID(ctx context.Context, table models.Table, id string) (models.Record, error) {
	d, err := describe(table)
	if err != nil {
		return nil, err
	}
	op := fmt.Sprintf("fetch %s[%s]", table, id)
	rec, err := d.scan(r.db.QueryRowContext(ctx, d.selectSQL+" WHERE id = ?", id))
	if err != nil {
		return nil, classify(op, err)
	}
	return rec, nil
}

func (r reader) FetchByParent(ctx context.Context, table models.Table, parentID string) ([]models.Record, error) {
	d, err := describe(table)
	if err != nil {
		return nil, err
	}
	if d.parentCol == "" {
		return nil, fmt.Errorf("%s has no parent", table)
	}
	return r.query(ctx, d, "fetch "+table.String()+" by parent", d.parentCol+" = ?", parentID)
}

// FetchScoped returns the rows of table that belong to congregationID,
// following the hierarchy up to the congregation.
func (r reader) FetchScoped(ctx context.Context, table models.Table, congregationID string) ([]models.Record, error) {
	d, err := describe(table)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, d, "fetch scoped "+table.String(), d.scope, congregationID)
}

// RootOf walks up from the row table[id] to the territory, phone territory,
// token or congregation that owns it.
func (r reader) RootOf(ctx context.Context, table models.Table, id string) (models.Root, error) {
	for {
		rec, err := r.FetchByID(ctx, table, id)
		if err != nil {
			return models.Root{}, err
		}
		switch table {
		case models.TableCongregation:
			return models.Root{Table: table, ID: id, CongregationID: id}, nil
		case models.TableTerritory, models.TablePhoneTerritory, models.TableToken:
			return models.Root{Table: table, ID: id, CongregationID: rec.ParentKey()}, nil
		}
		table, id = table.Parent(), rec.ParentKey()
	}
}
