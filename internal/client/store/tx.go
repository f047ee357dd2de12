package store

import (
	"context"
	"fmt"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/repositories/metadata"
)

// deleteChunk bounds the number of ids bound into one IN (...) list.
const deleteChunk = 500

// Tx is a write transaction handle passed to RunTransaction bodies. It
// records which tables were modified so one ChangeSet can be published on
// commit.
type Tx struct {
	reader
	changed map[models.Table]struct{}
}

// Meta exposes the metadata repository inside the same transaction.
func (t *Tx) Meta() *metadata.SQLiteRepository {
	return metadata.NewSQLiteRepository(t.db)
}

// Touch marks tables as changed without modifying them.
func (t *Tx) Touch(tables ...models.Table) {
	for _, tb := range tables {
		t.changed[tb] = struct{}{}
	}
}

// Changed lists the tables modified so far, in dependency order.
func (t *Tx) Changed() []models.Table {
	out := make([]models.Table, 0, len(t.changed))
	for tb := range t.changed {
		out = append(out, tb)
	}
	models.SortTables(out)
	return out
}

// Upsert inserts r or updates the existing row with the same id in place,
// leaving its children untouched.
func (t *Tx) Upsert(ctx context.Context, r models.Record) error {
	d, err := describe(r.Table())
	if err != nil {
		return err
	}
	args := append([]any{r.Key()}, d.values(r)...)
	if _, err := t.db.ExecContext(ctx, d.upsertSQL, args...); err != nil {
		return classify(fmt.Sprintf("upsert %s[%s]", r.Table(), r.Key()), err)
	}
	t.Touch(r.Table())
	return nil
}

// DeleteCascade removes table[id] and all its descendants. Deleting an
// absent row is a no-op. It returns the tables that lost rows.
func (t *Tx) DeleteCascade(ctx context.Context, table models.Table, id string) ([]models.Table, error) {
	d, err := describe(table)
	if err != nil {
		return nil, err
	}
	affected := make(map[models.Table]struct{})
	if err := t.deleteIDs(ctx, d, []string{id}, affected); err != nil {
		return nil, err
	}

	out := make([]models.Table, 0, len(affected))
	for tb := range affected {
		t.Touch(tb)
		out = append(out, tb)
	}
	models.SortTables(out)
	return out, nil
}

// deleteIDs removes children bottom-up before the rows themselves.
func (t *Tx) deleteIDs(ctx context.Context, d *descriptor, ids []string, affected map[models.Table]struct{}) error {
	if len(ids) == 0 {
		return nil
	}
	for _, child := range d.table.Children() {
		cd := descriptors[child]
		childIDs, err := t.idsByParent(ctx, cd, ids)
		if err != nil {
			return err
		}
		if err := t.deleteIDs(ctx, cd, childIDs, affected); err != nil {
			return err
		}
	}

	for start := 0; start < len(ids); start += deleteChunk {
		chunk := ids[start:min(start+deleteChunk, len(ids))]
		res, err := t.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", d.table, placeholders(len(chunk))),
			anySlice(chunk)...)
		if err != nil {
			return classify("delete "+d.table.String(), err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			affected[d.table] = struct{}{}
		}
	}
	return nil
}

func (t *Tx) idsByParent(ctx context.Context, d *descriptor, parentIDs []string) ([]string, error) {
	var ids []string
	for start := 0; start < len(parentIDs); start += deleteChunk {
		chunk := parentIDs[start:min(start+deleteChunk, len(parentIDs))]
		rows, err := t.db.QueryContext(ctx,
			fmt.Sprintf("SELECT id FROM %s WHERE %s IN (%s)", d.table, d.parentCol, placeholders(len(chunk))),
			anySlice(chunk)...)
		if err != nil {
			return nil, classify("select "+d.table.String()+" children", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, classify("scan "+d.table.String()+" id", err)
			}
			ids = append(ids, id)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, classify("iterate "+d.table.String()+" ids", err)
		}
	}
	return ids, nil
}

// wipe deletes every row of every data table, children first.
func (t *Tx) wipe(ctx context.Context) error {
	for i := len(models.Tables) - 1; i >= 0; i-- {
		tb := models.Tables[i]
		if _, err := t.db.ExecContext(ctx, "DELETE FROM "+tb.String()); err != nil {
			return classify("wipe "+tb.String(), err)
		}
		t.Touch(tb)
	}
	return nil
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
