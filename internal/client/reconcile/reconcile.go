// Package reconcile merges full snapshots and single confirmed mutations
// into the local store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/fieldkeeper/fieldsync/internal/logging"
)

// TableStats counts the rows written for one table.
type TableStats struct {
	Upserted int
	Deleted  int
}

// Result summarizes one reconciliation.
type Result struct {
	Stats map[models.Table]TableStats
	// Changed lists the tables that were modified, including those that lost
	// rows through cascades, in dependency order.
	Changed []models.Table
}

type Reconciler struct {
	store *store.Store
	log   logging.Logger
	// hook runs before each table is processed; tests use it to inject
	// failures mid-pass.
	hook func(models.Table) error
}

func New(s *store.Store, log logging.Logger) *Reconciler {
	return &Reconciler{store: s, log: log.With("module", "reconcile")}
}

// batch holds the incoming rows of one table for one congregation.
type batch struct {
	scope string
	rows  []models.Record
}

// plan groups snapshot rows per table and scope. A table appearing in both
// snapshots under the same congregation is merged, first occurrence wins.
func plan(scope models.Scope, main models.Snapshot, phone *models.PhoneSnapshot) map[models.Table][]*batch {
	out := make(map[models.Table][]*batch)
	add := func(congregationID string, recs map[models.Table][]models.Record) {
		for table, rows := range recs {
			var b *batch
			for _, existing := range out[table] {
				if existing.scope == congregationID {
					b = existing
				}
			}
			if b == nil {
				b = &batch{scope: congregationID}
				out[table] = append(out[table], b)
			}
			seen := make(map[string]struct{}, len(b.rows))
			for _, r := range b.rows {
				seen[r.Key()] = struct{}{}
			}
			for _, r := range rows {
				if _, dup := seen[r.Key()]; !dup {
					b.rows = append(b.rows, r)
				}
			}
		}
	}

	add(scope.CongregationID, main.Records())
	if phone != nil {
		add(scope.PhoneCongregationID, phone.Records())
	}
	return out
}

// Reconcile replaces the scoped local contents with the snapshots in one
// transaction, together with the last-synced timestamp. Tables are walked in
// dependency order; within a table deletions (cascading) precede upserts.
// Only rows that differ are written, so applying the same snapshot twice
// changes nothing and notifies nobody.
//
// phone is nil when phone-book data is not in scope.
func (r *Reconciler) Reconcile(ctx context.Context, scope models.Scope, main models.Snapshot, phone *models.PhoneSnapshot, syncedAt time.Time) (Result, error) {
	if scope.CongregationID == "" {
		return Result{}, fmt.Errorf("reconcile: %w", common.ErrNoCredentials)
	}
	if phone != nil && !scope.Phone() {
		return Result{}, errors.New("reconcile: phone snapshot without phone scope")
	}

	work := plan(scope, main, phone)
	res := Result{Stats: make(map[models.Table]TableStats)}

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, table := range models.Tables {
			if r.hook != nil {
				if err := r.hook(table); err != nil {
					return err
				}
			}
			for _, b := range work[table] {
				st, err := r.apply(ctx, tx, table, b)
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", table, err)
				}
				if st != (TableStats{}) {
					prev := res.Stats[table]
					res.Stats[table] = TableStats{Upserted: prev.Upserted + st.Upserted, Deleted: prev.Deleted + st.Deleted}
				}
			}
		}
		if err := tx.Meta().SetTime(ctx, common.MetaLastSyncedAt, syncedAt); err != nil {
			return err
		}
		res.Changed = tx.Changed()
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	for table, st := range res.Stats {
		r.log.Debug(ctx, "table reconciled", "table", table, "upserted", st.Upserted, "deleted", st.Deleted)
	}
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, tx *store.Tx, table models.Table, b *batch) (TableStats, error) {
	var st TableStats

	local, err := tx.FetchScoped(ctx, table, b.scope)
	if err != nil {
		return st, err
	}
	incoming := make(map[string]models.Record, len(b.rows))
	for _, rec := range b.rows {
		incoming[rec.Key()] = rec
	}

	current := make(map[string]models.Record, len(local))
	for _, rec := range local {
		if _, keep := incoming[rec.Key()]; keep {
			current[rec.Key()] = rec
			continue
		}
		if _, err := tx.DeleteCascade(ctx, table, rec.Key()); err != nil {
			return st, err
		}
		st.Deleted++
	}

	for _, rec := range b.rows {
		if prev, ok := current[rec.Key()]; ok && store.Equal(prev, rec) {
			continue
		}
		if err := tx.Upsert(ctx, rec); err != nil {
			return st, err
		}
		st.Upserted++
	}
	return st, nil
}

// Fold applies one server-confirmed mutation outside a full sync. An upsert
// whose parent is not stored locally fails with common.ErrNotFound; the
// caller is expected to request a full resync.
func (r *Reconciler) Fold(ctx context.Context, m models.MutationResult) ([]models.Table, error) {
	var changed []models.Table
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx *store.Tx) error {
		switch m.Op {
		case models.OpDelete:
			if _, err := tx.DeleteCascade(ctx, m.Table, m.ID); err != nil {
				return err
			}
		case models.OpUpsert:
			if m.Record == nil {
				return fmt.Errorf("fold %s: %w: empty record", m.Table, common.ErrDecode)
			}
			if err := foldRecord(ctx, tx, m.Record); err != nil {
				return err
			}
			if m.Record.Table() == models.TableToken && m.Grants != nil {
				if err := replaceGrants(ctx, tx, m.Record.Key(), m.Grants); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("fold: unknown op %q", m.Op)
		}
		changed = tx.Changed()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func foldRecord(ctx context.Context, tx *store.Tx, rec models.Record) error {
	if parent := rec.Table().Parent(); parent != "" {
		if _, err := tx.FetchByID(ctx, parent, rec.ParentKey()); err != nil {
			return fmt.Errorf("fold %s[%s]: parent %s[%s]: %w", rec.Table(), rec.Key(), parent, rec.ParentKey(), err)
		}
	}
	prev, err := tx.FetchByID(ctx, rec.Table(), rec.Key())
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if prev != nil && store.Equal(prev, rec) {
		return nil
	}
	return tx.Upsert(ctx, rec)
}

// replaceGrants makes grants the complete territory set of tokenID.
func replaceGrants(ctx context.Context, tx *store.Tx, tokenID string, grants []models.TokenTerritory) error {
	recs, err := tx.FetchByParent(ctx, models.TableTokenTerritory, tokenID)
	if err != nil {
		return err
	}
	missing := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		missing[g.Key()] = struct{}{}
	}
	for _, rec := range recs {
		if _, keep := missing[rec.Key()]; keep {
			delete(missing, rec.Key())
			continue
		}
		if _, err := tx.DeleteCascade(ctx, models.TableTokenTerritory, rec.Key()); err != nil {
			return err
		}
	}
	for _, g := range grants {
		if _, ok := missing[g.Key()]; !ok {
			continue
		}
		delete(missing, g.Key())
		if err := tx.Upsert(ctx, g); err != nil {
			return err
		}
	}
	return nil
}
