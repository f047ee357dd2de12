// Package storetest provides throwaway stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/logging"
	"github.com/stretchr/testify/require"
)

// New opens a migrated store in a temp dir, closed on cleanup.
func New(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "fieldsync.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Seed upserts records in one transaction. Order them parents first.
func Seed(t testing.TB, s *store.Store, records ...models.Record) {
	t.Helper()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		for _, r := range records {
			if err := tx.Upsert(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// Keys lists the ids currently stored in table.
func Keys(t testing.TB, s *store.Store, table models.Table) []string {
	t.Helper()
	recs, err := s.FetchAll(context.Background(), table)
	require.NoError(t, err)
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, r.Key())
	}
	return keys
}

// Hierarchy returns one congregation "c1" with a full territory chain
// (t1 > a1 > h1 > v1), a phone chain (pt1 > n1 > call1) and a token k1
// granting t1 to user u1.
func Hierarchy() []models.Record {
	return []models.Record{
		models.Congregation{ID: "c1", Name: "North"},
		models.Territory{ID: "t1", CongregationID: "c1", Number: 1, Description: "Old town"},
		models.PhoneTerritory{ID: "pt1", CongregationID: "c1", Number: 1},
		models.TerritoryAddress{ID: "a1", TerritoryID: "t1", Address: "Main St 1"},
		models.PhoneNumber{ID: "n1", TerritoryID: "pt1", CongregationID: "c1", Number: "555-0101"},
		models.House{ID: "h1", AddressID: "a1", Number: "1"},
		models.PhoneCall{ID: "call1", PhoneNumberID: "n1", Date: 1000, User: "Ann"},
		models.Visit{ID: "v1", HouseID: "h1", Date: 1000, Symbol: models.SymbolVisited, User: "Ann"},
		models.Token{ID: "k1", CongregationID: "c1", Name: "key", Owner: "admin"},
		models.TokenTerritory{TokenID: "k1", TerritoryID: "t1"},
		models.UserToken{TokenID: "k1", UserID: "u1", UserName: "Ann"},
	}
}
