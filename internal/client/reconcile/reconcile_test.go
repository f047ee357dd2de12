package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/reconcile"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/client/store/storetest"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/fieldkeeper/fieldsync/internal/logging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	scope   = models.Scope{CongregationID: "c1", PhoneCongregationID: "c1"}
	syncT0  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	syncT1  = syncT0.Add(time.Hour)
	noPhone *models.PhoneSnapshot
)

func snapshot() models.Snapshot {
	return models.Snapshot{
		Congregations: []models.Congregation{{ID: "c1", Name: "North"}},
		Territories: []models.Territory{
			{ID: "t1", CongregationID: "c1", Number: 1},
			{ID: "t2", CongregationID: "c1", Number: 2},
		},
		Addresses: []models.TerritoryAddress{
			{ID: "a1", TerritoryID: "t1", Address: "Main St"},
			{ID: "a2", TerritoryID: "t2", Address: "Side St"},
		},
		Houses: []models.House{
			{ID: "h1", AddressID: "a1", Number: "1"},
			{ID: "h2", AddressID: "a1", Number: "2"},
			{ID: "h3", AddressID: "a2", Number: "1"},
		},
		Visits: []models.Visit{
			{ID: "v1", HouseID: "h1", Date: 100, Symbol: models.SymbolVisited},
			{ID: "v2", HouseID: "h3", Date: 200, Symbol: models.SymbolNotAtHome},
		},
		Tokens:           []models.Token{{ID: "k1", CongregationID: "c1", Name: "key"}},
		TokenTerritories: []models.TokenTerritory{{TokenID: "k1", TerritoryID: "t1"}},
		UserTokens:       []models.UserToken{{TokenID: "k1", UserID: "u1", UserName: "Ann"}},
	}
}

func phoneSnapshot() *models.PhoneSnapshot {
	return &models.PhoneSnapshot{
		Congregations: []models.Congregation{{ID: "c1", Name: "North"}},
		Territories:   []models.PhoneTerritory{{ID: "pt1", CongregationID: "c1", Number: 1}},
		Numbers:       []models.PhoneNumber{{ID: "n1", TerritoryID: "pt1", CongregationID: "c1", Number: "555"}},
		Calls:         []models.PhoneCall{{ID: "call1", PhoneNumberID: "n1", Date: 10}},
	}
}

func dump(t *testing.T, s *store.Store) map[models.Table][]models.Record {
	t.Helper()
	out := make(map[models.Table][]models.Record)
	for _, table := range models.Tables {
		recs, err := s.FetchAll(context.Background(), table)
		require.NoError(t, err)
		out[table] = recs
	}
	return out
}

func setup(t *testing.T) (*store.Store, *reconcile.Reconciler) {
	s := storetest.New(t)
	return s, reconcile.New(s, logging.Discard())
}

func TestReconcile_AppliesSnapshot(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, scope, snapshot(), phoneSnapshot(), syncT0)
	require.NoError(t, err)

	assert.Equal(t, models.Tables, res.Changed)
	assert.Equal(t, reconcile.TableStats{Upserted: 3}, res.Stats[models.TableHouse])
	assert.Equal(t, []string{"h1", "h2", "h3"}, storetest.Keys(t, s, models.TableHouse))
	assert.Equal(t, []string{"call1"}, storetest.Keys(t, s, models.TablePhoneCall))

	at, err := s.Meta().GetTime(ctx, common.MetaLastSyncedAt)
	require.NoError(t, err)
	assert.True(t, syncT0.Equal(at))
}

func TestReconcile_Idempotent(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, scope, snapshot(), phoneSnapshot(), syncT0)
	require.NoError(t, err)
	before := dump(t, s)

	sub := s.Subscribe()
	defer sub.Close()

	res, err := r.Reconcile(ctx, scope, snapshot(), phoneSnapshot(), syncT1)
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Empty(t, res.Stats)

	if diff := cmp.Diff(before, dump(t, s)); diff != "" {
		t.Fatalf("second application changed the store (-before +after):\n%s", diff)
	}
	select {
	case cs := <-sub.C():
		t.Fatalf("spurious notification %+v", cs)
	default:
	}

	at, err := s.Meta().GetTime(ctx, common.MetaLastSyncedAt)
	require.NoError(t, err)
	assert.True(t, syncT1.Equal(at), "sync time still advances")
}

func TestReconcile_AtomicOnMidPassFailure(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, scope, snapshot(), nil, syncT0)
	require.NoError(t, err)
	before := dump(t, s)

	next := snapshot()
	next.Territories[0].Description = "renamed"
	next.Houses = next.Houses[:1]
	next.Visits = append(next.Visits, models.Visit{ID: "v3", HouseID: "h1", Date: 300})

	boom := errors.New("simulated failure")
	r.SetHook(func(table models.Table) error {
		if table == models.TableVisit {
			return boom
		}
		return nil
	})

	_, err = r.Reconcile(ctx, scope, next, nil, syncT1)
	require.ErrorIs(t, err, boom)

	if diff := cmp.Diff(before, dump(t, s)); diff != "" {
		t.Fatalf("failed reconciliation leaked changes (-before +after):\n%s", diff)
	}
	at, err := s.Meta().GetTime(ctx, common.MetaLastSyncedAt)
	require.NoError(t, err)
	assert.True(t, syncT0.Equal(at), "last sync time must be preserved")
}

func TestReconcile_OmittedTerritoryCascades(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, scope, snapshot(), nil, syncT0)
	require.NoError(t, err)

	next := snapshot()
	next.Territories = next.Territories[1:]
	next.Addresses = next.Addresses[1:]
	next.Houses = next.Houses[2:]
	next.Visits = next.Visits[1:]
	next.TokenTerritories = nil

	res, err := r.Reconcile(ctx, scope, next, nil, syncT1)
	require.NoError(t, err)

	assert.Equal(t, []string{"t2"}, storetest.Keys(t, s, models.TableTerritory))
	assert.Equal(t, []string{"a2"}, storetest.Keys(t, s, models.TableAddress))
	assert.Equal(t, []string{"h3"}, storetest.Keys(t, s, models.TableHouse))
	assert.Equal(t, []string{"v2"}, storetest.Keys(t, s, models.TableVisit))
	assert.Empty(t, storetest.Keys(t, s, models.TableTokenTerritory))
	assert.Equal(t, []models.Table{
		models.TableTerritory, models.TableAddress, models.TableHouse, models.TableVisit, models.TableTokenTerritory,
	}, res.Changed)
	assert.Equal(t, 1, res.Stats[models.TableTerritory].Deleted)
}

func TestReconcile_EmptyTableMeansEmpty(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, scope, snapshot(), nil, syncT0)
	require.NoError(t, err)

	next := snapshot()
	next.Visits = nil
	_, err = r.Reconcile(ctx, scope, next, nil, syncT1)
	require.NoError(t, err)
	assert.Empty(t, storetest.Keys(t, s, models.TableVisit))
	assert.Len(t, storetest.Keys(t, s, models.TableHouse), 3)
}

func TestReconcile_OnlyChangedRowsAreWritten(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, scope, snapshot(), nil, syncT0)
	require.NoError(t, err)

	next := snapshot()
	next.Visits[1].Notes = "came back later"
	res, err := r.Reconcile(ctx, scope, next, nil, syncT1)
	require.NoError(t, err)
	assert.Equal(t, []models.Table{models.TableVisit}, res.Changed)
	assert.Equal(t, map[models.Table]reconcile.TableStats{models.TableVisit: {Upserted: 1}}, res.Stats)
}

func TestReconcile_LeavesOtherScopesAlone(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	storetest.Seed(t, s,
		models.Congregation{ID: "c2"},
		models.Territory{ID: "t9", CongregationID: "c2"},
	)
	_, err := r.Reconcile(ctx, scope, snapshot(), nil, syncT0)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2"}, storetest.Keys(t, s, models.TableCongregation))
	assert.Equal(t, []string{"t1", "t2", "t9"}, storetest.Keys(t, s, models.TableTerritory))
}

func TestReconcile_WithoutPhoneSnapshotKeepsPhoneTables(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, scope, snapshot(), phoneSnapshot(), syncT0)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, scope, snapshot(), noPhone, syncT1)
	require.NoError(t, err)

	assert.Equal(t, []string{"pt1"}, storetest.Keys(t, s, models.TablePhoneTerritory))
}

func TestReconcile_SharedCongregationIsNotDeletedByPhoneSnapshot(t *testing.T) {
	s, r := setup(t)

	phone := phoneSnapshot()
	phone.Congregations = nil
	phone.Territories = nil
	phone.Numbers = nil
	phone.Calls = nil

	_, err := r.Reconcile(context.Background(), scope, snapshot(), phone, syncT0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, storetest.Keys(t, s, models.TableCongregation))
	assert.Len(t, storetest.Keys(t, s, models.TableVisit), 2)
}

func TestReconcile_RequiresScope(t *testing.T) {
	_, r := setup(t)

	_, err := r.Reconcile(context.Background(), models.Scope{}, snapshot(), nil, syncT0)
	assert.ErrorIs(t, err, common.ErrNoCredentials)

	_, err = r.Reconcile(context.Background(), models.Scope{CongregationID: "c1"}, snapshot(), phoneSnapshot(), syncT0)
	assert.Error(t, err)
}

func TestFold(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()
	_, err := r.Reconcile(ctx, scope, snapshot(), nil, syncT0)
	require.NoError(t, err)

	t.Run("upsert with known parent", func(t *testing.T) {
		v := models.Visit{ID: "v9", HouseID: "h2", Date: 900, Notes: "ok"}
		changed, err := r.Fold(ctx, models.MutationResult{Op: models.OpUpsert, Table: models.TableVisit, Record: v, ID: "v9"})
		require.NoError(t, err)
		assert.Equal(t, []models.Table{models.TableVisit}, changed)

		got, err := s.FetchByID(ctx, models.TableVisit, "v9")
		require.NoError(t, err)
		assert.Equal(t, v, got)
	})

	t.Run("identical upsert changes nothing", func(t *testing.T) {
		h := models.House{ID: "h1", AddressID: "a1", Number: "1"}
		changed, err := r.Fold(ctx, models.MutationResult{Op: models.OpUpsert, Table: models.TableHouse, Record: h})
		require.NoError(t, err)
		assert.Empty(t, changed)
	})

	t.Run("missing parent is not found", func(t *testing.T) {
		v := models.Visit{ID: "v10", HouseID: "ghost"}
		_, err := r.Fold(ctx, models.MutationResult{Op: models.OpUpsert, Table: models.TableVisit, Record: v})
		require.ErrorIs(t, err, common.ErrNotFound)
		assert.NotContains(t, storetest.Keys(t, s, models.TableVisit), "v10")
	})

	t.Run("token grants replace the local set", func(t *testing.T) {
		k := models.Token{ID: "k1", CongregationID: "c1", Name: "key"}
		changed, err := r.Fold(ctx, models.MutationResult{
			Op: models.OpUpsert, Table: models.TableToken, ID: "k1", Record: k,
			Grants: []models.TokenTerritory{
				{TokenID: "k1", TerritoryID: "t2"},
				{TokenID: "k1", TerritoryID: models.AllTerritories},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []models.Table{models.TableTokenTerritory}, changed)
		assert.Equal(t, []string{"k1|*", "k1|t2"}, storetest.Keys(t, s, models.TableTokenTerritory))
	})

	t.Run("token without grant list keeps its grants", func(t *testing.T) {
		k := models.Token{ID: "k1", CongregationID: "c1", Name: "renamed"}
		changed, err := r.Fold(ctx, models.MutationResult{Op: models.OpUpsert, Table: models.TableToken, ID: "k1", Record: k})
		require.NoError(t, err)
		assert.Equal(t, []models.Table{models.TableToken}, changed)
		assert.Equal(t, []string{"k1|*", "k1|t2"}, storetest.Keys(t, s, models.TableTokenTerritory))
	})

	t.Run("empty grant list clears grants", func(t *testing.T) {
		k := models.Token{ID: "k1", CongregationID: "c1", Name: "renamed"}
		_, err := r.Fold(ctx, models.MutationResult{
			Op: models.OpUpsert, Table: models.TableToken, ID: "k1", Record: k,
			Grants: []models.TokenTerritory{},
		})
		require.NoError(t, err)
		assert.Empty(t, storetest.Keys(t, s, models.TableTokenTerritory))
	})

	t.Run("delete cascades", func(t *testing.T) {
		changed, err := r.Fold(ctx, models.MutationResult{Op: models.OpDelete, Table: models.TableHouse, ID: "h1"})
		require.NoError(t, err)
		assert.Equal(t, []models.Table{models.TableHouse, models.TableVisit}, changed)
		assert.NotContains(t, storetest.Keys(t, s, models.TableVisit), "v1")
	})
}
