package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/client/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *store.Subscription) store.ChangeSet {
	t.Helper()
	select {
	case cs, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return cs
	case <-time.After(time.Second):
		t.Fatal("no change set delivered")
	}
	return store.ChangeSet{}
}

func assertQuiet(t *testing.T, sub *store.Subscription) {
	t.Helper()
	select {
	case cs := <-sub.C():
		t.Fatalf("unexpected change set %+v", cs)
	default:
	}
}

func TestSubscribe_OneChangeSetPerTransactionInDependencyOrder(t *testing.T) {
	s := storetest.New(t)
	sub := s.Subscribe()
	defer sub.Close()

	storetest.Seed(t, s, storetest.Hierarchy()...)

	cs := receive(t, sub)
	assert.Equal(t, models.Tables, cs.Tables)
	assertQuiet(t, sub)
}

func TestSubscribe_FiltersTables(t *testing.T) {
	s := storetest.New(t)
	houses := s.Subscribe(models.TableHouse)
	defer houses.Close()
	tokens := s.Subscribe(models.TableToken)
	defer tokens.Close()

	storetest.Seed(t, s,
		models.Congregation{ID: "c1"},
		models.Territory{ID: "t1", CongregationID: "c1"},
		models.TerritoryAddress{ID: "a1", TerritoryID: "t1"},
		models.House{ID: "h1", AddressID: "a1"},
	)

	cs := receive(t, houses)
	assert.Equal(t, []models.Table{models.TableHouse}, cs.Tables)
	assertQuiet(t, tokens)
}

func TestSubscribe_SlowSubscriberGetsCoalescedChanges(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	sub := s.Subscribe()
	defer sub.Close()

	storetest.Seed(t, s, models.Congregation{ID: "c1"})
	storetest.Seed(t, s, models.Territory{ID: "t1", CongregationID: "c1"})
	require.NoError(t, s.Upsert(ctx, models.Token{ID: "k1", CongregationID: "c1"}))

	cs := receive(t, sub)
	assert.Equal(t, []models.Table{models.TableCongregation, models.TableTerritory, models.TableToken}, cs.Tables)
	assert.Equal(t, uint64(3), cs.Seq)
	assertQuiet(t, sub)
}

func TestSubscribe_SequenceIncreases(t *testing.T) {
	s := storetest.New(t)
	sub := s.Subscribe(models.TableCongregation)
	defer sub.Close()

	storetest.Seed(t, s, models.Congregation{ID: "c1"})
	first := receive(t, sub)
	storetest.Seed(t, s, models.Congregation{ID: "c2"})
	second := receive(t, sub)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	s := storetest.New(t)
	sub := s.Subscribe()
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	// publishing after close must not panic
	storetest.Seed(t, s, models.Congregation{ID: "c1"})
}

func TestInvalidate_NotifiesAllTables(t *testing.T) {
	s := storetest.New(t)
	sub := s.Subscribe(models.TableVisit, models.TableHouse)
	defer sub.Close()

	s.Invalidate()
	cs := receive(t, sub)
	assert.Equal(t, []models.Table{models.TableHouse, models.TableVisit}, cs.Tables)
	assert.True(t, cs.Has(models.TableVisit))
	assert.False(t, cs.Has(models.TableToken))
}
