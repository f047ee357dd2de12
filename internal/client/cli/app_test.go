package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/store/storetest"
	"github.com/fieldkeeper/fieldsync/internal/client/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatus(t *testing.T) {
	a := newTestApp(t, ann)
	a.setUser("")
	assert.Equal(t, "", a.getStatus())

	a.Mode = ModeOffline
	assert.Equal(t, "(offline)", a.getStatus())

	a.setUser("Ann")
	a.territories.Store(3)
	assert.Equal(t, "(Ann offline 3 territories)", a.getStatus())
}

func TestCheckOnline_Transitions(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, ann)

	a.fauth.pingErr = errors.New("down")
	a.checkOnline(ctx)
	assert.Equal(t, ModeOffline, a.mode())
	assert.Empty(t, a.fsync.resyncReasons())

	a.fauth.pingErr = nil
	a.checkOnline(ctx)
	assert.Equal(t, ModeOnline, a.mode())
	assert.Equal(t, []string{"back online"}, a.fsync.resyncReasons())

	a.checkOnline(ctx)
	assert.Len(t, a.fsync.resyncReasons(), 1, "no resync while staying online")
	assert.Equal(t, 3, a.fauth.pings)
}

func TestCheckOnline_LoggedOutDoesNotSync(t *testing.T) {
	a := newTestApp(t, ann)
	a.setUser("")

	a.checkOnline(context.Background())
	assert.Equal(t, ModeOnline, a.mode())
	assert.Empty(t, a.fsync.resyncReasons())
}

func TestStartOnlineStatusWatcher_StopsWithContext(t *testing.T) {
	a := newTestApp(t, ann)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.StartOnlineStatusWatcher(ctx, time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return a.mode() == ModeOnline }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchState_ReportsAttention(t *testing.T) {
	out := captureOutput(t)
	a := newTestApp(t, ann)
	a.fsync.lastErr = errors.New("timeout")
	ch := make(chan syncer.State, 4)
	a.fsync.states = ch

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.watchState(ctx)
		close(done)
	}()

	ch <- syncer.Syncing
	ch <- syncer.Failed
	ch <- syncer.AdminLogin
	want := "Sync failed: timeout\nAdministrator session expired, please log in again.\n"
	require.Eventually(t, func() bool { return out.String() == want }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestWatchTerritories_TracksVisibleCount(t *testing.T) {
	a := newTestApp(t, ann)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.watchTerritories(ctx)

	require.Eventually(t, func() bool { return a.territories.Load() == 1 }, time.Second, time.Millisecond)

	storetest.Seed(t, a.store,
		models.Territory{ID: "t3", CongregationID: "c1", Number: 3},
		models.TokenTerritory{TokenID: "k1", TerritoryID: "t3"},
	)
	require.Eventually(t, func() bool { return a.territories.Load() == 2 }, time.Second, time.Millisecond)
}

func TestClose(t *testing.T) {
	a := newTestApp(t, ann)
	require.NoError(t, a.Close(context.Background()))
	assert.True(t, a.fauth.closed)

	_, open := <-a.searcher.Results()
	assert.False(t, open)
}
