package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/client"
	"github.com/fieldkeeper/fieldsync/internal/client/config"
	"github.com/fieldkeeper/fieldsync/internal/client/identity"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/projection"
	"github.com/fieldkeeper/fieldsync/internal/client/reconcile"
	"github.com/fieldkeeper/fieldsync/internal/client/services"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/client/syncer"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/fieldkeeper/fieldsync/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// pingTimeout bounds one connectivity probe.
const pingTimeout = 3 * time.Second

// Syncer is the part of the sync orchestrator the CLI drives.
type Syncer interface {
	StartupProcess(ctx context.Context, synchronizing bool) error
	RequestResync(reason string)
	Run(ctx context.Context)
	State() syncer.State
	LastError() error
	LastSyncedAt(ctx context.Context) (time.Time, error)
	Subscribe() (<-chan syncer.State, func())
}

// Mutator applies permission-checked changes.
type Mutator interface {
	Apply(ctx context.Context, m models.Mutation) (models.MutationResult, error)
}

type App struct {
	config      *config.Config
	log         logging.Logger
	store       *store.Store
	identity    identity.Provider
	authService services.AuthService
	mutations   Mutator
	sync        Syncer
	views       *projection.Views
	searcher    *projection.Searcher
	now         func() time.Time

	mu       sync.Mutex
	userName string
	Mode     Mode

	// territories is the number of territories the identity can see, kept
	// current by watchTerritories.
	territories atomic.Int64

	closers []io.Closer
}

// NewApp opens the local store and wires every client component on top of
// it. Close releases them.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	st, err := store.Open(ctx, c.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", c.DatabasePath, err)
	}

	provider := identity.NewSessionProvider(st.Meta())
	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, provider.Token)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	rec := reconcile.New(st, log)
	orchestrator := syncer.New(apiClient, provider, st, rec, log, syncer.Options{
		SyncTimeout:      c.SyncTimeout,
		AutoSyncInterval: c.AutoSyncInterval,
	})
	views := projection.New(st, provider)

	return &App{
		config:      c,
		log:         log.With("module", "cli"),
		store:       st,
		identity:    provider,
		authService: services.NewAuthService(apiClient, provider, orchestrator),
		mutations:   services.NewMutationService(apiClient, st, rec, provider, orchestrator, log),
		sync:        orchestrator,
		views:       views,
		searcher:    projection.NewSearcher(views.Search, c.SearchDebounce),
		now:         time.Now,
		closers:     []io.Closer{st},
	}, nil
}

// Close shuts down the search worker, the connection and the store.
func (a *App) Close(ctx context.Context) error {
	if a.searcher != nil {
		a.searcher.Close()
	}
	var errs []error
	if a.authService != nil {
		errs = append(errs, a.authService.Close(ctx))
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.Close(ctx); err != nil {
			a.log.Error(ctx, "shutdown", "error", err)
		}
	}()
	a.Root(ctx)
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()
	if changed {
		a.log.Info(ctx, "connectivity changed", "mode", mode)
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

func (a *App) setUser(name string) {
	a.mu.Lock()
	a.userName = name
	a.mu.Unlock()
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userName != ""
}

// refreshUser reloads the display name of the stored session.
func (a *App) refreshUser(ctx context.Context) {
	id, err := a.identity.Identity(ctx)
	switch {
	case err == nil:
		a.setUser(id.UserName)
	case errors.Is(err, common.ErrAdminCredentials):
		// still logged in; sync reports the lapsed elevation
	default:
		a.setUser("")
	}
}

// StartOnlineStatusWatcher pings the server every interval. Coming back
// online requests a resync so edits made elsewhere show up.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := a.authService.Ping(pctx)
	cancel()

	if err != nil {
		if a.mode() != ModeOffline {
			a.setMode(ctx, ModeOffline)
		}
		return
	}
	if a.mode() != ModeOnline {
		a.setMode(ctx, ModeOnline)
		if a.isLoggedIn() {
			a.sync.RequestResync("back online")
		}
	}
}

// watchState reports sync transitions that need the user's attention.
func (a *App) watchState(ctx context.Context) {
	states, stop := a.sync.Subscribe()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-states:
			switch s {
			case syncer.Failed:
				printlnFn("Sync failed:", a.sync.LastError())
			case syncer.Login:
				printlnFn("Please log in to synchronize.")
			case syncer.AdminLogin:
				printlnFn("Administrator session expired, please log in again.")
			}
		}
	}
}

// watchTerritories keeps the visible territory count for the prompt.
func (a *App) watchTerritories(ctx context.Context) {
	updates := projection.Watch(ctx, a.store, projection.TerritoryTables, a.views.TerritoriesWithKeys)
	for u := range updates {
		if u.Err != nil {
			a.log.Warn(ctx, "territory view", "error", u.Err)
			continue
		}
		a.territories.Store(int64(len(u.Value)))
	}
}
