// Package syncer coordinates full synchronizations of the local store with
// the remote service.
//
// At most one sync runs at a time: concurrent StartupProcess(ctx, true)
// callers join the run in flight and share its result. A fetched snapshot is
// only reconciled if the identity that requested it is still the active one.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/client"
	"github.com/fieldkeeper/fieldsync/internal/client/identity"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/reconcile"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/fieldkeeper/fieldsync/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type State int

const (
	Idle State = iota
	Syncing
	Succeeded
	Failed
	// Login means nobody is logged in; sync waits for a session token.
	Login
	// AdminLogin means the administrator elevation has lapsed.
	AdminLogin
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Login:
		return "login"
	case AdminLogin:
		return "admin-login"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Options struct {
	// SyncTimeout bounds the fetch of one sync run.
	SyncTimeout time.Duration
	// AutoSyncInterval is the period of Run; 0 disables periodic sync.
	AutoSyncInterval time.Duration
}

type Orchestrator struct {
	client     client.Client
	identity   identity.Provider
	store      *store.Store
	reconciler *reconcile.Reconciler
	log        logging.Logger
	opts       Options
	now        func() time.Time

	group singleflight.Group
	// generation is bumped on every credential change; a run started under
	// an older generation is discarded.
	generation atomic.Uint64
	// credMu is held shared from the identity recheck until the commit so a
	// credential change cannot slip in between.
	credMu sync.RWMutex
	resync chan string

	mu        sync.Mutex
	state     State
	lastErr   error
	observers map[chan State]struct{}
}

func New(c client.Client, p identity.Provider, s *store.Store, r *reconcile.Reconciler, log logging.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		client:     c,
		identity:   p,
		store:      s,
		reconciler: r,
		log:        log.With("module", "syncer"),
		opts:       opts,
		now:        time.Now,
		resync:     make(chan string, 1),
		observers:  make(map[chan State]struct{}),
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError is the error of the last finished run, nil after a success.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// LastSyncedAt is the commit time of the last successful sync, zero if the
// current scope was never synced.
func (o *Orchestrator) LastSyncedAt(ctx context.Context) (time.Time, error) {
	return o.store.Meta().GetTime(ctx, common.MetaLastSyncedAt)
}

// Subscribe returns a channel of state transitions and a function that
// stops delivery. A slow observer misses transitions but not the latest one
// it has room for.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)
	o.mu.Lock()
	o.observers[ch] = struct{}{}
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.observers, ch)
			o.mu.Unlock()
		})
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
	for ch := range o.observers {
		select {
		case ch <- s:
		default:
		}
	}
}

func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()

	if err != nil {
		o.setState(Failed)
	} else {
		o.setState(Succeeded)
	}
	o.setState(Idle)
}

// CredentialsChanged must be called after the session token changes. It
// waits for a commit in progress and invalidates runs already fetching.
func (o *Orchestrator) CredentialsChanged() {
	o.credMu.Lock()
	o.generation.Add(1)
	o.credMu.Unlock()
}

// RequestResync asks Run for a full sync. Requests made while one is
// pending are merged.
func (o *Orchestrator) RequestResync(reason string) {
	select {
	case o.resync <- reason:
	default:
	}
}

// StartupProcess re-evaluates the local scope for the active identity and,
// when synchronizing is set, fetches and reconciles fresh snapshots.
func (o *Orchestrator) StartupProcess(ctx context.Context, synchronizing bool) error {
	if !synchronizing {
		return o.reevaluate(ctx)
	}

	ch := o.group.DoChan("sync", func() (any, error) {
		return nil, o.sync(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// Run syncs every AutoSyncInterval and on RequestResync until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	var tick <-chan time.Time
	if o.opts.AutoSyncInterval > 0 {
		t := time.NewTicker(o.opts.AutoSyncInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		var reason string
		select {
		case <-ctx.Done():
			return
		case <-tick:
			reason = "periodic"
		case reason = <-o.resync:
		}
		if err := o.StartupProcess(ctx, true); err != nil && ctx.Err() == nil {
			o.log.Warn(ctx, "background sync failed", "reason", reason, "error", err)
		}
	}
}

// activeIdentity maps credential errors to the blocking login states.
func (o *Orchestrator) activeIdentity(ctx context.Context) (models.Identity, error) {
	id, err := o.identity.Identity(ctx)
	switch {
	case errors.Is(err, common.ErrNoCredentials):
		o.setState(Login)
	case errors.Is(err, common.ErrAdminCredentials):
		o.setState(AdminLogin)
	}
	return id, err
}

// claimScope wipes the local store if it holds another identity's data.
func (o *Orchestrator) claimScope(ctx context.Context, fingerprint string) error {
	owner, err := o.store.Meta().GetString(ctx, common.MetaScopeOwner)
	if err != nil {
		return err
	}
	if owner == fingerprint {
		return nil
	}
	o.log.Info(ctx, "local scope changed owner, wiping synced data")
	return o.store.ResetScope(ctx, fingerprint)
}

func (o *Orchestrator) reevaluate(ctx context.Context) error {
	id, err := o.activeIdentity(ctx)
	switch {
	case errors.Is(err, common.ErrNoCredentials):
		id = models.Identity{}
	case err != nil:
		return err
	}

	if err := o.claimScope(ctx, identity.Fingerprint(id)); err != nil {
		return err
	}
	o.store.Invalidate()
	if st := o.State(); !id.Anonymous() && (st == Login || st == AdminLogin) {
		o.setState(Idle)
	}
	return nil
}

func (o *Orchestrator) sync(ctx context.Context) error {
	gen := o.generation.Load()
	id, err := o.activeIdentity(ctx)
	if err != nil {
		return err
	}
	fingerprint := identity.Fingerprint(id)
	if err := o.claimScope(ctx, fingerprint); err != nil {
		return err
	}

	log := o.log.With("sync_id", uuid.NewString())
	o.setState(Syncing)
	start := o.now()
	log.Info(ctx, "sync started", "congregation", id.CongregationID, "phone", id.Scope().Phone())

	res, err := o.fetchAndApply(ctx, id, gen, fingerprint)
	if err != nil {
		log.Error(ctx, "sync failed", "error", err)
		o.finish(err)
		return err
	}
	log.Info(ctx, "sync finished", "changed", res.Changed, "took", o.now().Sub(start))
	o.finish(nil)
	return nil
}

func (o *Orchestrator) fetchAndApply(ctx context.Context, id models.Identity, gen uint64, fingerprint string) (reconcile.Result, error) {
	scope := id.Scope()

	fetchCtx := ctx
	if o.opts.SyncTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.opts.SyncTimeout)
		defer cancel()
	}

	var (
		main  models.Snapshot
		phone *models.PhoneSnapshot
	)
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		var err error
		main, err = o.client.FetchAllData(gctx, scope.CongregationID)
		if err != nil {
			return fmt.Errorf("fetch congregation data: %w", err)
		}
		return nil
	})
	if scope.Phone() {
		g.Go(func() error {
			s, err := o.client.FetchAllPhoneData(gctx, scope.PhoneCongregationID)
			if err != nil {
				return fmt.Errorf("fetch phone data: %w", err)
			}
			phone = &s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reconcile.Result{}, err
	}

	o.credMu.RLock()
	defer o.credMu.RUnlock()

	if o.generation.Load() != gen {
		return reconcile.Result{}, common.ErrIdentityChanged
	}
	current, err := o.identity.Identity(ctx)
	if err != nil || identity.Fingerprint(current) != fingerprint {
		return reconcile.Result{}, errors.Join(common.ErrIdentityChanged, err)
	}

	return o.reconciler.Reconcile(ctx, scope, main, phone, o.now())
}
