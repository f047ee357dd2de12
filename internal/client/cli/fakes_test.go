package cli

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/config"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/projection"
	"github.com/fieldkeeper/fieldsync/internal/client/store/storetest"
	"github.com/fieldkeeper/fieldsync/internal/client/syncer"
	"github.com/fieldkeeper/fieldsync/internal/logging"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// captureOutput redirects printlnFn into a buffer for the test.
func captureOutput(t *testing.T) *syncBuffer {
	t.Helper()
	out := &syncBuffer{}
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) { return fmt.Fprintln(out, a...) }
	t.Cleanup(func() { printlnFn = orig })
	return out
}

type staticIdentity struct {
	id  models.Identity
	err error
}

func (s *staticIdentity) Identity(context.Context) (models.Identity, error) { return s.id, s.err }

type fakeAuth struct {
	loginID  models.Identity
	loginErr error
	tokens   []string
	logouts  int
	pingErr  error
	pings    int
	closed   bool
}

func (f *fakeAuth) Login(_ context.Context, token string) (models.Identity, error) {
	f.tokens = append(f.tokens, token)
	return f.loginID, f.loginErr
}
func (f *fakeAuth) Logout(context.Context) error { f.logouts++; return nil }
func (f *fakeAuth) Ping(context.Context) error   { f.pings++; return f.pingErr }
func (f *fakeAuth) Close(context.Context) error  { f.closed = true; return nil }

type fakeSync struct {
	mu         sync.Mutex
	startups   []bool
	resyncs    []string
	startupErr error
	state      syncer.State
	lastErr    error
	syncedAt   time.Time
	states     chan syncer.State
}

func (f *fakeSync) StartupProcess(_ context.Context, synchronizing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startups = append(f.startups, synchronizing)
	if f.startupErr == nil && synchronizing {
		f.syncedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	}
	return f.startupErr
}

func (f *fakeSync) RequestResync(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncs = append(f.resyncs, reason)
}

func (f *fakeSync) Run(ctx context.Context) { <-ctx.Done() }
func (f *fakeSync) State() syncer.State    { return f.state }
func (f *fakeSync) LastError() error       { return f.lastErr }

func (f *fakeSync) LastSyncedAt(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncedAt, nil
}

func (f *fakeSync) Subscribe() (<-chan syncer.State, func()) {
	if f.states == nil {
		f.states = make(chan syncer.State, 4)
	}
	return f.states, func() {}
}

func (f *fakeSync) resyncReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resyncs...)
}

type fakeMutator struct {
	applied []models.Mutation
	err     error
}

func (f *fakeMutator) Apply(_ context.Context, m models.Mutation) (models.MutationResult, error) {
	f.applied = append(f.applied, m)
	if f.err != nil {
		return models.MutationResult{}, f.err
	}
	return models.MutationResult{Op: m.Op, Table: m.Table, Record: m.Record, ID: m.ID}, nil
}

type testApp struct {
	*App
	fauth *fakeAuth
	fsync *fakeSync
	fmut  *fakeMutator
	ident *staticIdentity
}

var ann = models.Identity{UserID: "u1", UserName: "Ann", CongregationID: "c1"}

// newTestApp builds an App over a store seeded with storetest.Hierarchy,
// logged in as id.
func newTestApp(t *testing.T, id models.Identity) *testApp {
	t.Helper()
	s := storetest.New(t)
	storetest.Seed(t, s, storetest.Hierarchy()...)

	ident := &staticIdentity{id: id}
	views := projection.New(s, ident)
	searcher := projection.NewSearcher(views.Search, time.Millisecond)
	t.Cleanup(searcher.Close)

	ta := &testApp{fauth: &fakeAuth{}, fsync: &fakeSync{}, fmut: &fakeMutator{}, ident: ident}
	ta.App = &App{
		config:      &config.Config{OnlineCheckInterval: time.Hour},
		log:         logging.Discard(),
		store:       s,
		identity:    ident,
		authService: ta.fauth,
		mutations:   ta.fmut,
		sync:        ta.fsync,
		views:       views,
		searcher:    searcher,
		now:         func() time.Time { return time.UnixMilli(5000) },
		userName:    id.UserName,
	}
	return ta
}
