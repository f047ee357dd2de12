package store

import (
	"slices"
	"sync"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
)

// ChangeSet describes one committed transaction as seen by a subscriber:
// the subscribed tables it modified, parents first.
type ChangeSet struct {
	// Seq increases with every published transaction.
	Seq    uint64
	Tables []models.Table
}

func (c ChangeSet) Has(t models.Table) bool { return slices.Contains(c.Tables, t) }

// merge folds an undelivered change set into a newer one.
func (c ChangeSet) merge(newer ChangeSet) ChangeSet {
	tables := slices.Clone(c.Tables)
	for _, t := range newer.Tables {
		if !slices.Contains(tables, t) {
			tables = append(tables, t)
		}
	}
	models.SortTables(tables)
	return ChangeSet{Seq: newer.Seq, Tables: tables}
}

// Subscription receives ChangeSets for a fixed set of tables. A slow
// subscriber never blocks writers: pending notifications coalesce into one.
type Subscription struct {
	n      *notifier
	tables map[models.Table]struct{}
	ch     chan ChangeSet

	mu     sync.Mutex
	closed bool
}

// C delivers change sets; it is closed by Close.
func (s *Subscription) C() <-chan ChangeSet { return s.ch }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.n.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) deliver(cs ChangeSet) {
	var tables []models.Table
	for _, t := range cs.Tables {
		if _, ok := s.tables[t]; ok {
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return
	}
	cs = ChangeSet{Seq: cs.Seq, Tables: tables}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case prev := <-s.ch:
		cs = prev.merge(cs)
	default:
	}
	s.ch <- cs
}

type notifier struct {
	mu   sync.Mutex
	seq  uint64
	subs map[*Subscription]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[*Subscription]struct{})}
}

func (n *notifier) subscribe(tables []models.Table) *Subscription {
	if len(tables) == 0 {
		tables = models.Tables
	}
	s := &Subscription{
		n:      n,
		tables: make(map[models.Table]struct{}, len(tables)),
		ch:     make(chan ChangeSet, 1),
	}
	for _, t := range tables {
		s.tables[t] = struct{}{}
	}

	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()
	return s
}

func (n *notifier) remove(s *Subscription) {
	n.mu.Lock()
	delete(n.subs, s)
	n.mu.Unlock()
}

func (n *notifier) publish(tables []models.Table) {
	if len(tables) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	cs := ChangeSet{Seq: n.seq, Tables: tables}
	for s := range n.subs {
		s.deliver(cs)
	}
}
