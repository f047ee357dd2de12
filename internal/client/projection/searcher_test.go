package projection_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSearch struct {
	mu      sync.Mutex
	queries []string
	// block, when set for a query, holds that search until ctx is done.
	block map[string]chan struct{}
}

func (r *recordingSearch) search(ctx context.Context, query string, mode projection.Mode) ([]projection.SearchResult, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	started := r.block[query]
	r.mu.Unlock()

	if started != nil {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []projection.SearchResult{{Kind: projection.KindTerritory, ID: query}}, nil
}

func (r *recordingSearch) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func expectQuiet(t *testing.T, s *projection.Searcher) {
	t.Helper()
	select {
	case u := <-s.Results():
		t.Fatalf("unexpected update for %q", u.Query)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestSearcher_DeliversOnlyLatestQuery(t *testing.T) {
	rec := &recordingSearch{}
	s := projection.NewSearcher(rec.search, 30*time.Millisecond)
	defer s.Close()

	s.Submit("a", projection.ModeTerritories)
	s.Submit("ab", projection.ModeTerritories)
	s.Submit("abc", projection.ModeTerritories)

	u := <-s.Results()
	require.NoError(t, u.Err)
	assert.Equal(t, "abc", u.Query)
	assert.Equal(t, "abc", u.Results[0].ID)
	expectQuiet(t, s)
	assert.Equal(t, []string{"abc"}, rec.seen())
}

func TestSearcher_CancelsStaleSearch(t *testing.T) {
	started := make(chan struct{})
	rec := &recordingSearch{block: map[string]chan struct{}{"slow": started}}
	s := projection.NewSearcher(rec.search, time.Millisecond)
	defer s.Close()

	s.Submit("slow", projection.ModePhoneTerritories)
	<-started
	s.Submit("fast", projection.ModePhoneTerritories)

	u := <-s.Results()
	assert.Equal(t, "fast", u.Query)
	assert.Equal(t, projection.ModePhoneTerritories, u.Mode)
	expectQuiet(t, s)
}

func TestSearcher_Close(t *testing.T) {
	rec := &recordingSearch{}
	s := projection.NewSearcher(rec.search, 20*time.Millisecond)
	s.Submit("a", projection.ModeTerritories)
	s.Close()
	s.Close()
	s.Submit("b", projection.ModeTerritories)

	_, open := <-s.Results()
	assert.False(t, open)
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.seen())
}
