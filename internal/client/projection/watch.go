package projection

import (
	"context"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
)

// Update is one computation of a watched view.
type Update[T any] struct {
	Value T
	Err   error
}

// Watch emits load's result once immediately and again after every commit
// touching tables, until ctx is done. The channel is closed on return and
// the store subscription released with it. Commits arriving while a value
// is being computed or delivered are folded into one recomputation.
func Watch[T any](ctx context.Context, s *store.Store, tables []models.Table, load func(context.Context) (T, error)) <-chan Update[T] {
	out := make(chan Update[T])
	sub := s.Subscribe(tables...)

	go func() {
		defer close(out)
		defer sub.Close()

		emit := func() bool {
			v, err := load(ctx)
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- Update[T]{Value: v, Err: err}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.C():
				if !emit() {
					return
				}
			}
		}
	}()
	return out
}
