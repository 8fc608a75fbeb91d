package storage

import (
	"context"
)

// watcher is one live query. dirty holds at most one pending signal so
// bursts of writes collapse into a single re-query.
type watcher struct {
	match func(dep, arr string) bool
	dirty chan struct{}
}

func (s *Store) subscribe(w *watcher) func() {
	s.watchMu.Lock()
	s.watchers[w] = struct{}{}
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, w)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify(dep, arr string) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for w := range s.watchers {
		if w.match(dep, arr) {
			w.mark()
		}
	}
}

func (s *Store) notifyAll() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for w := range s.watchers {
		w.mark()
	}
}

func (w *watcher) mark() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

// watch runs query once immediately and again after every matching write,
// delivering results on the returned channel until ctx ends. A slow
// consumer only ever sees the latest result.
func watch[T any](ctx context.Context, s *Store, match func(dep, arr string) bool, query func(context.Context) (T, error)) <-chan T {
	out := make(chan T)
	w := &watcher{match: match, dirty: make(chan struct{}, 1)}
	w.mark()
	unsubscribe := s.subscribe(w)

	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.dirty:
			}

			v, err := query(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn().Err(err).Msg("live query failed")
				continue
			}

			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// WatchRoute streams the records of one route: the current list first,
// then a fresh list after each write touching that route.
func (s *Store) WatchRoute(ctx context.Context, dep, arr string) <-chan []FlightRecord {
	return watch(ctx, s,
		func(d, a string) bool { return d == dep && a == arr },
		func(ctx context.Context) ([]FlightRecord, error) { return s.QueryByRoute(ctx, dep, arr) },
	)
}

// WatchStatistics streams AverageAdjustedDurationByRoute, recomputed
// after every write.
func (s *Store) WatchStatistics(ctx context.Context) <-chan []RouteStatistic {
	return watch(ctx, s,
		func(string, string) bool { return true },
		s.AverageAdjustedDurationByRoute,
	)
}

// Invalidate re-runs every live query. Writes made by another process
// over the same database file are only seen after a call to Invalidate.
func (s *Store) Invalidate() { s.notifyAll() }
