package catalog

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by a load that was overtaken by a newer one
var ErrSuperseded = errors.New("superseded by a newer request")

// Site is one fetch site, e.g. the listing of a category tab. The most
// recently started load wins: starting a load cancels the one in flight, and
// a completion that is no longer the latest is discarded.
type Site[T any] struct {
	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	loading  bool
	value    T
	hasValue bool
}

// Load runs fetch as the newest request of the site. It returns ErrSuperseded
// when a newer load started before fetch completed.
func (s *Site[T]) Load(ctx context.Context, fetch func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.gen == gen {
			s.loading = false
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	v, err := fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.gen != gen {
		return zero, ErrSuperseded
	}
	if err != nil {
		return zero, err
	}

	s.value = v
	s.hasValue = true
	return v, nil
}

// Loading reports whether the latest load is still running
func (s *Site[T]) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Latest returns the last applied value
func (s *Site[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// Generation returns the number of loads started so far
func (s *Site[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Cancel aborts the load in flight, if any
func (s *Site[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
