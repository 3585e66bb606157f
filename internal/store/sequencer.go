package store

import (
	"context"
	"sync"
)

// sequencer serializes work per key in the order acquire is called.
type sequencer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{tails: map[string]chan struct{}{}}
}

// acquire blocks until every earlier holder of key has released. If ctx ends
// first, the slot is released on the caller's behalf once its predecessor finishes.
func (s *sequencer) acquire(ctx context.Context, key string) (func(), error) {
	done := make(chan struct{})
	s.mu.Lock()
	prev := s.tails[key]
	s.tails[key] = done
	s.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			if s.tails[key] == done {
				delete(s.tails, key)
			}
			s.mu.Unlock()
			close(done)
		})
	}
	if prev == nil {
		return release, nil
	}
	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}

func (s *sequencer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}
