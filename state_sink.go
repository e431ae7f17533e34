package sessionguard

import (
	"context"
	"errors"
	"sync"
)

// MultiStateSink fans Clear out to several sinks. Every sink runs even when
// an earlier one fails; errors are joined.
type MultiStateSink []SessionStateSink

// Clear implements SessionStateSink.
func (m MultiStateSink) Clear(ctx context.Context) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryStateSink holds an in-memory copy of the authenticated user and
// clears it on session end. Useful as the default local mirror alongside a
// persisted sink.
type MemoryStateSink struct {
	mu        sync.Mutex
	principal *Principal
}

// Set stores the current principal.
func (s *MemoryStateSink) Set(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
}

// Get returns the cached principal, or nil.
func (s *MemoryStateSink) Get() *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// Clear implements SessionStateSink.
func (s *MemoryStateSink) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = nil
	return nil
}
