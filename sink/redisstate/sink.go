// Package redisstate implements sessionguard.SessionStateSink over Redis,
// clearing the mirrored persisted copy of the authenticated user when a
// session ends.
package redisstate

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	sessionguard "github.com/goliatone/go-sessionguard"
)

// Sink deletes the configured session keys on Clear. Best effort: the
// orchestrator logs failures and proceeds with termination regardless.
type Sink struct {
	client redis.UniversalClient
	keys   []string
	prefix string
}

// Option customizes sink construction.
type Option func(*Sink)

// WithKeys sets explicit keys to delete on Clear.
func WithKeys(keys ...string) Option {
	return func(s *Sink) {
		s.keys = append(s.keys, keys...)
	}
}

// WithPrefix deletes every key under prefix on Clear, via SCAN.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = prefix
	}
}

// New builds a Sink over client.
func New(client redis.UniversalClient, opts ...Option) *Sink {
	s := &Sink{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Clear implements sessionguard.SessionStateSink.
func (s *Sink) Clear(ctx context.Context) error {
	if len(s.keys) > 0 {
		if err := s.client.Del(ctx, s.keys...).Err(); err != nil {
			return fmt.Errorf("redisstate: failed to delete session keys: %w", err)
		}
	}

	if s.prefix == "" {
		return nil
	}

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redisstate: failed to delete %q: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redisstate: scan failed: %w", err)
	}
	return nil
}

var _ sessionguard.SessionStateSink = (*Sink)(nil)
