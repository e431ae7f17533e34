// Package bunprofile implements sessionguard.ProfileStore over a Bun
// database. Watches are poll-based subscriptions; the strongly-consistent
// existence check queries the primary directly, bypassing any cache.
package bunprofile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	sessionguard "github.com/goliatone/go-sessionguard"
)

// DefaultPollInterval is the cadence of the watch loops.
const DefaultPollInterval = 2 * time.Second

// Store watches and queries profile records.
type Store struct {
	db           *bun.DB
	repo         repository.Repository[*ProfileRecord]
	pollInterval time.Duration
	logger       sessionguard.Logger
}

// Option customizes store construction.
type Option func(*Store)

// WithPollInterval overrides the watch cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger sessionguard.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Store over db.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		pollInterval: DefaultPollInterval,
		logger:       noopLogger{},
	}

	s.repo = repository.NewRepository[*ProfileRecord](db, repository.ModelHandlers[*ProfileRecord]{
		NewRecord: func() *ProfileRecord { return &ProfileRecord{} },
		GetID: func(r *ProfileRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *ProfileRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Records exposes CRUD over profile records for the surrounding application.
func (s *Store) Records() repository.Repository[*ProfileRecord] {
	return s.repo
}

// WatchRecord implements sessionguard.ProfileStore. Deliveries happen on the
// poll goroutine, never synchronously from this call.
func (s *Store) WatchRecord(ctx context.Context, accountID string, fn func(snap sessionguard.RecordSnapshot, err error)) (sessionguard.CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("bunprofile: watch callback is required")
	}

	stop := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		var last *sessionguard.RecordSnapshot
		for {
			snap, err := s.fetchSnapshot(ctx, accountID)

			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			if err != nil {
				fn(sessionguard.RecordSnapshot{}, err)
			} else if last == nil || !reflect.DeepEqual(*last, snap) {
				copied := snap
				last = &copied
				fn(snap, nil)
			}

			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() { once.Do(func() { close(stop) }) }, nil
}

// WatchDeletedFlag implements sessionguard.ProfileStore. A missing record
// reports false: no record, no marker.
func (s *Store) WatchDeletedFlag(ctx context.Context, accountID string, fn func(deleted bool, err error)) (sessionguard.CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("bunprofile: watch callback is required")
	}

	stop := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		var last *bool
		for {
			snap, err := s.fetchSnapshot(ctx, accountID)

			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			if err != nil {
				fn(false, err)
			} else {
				deleted := snap.SoftDeleted()
				if last == nil || *last != deleted {
					last = &deleted
					fn(deleted, nil)
				}
			}

			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() { once.Do(func() { close(stop) }) }, nil
}

// ExistsStronglyConsistent implements sessionguard.ProfileStore. Soft-deleted
// rows still exist; only a missing row counts as absent.
func (s *Store) ExistsStronglyConsistent(ctx context.Context, accountID string) (bool, error) {
	count, err := s.db.NewSelect().
		Model((*ProfileRecord)(nil)).
		Where("prf.account_id = ?", accountID).
		WhereAllWithDeleted().
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("bunprofile: existence check failed: %w", err)
	}
	return count > 0, nil
}

func (s *Store) fetchSnapshot(ctx context.Context, accountID string) (sessionguard.RecordSnapshot, error) {
	rec := new(ProfileRecord)
	err := s.db.NewSelect().
		Model(rec).
		Where("prf.account_id = ?", accountID).
		WhereAllWithDeleted().
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return sessionguard.RecordSnapshot{}, nil
	}
	if err != nil {
		return sessionguard.RecordSnapshot{}, fmt.Errorf("bunprofile: record fetch failed: %w", err)
	}
	return toSnapshot(rec), nil
}

func toSnapshot(rec *ProfileRecord) sessionguard.RecordSnapshot {
	snap := sessionguard.RecordSnapshot{
		Exists:      true,
		Status:      strings.ToLower(rec.Status),
		IsBanned:    rec.IsBanned,
		IsSuspended: rec.IsSuspended,
		DeletedAt:   rec.DeletedAt,
	}
	if len(rec.Metadata) > 0 {
		snap.Fields = rec.Metadata
	}
	return snap
}

var _ sessionguard.ProfileStore = (*Store)(nil)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
