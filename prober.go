package sessionguard

import (
	"context"
	"sync"
	"time"
)

// missingRecordProber confirms (rather than merely suspects) that a profile
// record is absent. A replica feed reporting non-existence is escalated here
// before anyone acts on it.
type missingRecordProber struct {
	store        ProfileStore
	connectivity ConnectivityProbe
	delay        time.Duration
	errors       ErrorSink
	logger       Logger

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

func newMissingRecordProber(store ProfileStore, connectivity ConnectivityProbe, delay time.Duration, errors ErrorSink, logger Logger) *missingRecordProber {
	return &missingRecordProber{
		store:        store,
		connectivity: connectivity,
		delay:        delay,
		errors:       errors,
		logger:       logger,
		inflight:     make(map[string]chan struct{}),
	}
}

// ConfirmMissing returns true only when a strongly-consistent check confirms
// the record is absent. Conservative on every other path: offline, superseded,
// cancelled, or erroring probes all return false, preferring a live session
// over a wrong termination.
func (p *missingRecordProber) ConfirmMissing(ctx context.Context, accountID string) bool {
	superseded := p.register(accountID)

	if !p.connectivity.Online() {
		p.logger.Debug("probe skipped, client offline account=%s", accountID)
		p.release(accountID, superseded)
		return false
	}

	// Debounce against transient read-path staleness.
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-superseded:
		return false
	case <-ctx.Done():
		p.release(accountID, superseded)
		return false
	}

	exists, err := p.store.ExistsStronglyConsistent(ctx, accountID)
	if err != nil {
		p.errors.Report(err)
		p.logger.Warn("strongly-consistent existence check failed account=%s err=%v", accountID, err)
		p.release(accountID, superseded)
		return false
	}

	// A newer probe or a teardown took over while the read was in flight;
	// this result must not be acted upon.
	select {
	case <-superseded:
		return false
	default:
	}
	p.release(accountID, superseded)

	return !exists
}

// Cancel invalidates any in-flight probe for accountID.
func (p *missingRecordProber) Cancel(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.inflight[accountID]; ok {
		close(ch)
		delete(p.inflight, accountID)
	}
}

// register cancels the previous probe for accountID and installs this one.
// Only the latest probe for an account matters.
func (p *missingRecordProber) register(accountID string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.inflight[accountID]; ok {
		close(prev)
	}
	ch := make(chan struct{})
	p.inflight[accountID] = ch
	return ch
}

func (p *missingRecordProber) release(accountID string, ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.inflight[accountID]; ok && current == ch {
		delete(p.inflight, accountID)
	}
}
