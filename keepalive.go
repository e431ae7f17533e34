package sessionguard

import (
	"context"
	"sync"
	"time"
)

// keepAliveRevalidator periodically forces the identity provider to re-check
// the principal's credentials. Provider-side revocation (an admin disabling
// the account at the identity layer) may never surface on the push feeds.
type keepAliveRevalidator struct {
	interval    time.Duration
	revalidate  func(ctx context.Context) error
	onRevoked   func(code RevocationCode, err error)
	onTransient func(err error)
}

// start runs the revalidation loop until the returned CancelFunc is called or
// ctx is cancelled. The CancelFunc is idempotent; after it returns, results
// from an in-flight revalidation are discarded.
func (k *keepAliveRevalidator) start(ctx context.Context) CancelFunc {
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			err := k.revalidate(ctx)

			// The timer may have been cancelled while the call was in
			// flight; a late outcome must not be acted upon.
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			if err == nil {
				continue
			}

			if code, ok := AsRevocation(err); ok {
				k.onRevoked(code, err)
				return
			}

			// Infra errors must not evict a legitimate user.
			k.onTransient(err)
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
	}
}
