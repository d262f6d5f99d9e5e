package dpop

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxEntries bounds replay cache memory.
	DefaultMaxEntries = 100_000

	// maxNonceLength caps stored nonce size.
	maxNonceLength = 1024

	cleanupInterval = 30 * time.Second
)

// ReplayCache is a concurrency-safe single-use nonce set. Entries expire
// after the eviction horizon, which callers should tie to the validator's
// skew tolerance: a proof older than the horizon is already rejected as
// stale, so remembering its nonce longer buys nothing.
type ReplayCache struct {
	entries    sync.Map // nonce -> expiry (int64 unix nanos)
	count      atomic.Int64
	maxEntries int64
	horizon    time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewReplayCache creates a replay cache with the given eviction horizon.
// A zero horizon uses DefaultSkewTolerance. A background sweeper reclaims
// expired entries until Close is called.
func NewReplayCache(horizon time.Duration) *ReplayCache {
	if horizon <= 0 {
		horizon = DefaultSkewTolerance
	}

	c := &ReplayCache{
		maxEntries: DefaultMaxEntries,
		horizon:    horizon,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen records a nonce, returning true if it was already present and
// unexpired. The record-or-detect step is a single LoadOrStore, so
// concurrent presentations of the same nonce cannot both pass.
func (c *ReplayCache) Seen(nonce string) (bool, error) {
	if nonce == "" || len(nonce) > maxNonceLength {
		return false, ErrInvalidNonce
	}

	now := time.Now()
	expiry := now.Add(c.horizon).UnixNano()

	for {
		prev, loaded := c.entries.LoadOrStore(nonce, expiry)
		if !loaded {
			if c.count.Add(1) > c.maxEntries {
				c.entries.Delete(nonce)
				c.count.Add(-1)
				return false, ErrCacheFull
			}
			return false, nil
		}

		if prev.(int64) > now.UnixNano() {
			return true, nil
		}

		// Expired entry: replace and treat as unseen.
		if c.entries.CompareAndSwap(nonce, prev, expiry) {
			return false, nil
		}
	}
}

// Close stops the background sweeper.
func (c *ReplayCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *ReplayCache) sweep() {
	defer close(c.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			cutoff := now.UnixNano()
			c.entries.Range(func(key, value any) bool {
				if value.(int64) <= cutoff {
					if c.entries.CompareAndDelete(key, value) {
						c.count.Add(-1)
					}
				}
				return true
			})
		}
	}
}
