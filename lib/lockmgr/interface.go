package lockmgr

import (
	"context"
)

// ILockManager defines the interface of a hierarchical lock manager.
type ILockManager interface {
	// Acquire grants every item or none of them. Mode may combine several modes,
	// they are tried from the most to the least restrictive one. Zero selects EX.
	// Returns the granted (or re-affirmed) locks in input order.
	Acquire(ctx context.Context, items []Item, mode Mode, owner any) (locks []*Lock, err error)

	// Release releases every matching lock, items that match nothing are
	// skipped. A nil items slice releases the matching locks of every key.
	// Returns the locks that were released.
	Release(ctx context.Context, items []Item, mode Mode, owner any) (locks []*Lock, err error)

	// Select returns the distinct held locks of the given keys (nil = all
	// keys) that satisfy the predicate (nil = every lock).
	Select(keys []string, predicate func(*Lock) bool) []*Lock

	// Keys returns every key holding at least one lock.
	Keys() []string

	// Locks returns every held lock.
	Locks() []*Lock

	// Describe returns the long name or the short code of a mode, false for
	// unknown modes.
	Describe(mode Mode, short bool) (string, bool)

	// Close stops automatic expiry. Held locks stay in place.
	Close() error
}
