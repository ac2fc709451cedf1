package lockmgr

import (
	"fmt"
	"time"
)

// lockState is the expiry state of a lock
type lockState uint8

const (
	// stateArmed: the lock is live, its expiry timer (if any) is scheduled
	stateArmed lockState = iota
	// statePending: a call in flight owns the lock (acquire hook, release or
	// expiry), other calls can neither re-acquire nor release it until that
	// call settles
	statePending
	// stateReleased: the lock was removed from its key
	stateReleased
)

// --------------------------------------------------------------------------
// Lock
// --------------------------------------------------------------------------

// Lock is a lock granted on a key. The exported view of a Lock never changes
// after it was granted: re-acquiring the same key, mode and owner returns the
// very same *Lock, so pointer equality tells "already held" from "freshly
// granted".
type Lock struct {
	key     string
	mode    Mode
	owner   any
	primary bool
	parent  *Lock

	// expiry bookkeeping, guarded by the mutex of the owning table
	state lockState
	timer *time.Timer
	gen   uint64 // bumped on every arm/cancel, stale timer callbacks compare against it
}

func newLock(key string, mode Mode, owner any, primary bool, parent *Lock) *Lock {
	return &Lock{
		key:     key,
		mode:    mode,
		owner:   owner,
		primary: primary,
		parent:  parent,
		state:   statePending,
	}
}

// Key returns the normalized key of the lock.
func (l *Lock) Key() string { return l.key }

// Mode returns the mode of the lock.
func (l *Lock) Mode() Mode { return l.mode }

// Owner returns the owner of the lock (may be nil).
func (l *Lock) Owner() any { return l.owner }

// Primary reports whether the lock was requested by a caller. Locks captured
// on ancestor keys by escalation are not primary.
func (l *Lock) Primary() bool { return l.primary }

// Parent returns the lock captured on the parent key. Top level keys capture
// on the root key "". Nil for the root key itself or when the hierarchy is
// disabled.
func (l *Lock) Parent() *Lock { return l.parent }

// Code returns the two letter code of the lock mode.
func (l *Lock) Code() string { return l.mode.Code() }

// Type returns the long name of the lock mode.
func (l *Lock) Type() string { return l.mode.Name() }

// String returns a human-readable description of the lock.
func (l *Lock) String() string {
	if l.owner == nil {
		return fmt.Sprintf("Lock of %q for %q", l.key, l.Type())
	}
	return fmt.Sprintf("Lock of %q for %q by %q", l.key, l.Type(), fmt.Sprint(l.owner))
}

// matches reports whether the lock is the primary lock held for req
func (l *Lock) matches(req Item, comparer Comparer) bool {
	return l.primary && l.mode == req.Mode && comparer(l.owner, req.Owner)
}

// --------------------------------------------------------------------------
// Item (call boundary descriptor)
// --------------------------------------------------------------------------

// Item describes one lock of an Acquire or Release call. A zero Mode or a nil
// Owner inherit the mode and owner passed to the call.
type Item struct {
	Key   string
	Mode  Mode
	Owner any
}

// Keys builds plain items for the given keys.
func Keys(keys ...string) []Item {
	items := make([]Item, len(keys))
	for i, key := range keys {
		items[i] = Item{Key: key}
	}
	return items
}
