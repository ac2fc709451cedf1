package lockmgr

import (
	"time"
)

// keyNode holds the locks granted on one key. Every method expects the mutex
// of the owning table to be held.
type keyNode struct {
	table  *lockTable
	key    string
	parent *keyNode
	locks  []*Lock // grant order
}

// acquire grants req on this key. If an equal primary lock is already held it
// is returned with fresh=false. Otherwise the first incompatible lock (on this
// key or on an ancestor) is returned as conflict.
func (n *keyNode) acquire(req Item) (lock *Lock, fresh bool, conflict *Lock) {
	comparer := n.table.config.Comparer
	for _, present := range n.locks {
		if present.matches(req, comparer) {
			return present, false, nil
		}
	}
	if holder := n.conflicting(req.Mode); holder != nil {
		return nil, false, holder
	}

	// capture the escalated mode on the whole ancestor chain first
	var parent *Lock
	if n.parent != nil {
		if parent, conflict = n.parent.capture(req.Mode.Escalation(), req.Owner); conflict != nil {
			return nil, false, conflict
		}
	}

	lock = newLock(n.key, req.Mode, req.Owner, true, parent)
	n.locks = append(n.locks, lock)
	return lock, true, nil
}

// capture adds a non-primary lock of the given mode on this key and all of
// its ancestors. Captures are never deduplicated, each call adds a new entry.
func (n *keyNode) capture(mode Mode, owner any) (*Lock, *Lock) {
	if holder := n.conflicting(mode); holder != nil {
		return nil, holder
	}

	var parent *Lock
	if n.parent != nil {
		var conflict *Lock
		if parent, conflict = n.parent.capture(mode.Escalation(), owner); conflict != nil {
			return nil, conflict
		}
	}

	captured := newLock(n.key, mode, owner, false, parent)
	captured.state = stateArmed
	n.locks = append(n.locks, captured)
	return captured, nil
}

// conflicting returns the first present lock that does not allow mode
func (n *keyNode) conflicting(mode Mode) *Lock {
	for _, present := range n.locks {
		if !present.mode.Compatible(mode) {
			return present
		}
	}
	return nil
}

// release marks the primary lock matching req as pending and cancels its
// timer. Nil is returned if nothing matches or the match is already pending.
func (n *keyNode) release(req Item) *Lock {
	comparer := n.table.config.Comparer
	for _, present := range n.locks {
		if !present.matches(req, comparer) {
			continue
		}
		if present.state != stateArmed {
			return nil
		}
		n.cancel(present)
		present.state = statePending
		return present
	}
	return nil
}

// extend makes the lock live again and (re)schedules its expiry.
func (n *keyNode) extend(lock *Lock) {
	n.cancel(lock)
	lock.state = stateArmed

	timeout := n.table.config.Timeout
	if timeout <= 0 || n.table.closed {
		return
	}
	gen := lock.gen
	lock.timer = time.AfterFunc(timeout, func() {
		n.table.expire(lock, gen)
	})
}

// cancel stops the expiry timer of the lock and invalidates callbacks that
// already fired
func (n *keyNode) cancel(lock *Lock) {
	if lock.timer != nil {
		lock.timer.Stop()
		lock.timer = nil
	}
	lock.gen++
}

// remove deletes the lock from this key and its captured parent chain from
// the ancestors. Keys left without locks are evicted from the table.
func (n *keyNode) remove(lock *Lock) {
	found := false
	for i := len(n.locks) - 1; i >= 0; i-- {
		if n.locks[i] == lock {
			n.locks = append(n.locks[:i], n.locks[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return
	}
	n.cancel(lock)
	lock.state = stateReleased

	if len(n.locks) == 0 {
		n.table.evict(n)
	}
	if n.parent != nil && lock.parent != nil {
		n.parent.remove(lock.parent)
	}
}
