package lockmgr

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// lockTable maps normalized keys to their key nodes and orchestrates the
// multi key acquire and release transactions.
//
// A single mutex guards every node of the table, since the ancestor
// invariants span several nodes. The hooks are invoked without holding it.
type lockTable struct {
	mu      sync.Mutex
	config  Config
	nodes   map[string]*keyNode
	metrics *lockMetrics
	closed  bool
}

// tracked remembers a lock together with the generation it had when this
// call took hold of it. If the generation changed in the meantime, another
// call has taken over the lock and this call must leave it alone. fresh is
// set for locks granted by the call itself.
type tracked struct {
	lock  *Lock
	gen   uint64
	fresh bool
}

func (t tracked) unchanged() bool {
	return t.lock.state == statePending && t.lock.gen == t.gen
}

func newLockTable(config Config) *lockTable {
	t := &lockTable{
		config: config,
		nodes:  make(map[string]*keyNode),
	}
	t.metrics = newLockMetrics(t)
	return t
}

// --------------------------------------------------------------------------
// Key resolution
// --------------------------------------------------------------------------

// normalize strips every leading and trailing delimiter from the key
func (t *lockTable) normalize(key string) string {
	delimiter := t.config.Delimiter
	if delimiter == "" {
		return key
	}
	for strings.HasPrefix(key, delimiter) {
		key = key[len(delimiter):]
	}
	for strings.HasSuffix(key, delimiter) {
		key = key[:len(key)-len(delimiter)]
	}
	return key
}

// resolve returns the node of a normalized key, creating it and its missing
// ancestors. Newly created nodes are appended to created.
func (t *lockTable) resolve(key string, created *[]*keyNode) *keyNode {
	if n, ok := t.nodes[key]; ok {
		return n
	}

	var parent *keyNode
	if delimiter := t.config.Delimiter; key != "" && delimiter != "" {
		parentKey := ""
		if i := strings.LastIndex(key, delimiter); i > 0 {
			parentKey = key[:i]
		}
		parent = t.resolve(parentKey, created)
	}

	n := &keyNode{table: t, key: key, parent: parent}
	t.nodes[key] = n
	*created = append(*created, n)
	return n
}

// evict drops an empty node from the table. Descendants of an empty node
// hold no locks either (every lock captures its ancestors), so no live node
// keeps a reference to an evicted one.
func (t *lockTable) evict(n *keyNode) {
	if t.nodes[n.key] == n && len(n.locks) == 0 {
		delete(t.nodes, n.key)
	}
}

// sweep evicts the nodes that were created by a call but ended up empty
func (t *lockTable) sweep(created []*keyNode) {
	for i := len(created) - 1; i >= 0; i-- {
		t.evict(created[i])
	}
}

// --------------------------------------------------------------------------
// Request expansion
// --------------------------------------------------------------------------

// passes validates the items and expands them into one request batch per
// mode of the mask (most restrictive first). Items with their own mode keep
// it in every pass; if no item inherits the call mode a single pass is made.
func (t *lockTable) passes(items []Item, mode Mode, owner any) ([][]Item, error) {
	modes, err := Expand(mode)
	if err != nil {
		return nil, err
	}

	base := make([]Item, len(items))
	inherits := false
	for i, item := range items {
		if item.Mode != 0 && !item.Mode.Known() {
			return nil, invalidArgument("lock.mode", "a known lock mode", item.Mode)
		}
		if item.Mode == 0 {
			inherits = true
		}
		if item.Owner == nil {
			item.Owner = owner
		}
		item.Key = t.normalize(item.Key)
		base[i] = item
	}
	if !inherits {
		modes = modes[:1]
	}

	passes := make([][]Item, len(modes))
	for p, m := range modes {
		requests := make([]Item, len(base))
		for i, item := range base {
			if item.Mode == 0 {
				item.Mode = m
			}
			requests[i] = item
		}
		passes[p] = requests
	}
	return passes, nil
}

// --------------------------------------------------------------------------
// Acquire
// --------------------------------------------------------------------------

// acquire grants all items or none of them. See LockManager.Acquire.
func (t *lockTable) acquire(ctx context.Context, items []Item, mode Mode, owner any) ([]*Lock, error) {
	passes, err := t.passes(items, mode, owner)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []*Lock{}, nil
	}

	t.mu.Lock()
	granted, held, conflicts := t.grant(passes)
	t.mu.Unlock()

	if conflicts != nil {
		t.metrics.conflicts.Inc()
		Logger.Debugf("acquire of %d lock(s) failed: %d conflict(s)", len(items), len(conflicts))
		return nil, t.config.AcquireError(conflicts)
	}

	// the hook runs unguarded, every lock of the batch is pending meanwhile
	start := time.Now()
	err = t.config.OnAcquire(ctx, append([]*Lock(nil), granted...))
	t.metrics.acquireHookDuration.UpdateDuration(start)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.metrics.acquireHookErrors.Inc()
		Logger.Warningf("acquire hook rejected %d lock(s), rolling back: %v", len(granted), err)
		for i := len(held) - 1; i >= 0; i-- {
			h := held[i]
			if !h.unchanged() {
				continue
			}
			if h.fresh {
				t.nodes[h.lock.key].remove(h.lock)
			} else {
				t.nodes[h.lock.key].extend(h.lock)
			}
		}
		return nil, err
	}

	for _, h := range held {
		if h.unchanged() {
			t.nodes[h.lock.key].extend(h.lock)
		}
	}
	t.metrics.acquired.Add(len(granted))
	Logger.Debugf("acquired %d lock(s) in mode %s", len(granted), granted[0].mode)
	return granted, nil
}

// grant tries every pass in order until one grants all of its requests. The
// locks of a failed pass are rolled back before the next pass starts. The
// conflicts of the last failed pass are returned if no pass succeeds.
//
// A held lock matching a request is re-affirmed only if it is armed. A
// pending match belongs to another call in flight (provisional grant,
// release or expiry) and conflicts. The locks of the successful pass are
// all left pending and returned as held, each exactly once.
func (t *lockTable) grant(passes [][]Item) ([]*Lock, []tracked, []Conflict) {
	var created []*keyNode
	defer func() { t.sweep(created) }()

	var conflicts []Conflict
	for _, requests := range passes {
		granted := make([]*Lock, 0, len(requests))
		var fresh []*Lock
		inPass := make(map[*Lock]struct{}, len(requests))
		conflicts = nil

		for _, req := range requests {
			lock, isFresh, holder := t.resolve(req.Key, &created).acquire(req)
			if lock != nil && !isFresh && lock.state != stateArmed {
				if _, ok := inPass[lock]; !ok {
					lock, holder = nil, lock
				}
			}
			if lock == nil {
				conflicts = append(conflicts, Conflict{Request: req, Holder: holder})
				break
			}
			granted = append(granted, lock)
			if isFresh {
				fresh = append(fresh, lock)
			}
			inPass[lock] = struct{}{}
		}

		if conflicts == nil {
			return granted, t.hold(granted, inPass, fresh), nil
		}
		for i := len(fresh) - 1; i >= 0; i-- {
			t.nodes[fresh[i].key].remove(fresh[i])
		}
	}
	return nil, nil, conflicts
}

// hold takes the locks of a granted pass over: re-affirmed locks lose their
// timer and become pending like the fresh ones until the hook settled
func (t *lockTable) hold(granted []*Lock, inPass map[*Lock]struct{}, fresh []*Lock) []tracked {
	isFresh := make(map[*Lock]bool, len(fresh))
	for _, lock := range fresh {
		isFresh[lock] = true
	}

	held := make([]tracked, 0, len(inPass))
	for _, lock := range granted {
		if _, ok := inPass[lock]; !ok {
			continue
		}
		delete(inPass, lock)
		if lock.state == stateArmed {
			t.nodes[lock.key].cancel(lock)
			lock.state = statePending
		}
		held = append(held, tracked{lock: lock, gen: lock.gen, fresh: isFresh[lock]})
	}
	return held
}

// --------------------------------------------------------------------------
// Release
// --------------------------------------------------------------------------

// release releases the matching locks, a nil items slice stands for every
// tracked key. See LockManager.Release.
func (t *lockTable) release(ctx context.Context, items []Item, mode Mode, owner any) ([]*Lock, error) {
	if _, err := Expand(mode); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if items == nil {
		items = Keys(t.keys()...)
	}
	passes, err := t.passes(items, mode, owner)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	var matched []tracked
	for _, requests := range passes {
		for _, req := range requests {
			n, ok := t.nodes[req.Key]
			if !ok {
				continue
			}
			if lock := n.release(req); lock != nil {
				matched = append(matched, tracked{lock: lock, gen: lock.gen})
			}
		}
	}
	t.mu.Unlock()

	if len(matched) == 0 {
		return []*Lock{}, nil
	}

	batch := make([]*Lock, len(matched))
	for i, m := range matched {
		batch[i] = m.lock
	}

	start := time.Now()
	err = t.config.OnRelease(ctx, append([]*Lock(nil), batch...))
	t.metrics.releaseHookDuration.UpdateDuration(start)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.metrics.releaseHookErrors.Inc()
		Logger.Warningf("release hook rejected %d lock(s), restoring: %v", len(batch), err)
		for _, m := range matched {
			if m.unchanged() {
				t.nodes[m.lock.key].extend(m.lock)
			}
		}
		return nil, err
	}

	released := make([]*Lock, 0, len(matched))
	for _, m := range matched {
		if m.unchanged() {
			t.nodes[m.lock.key].remove(m.lock)
			released = append(released, m.lock)
		}
	}
	t.metrics.released.Add(len(released))
	Logger.Debugf("released %d lock(s)", len(released))
	return released, nil
}

// expire is the timer callback of a lock. gen is the generation the timer
// was armed with; callbacks of cancelled or re-armed timers are dropped.
func (t *lockTable) expire(lock *Lock, gen uint64) {
	t.mu.Lock()
	if t.closed || lock.state != stateArmed || lock.gen != gen {
		t.mu.Unlock()
		return
	}
	n := t.nodes[lock.key]
	n.cancel(lock)
	lock.state = statePending
	pending := tracked{lock: lock, gen: lock.gen}
	t.mu.Unlock()

	batch := []*Lock{lock}
	err := t.config.OnRelease(context.Background(), append([]*Lock(nil), batch...))

	t.mu.Lock()
	if !pending.unchanged() {
		t.mu.Unlock()
		return
	}
	if err != nil {
		// keep the lock and try again after another timeout
		t.nodes[lock.key].extend(lock)
		t.mu.Unlock()
		t.metrics.expireHookErrors.Inc()
		t.config.OnError(err, batch)
		return
	}
	t.nodes[lock.key].remove(lock)
	t.mu.Unlock()

	t.metrics.expired.Inc()
	Logger.Debugf("expired %s", lock)
}

// close stops every expiry timer
func (t *lockTable) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	// stop the timers only, calls in flight still own their pending locks
	for _, n := range t.nodes {
		for _, lock := range n.locks {
			if lock.timer != nil {
				lock.timer.Stop()
				lock.timer = nil
			}
		}
	}
}

// --------------------------------------------------------------------------
// Views
// --------------------------------------------------------------------------

// keys returns the sorted keys that hold at least one lock (mutex held)
func (t *lockTable) keys() []string {
	keys := make([]string, 0, len(t.nodes))
	for key, n := range t.nodes {
		if len(n.locks) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// snapshotKeys returns a point in time copy of the tracked keys
func (t *lockTable) snapshotKeys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.keys()
}

// snapshotLocks returns a point in time copy of every held lock, ordered by
// key and grant order within a key
func (t *lockTable) snapshotLocks() []*Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	var locks []*Lock
	for _, key := range t.keys() {
		locks = append(locks, t.nodes[key].locks...)
	}
	if locks == nil {
		locks = []*Lock{}
	}
	return locks
}

// selectLocks returns the distinct locks of the given keys (nil = all keys)
// that satisfy the predicate (nil = every lock). The predicate runs on a
// snapshot, outside of the table mutex.
func (t *lockTable) selectLocks(keys []string, predicate func(*Lock) bool) []*Lock {
	t.mu.Lock()
	if keys == nil {
		keys = t.keys()
	}
	var candidates []*Lock
	seen := make(map[*Lock]struct{})
	for _, key := range keys {
		n, ok := t.nodes[t.normalize(key)]
		if !ok {
			continue
		}
		for _, lock := range n.locks {
			if _, dup := seen[lock]; !dup {
				seen[lock] = struct{}{}
				candidates = append(candidates, lock)
			}
		}
	}
	t.mu.Unlock()

	result := []*Lock{}
	for _, lock := range candidates {
		if predicate == nil || predicate(lock) {
			result = append(result, lock)
		}
	}
	return result
}

// count returns the number of held locks and of keys holding them
func (t *lockTable) count() (locks, keys int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.nodes {
		if len(n.locks) > 0 {
			keys++
			locks += len(n.locks)
		}
	}
	return locks, keys
}
