// Package lockmgr implements a hierarchical, multi-granularity lock manager
// using the classic intention lock model of distributed and database lock
// managers. It serializes access to a tree of named resources ("keys" such as
// "a/b/c") on behalf of arbitrary owners.
//
// Locks are held in local memory only. Persisting or replicating them is left
// to the OnAcquire and OnRelease hooks of the configuration (see the hooks
// sub package for ready made ones).
//
// Core Functionality:
//   - Six lock modes (NL, CR, CW, PR, PW, EX) with a fixed compatibility matrix
//   - Automatic escalation: a lock on a key captures an intention lock on every
//     ancestor key
//   - All-or-nothing batch acquire with mode fallback
//   - Best-effort batch release
//   - Automatic expiry of locks that are not re-acquired in time
//
// Modes:
//
//	mode  name               compatible with        captured on ancestors
//	NL    Null               NL CR CW PR PW EX      NL
//	CR    Concurrent Read    NL CR CW PR PW         CR
//	CW    Concurrent Write   NL CR CW               CW
//	PR    Protected Read     NL CR PR               CR
//	PW    Protected Write    NL CR                  CW
//	EX    Exclusive          NL                     CW
//
//	Modes are bit flags. A request for CR|PW is first attempted with PW and,
//	if any requested lock conflicts, again with CR.
//
// Implementation Approach:
//
//	- Key Nodes: every normalized key has a node holding the locks granted on
//	  it and a pointer to the node of its parent key (the empty key is the
//	  root). Nodes are created on demand and evicted once they hold no locks.
//
//	- Acquire: for every requested key the node checks the present locks for
//	  compatibility, captures the escalated mode on its parent (recursively up
//	  to the root) and appends the new primary lock. Re-acquiring the same key,
//	  mode and owner returns the existing lock. When every key of a pass was
//	  granted, OnAcquire is called once with the batch. If it fails, the
//	  locks granted by the call are removed again and its error is returned.
//
//	- Release: matching primary locks are marked pending, OnRelease is called
//	  once with the batch and the locks (and their captured ancestors) are
//	  removed. If OnRelease fails, the locks are restored.
//
//	- Timeouts: with a positive Config.Timeout, every granted or re-acquired
//	  lock expires after that duration. Expiry calls OnRelease with the single
//	  lock and re-arms the timer if it fails.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. A single mutex per manager guards
//	the whole table, the hooks are called without holding it. Concurrent
//	calls on overlapping keys do not queue: whichever call grants its keys
//	first holds them (provisionally while its OnAcquire hook runs), the other
//	fails with a conflict and may retry. The same holds for re-acquiring a
//	lock whose acquire, release or expiry is still in flight.
//
// Usage Example:
//
//	mgr, err := lockmgr.NewLockManager(lockmgr.DefaultConfig())
//	if err != nil {
//	    // Handle error
//	}
//
//	// Exclusive lock on a row, captures CW on "db/users" and "db"
//	locks, err := mgr.Acquire(ctx, lockmgr.Keys("db/users/42"), lockmgr.EX, "worker-1")
//	if errors.Is(err, lockmgr.ErrConflict) {
//	    // Someone else holds an incompatible lock, retry later
//	}
//
//	// ...
//
//	_, err = mgr.Release(ctx, lockmgr.Keys("db/users/42"), lockmgr.EX, "worker-1")
//
// Non Goals:
//
//	There is no deadlock detection (callers must order their locks), no wait
//	queue and no fairness. There is no consensus either, distribution is the
//	job of the hooks.
package lockmgr
