// Package hooks provides ready made OnAcquire and OnRelease collaborators for
// the lockmgr package.
//
// The lock manager keeps its locks in local memory only. Everything that has
// to outlive the process or reach other nodes (a journal, a replicated store,
// a notification) is plugged in through its hooks. This package contains the
// building blocks for that:
//
//   - Journal: writes one record per held lock into an IStore and deletes it
//     again when the lock is released or expires
//   - Chain: runs several actions one after another
//   - Fanout: runs several actions concurrently
//
// Hook Semantics:
//
//	A hook returning an error cancels the batch it was called with: the lock
//	manager rolls back an acquire and restores the locks of a release. A
//	hook therefore has to leave the store as it found it when it fails. The
//	Journal does that by deleting the records it wrote for the failed batch.
//
//	Composed hooks are built from actions, i.e. hooks returning an Undo for
//	their own effect. When one action of a Chain or Fanout fails, the actions
//	that succeeded are undone before the error is returned. Hooks without
//	side effects are wrapped with Stateless.
//
// Usage Example:
//
//	journal := hooks.NewJournal(hooks.NewMemoryStore())
//
//	config := lockmgr.DefaultConfig()
//	config.OnAcquire = journal.OnAcquire
//	config.OnRelease = journal.OnRelease
//
//	mgr, err := lockmgr.NewLockManager(config)
//	if err != nil {
//	    // Handle error
//	}
//
//	// every held lock has a record
//	records, err := journal.Records()
//
//	// journal and replicate, a failed replication deletes the new records
//	config.OnAcquire = hooks.Chain(journal.Acquire, replicate)
package hooks
