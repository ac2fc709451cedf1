package lockmgr

import (
	"context"

	"github.com/VictoriaMetrics/metrics"
)

// compile time check
var _ ILockManager = (*LockManager)(nil)

// LockManager is a hierarchical lock manager holding its locks in memory.
// It is safe for concurrent use.
type LockManager struct {
	config Config
	table  *lockTable
}

// NewLockManager validates the configuration and creates a new lock manager.
//
// Usage:
//
//	mgr, err := lockmgr.NewLockManager(lockmgr.DefaultConfig())
//	if err != nil {
//		panic(err)
//	}
//
//	locks, err := mgr.Acquire(ctx, lockmgr.Keys("db/users"), lockmgr.PW, "worker-1")
func NewLockManager(config Config) (*LockManager, error) {
	validated, err := config.validate()
	if err != nil {
		return nil, err
	}
	Logger.Debugf("created lock manager: %s", config.String())
	return &LockManager{
		config: validated,
		table:  newLockTable(validated),
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (m *LockManager) Acquire(ctx context.Context, items []Item, mode Mode, owner any) ([]*Lock, error) {
	if mode == 0 {
		mode = EX
	}
	return m.table.acquire(ctx, items, mode, owner)
}

func (m *LockManager) Release(ctx context.Context, items []Item, mode Mode, owner any) ([]*Lock, error) {
	if mode == 0 {
		mode = EX
	}
	return m.table.release(ctx, items, mode, owner)
}

func (m *LockManager) Select(keys []string, predicate func(*Lock) bool) []*Lock {
	return m.table.selectLocks(keys, predicate)
}

func (m *LockManager) Keys() []string {
	return m.table.snapshotKeys()
}

func (m *LockManager) Locks() []*Lock {
	return m.table.snapshotLocks()
}

func (m *LockManager) Describe(mode Mode, short bool) (string, bool) {
	return Describe(mode, short)
}

func (m *LockManager) Close() error {
	m.table.close()
	return nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Config returns the validated configuration (defaults filled in).
func (m *LockManager) Config() Config {
	return m.config
}

// Metrics returns the metrics set of the manager. Use its WritePrometheus
// method to expose it.
func (m *LockManager) Metrics() *metrics.Set {
	return m.table.metrics.set
}
