package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errTest = errors.New("test")

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// hookSpy records every batch it is called with and fails on demand
type hookSpy struct {
	mu    sync.Mutex
	calls [][]*Lock
	fail  atomic.Bool
}

func (s *hookSpy) hook(_ context.Context, locks []*Lock) error {
	s.mu.Lock()
	s.calls = append(s.calls, locks)
	s.mu.Unlock()
	if s.fail.Load() {
		return errTest
	}
	return nil
}

func (s *hookSpy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *hookSpy) last() []*Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

// newTestManager creates a manager with spies for both hooks
func newTestManager(t testing.TB, timeout time.Duration) (*LockManager, *hookSpy, *hookSpy) {
	t.Helper()
	onAcquire, onRelease := &hookSpy{}, &hookSpy{}
	config := DefaultConfig()
	config.OnAcquire = onAcquire.hook
	config.OnRelease = onRelease.hook
	config.OnError = func(error, []*Lock) {}
	config.Timeout = timeout
	mgr, err := NewLockManager(config)
	if err != nil {
		t.Fatalf("NewLockManager failed: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, onAcquire, onRelease
}

// view renders locks as comparable strings: key|code|owner|primary
func view(locks []*Lock) []string {
	out := make([]string, len(locks))
	for i, l := range locks {
		kind := "captured"
		if l.Primary() {
			kind = "primary"
		}
		out[i] = fmt.Sprintf("%s|%s|%v|%s", l.Key(), l.Code(), l.Owner(), kind)
	}
	return out
}

// mustAcquire acquires or fails the test
func mustAcquire(t testing.TB, mgr *LockManager, items []Item, mode Mode, owner any) []*Lock {
	t.Helper()
	locks, err := mgr.Acquire(context.Background(), items, mode, owner)
	if err != nil {
		t.Fatalf("Acquire(%v, %s, %v) failed: %v", items, mode, owner, err)
	}
	return locks
}

// checkInvariants verifies ancestor consistency and mutual compatibility on
// a snapshot of the manager
func checkInvariants(t testing.TB, mgr *LockManager) {
	t.Helper()
	locks := mgr.Locks()
	present := make(map[*Lock]bool, len(locks))
	byKey := make(map[string][]*Lock)
	for _, l := range locks {
		present[l] = true
		byKey[l.Key()] = append(byKey[l.Key()], l)
	}

	delimiter := mgr.Config().Delimiter
	for _, l := range locks {
		if l.Key() == "" || delimiter == "" {
			if l.Parent() != nil {
				t.Errorf("%s should have no parent", l)
			}
			continue
		}
		parentKey := ""
		if i := strings.LastIndex(l.Key(), delimiter); i > 0 {
			parentKey = l.Key()[:i]
		}
		p := l.Parent()
		switch {
		case p == nil:
			t.Errorf("%s has no captured parent", l)
		case p.Key() != parentKey || p.Mode() != l.Mode().Escalation() || p.Primary():
			t.Errorf("%s has wrong parent %s", l, p)
		case !present[p]:
			t.Errorf("parent of %s is not held", l)
		}
	}

	for key, held := range byKey {
		for i := range held {
			for j := i + 1; j < len(held); j++ {
				if !held[i].Mode().Compatible(held[j].Mode()) {
					t.Errorf("incompatible locks on %q: %s and %s", key, held[i], held[j])
				}
			}
		}
	}
}

// eventually polls cond until it holds or the timeout elapses
func eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
