package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/hlock/lib/lockmgr"
	"github.com/google/go-cmp/cmp"
)

var errStore = errors.New("store failure")

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// faultyStore wraps a MemoryStore and fails writes once its budget is used up
type faultyStore struct {
	*MemoryStore
	mu           sync.Mutex
	setBudget    int // remaining successful Set calls, negative = unlimited
	deleteBudget int // remaining successful Delete calls, negative = unlimited
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: NewMemoryStore(), setBudget: -1, deleteBudget: -1}
}

func (s *faultyStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setBudget == 0 {
		return errStore
	}
	if s.setBudget > 0 {
		s.setBudget--
	}
	return s.MemoryStore.Set(key, value)
}

func (s *faultyStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteBudget == 0 {
		return errStore
	}
	if s.deleteBudget > 0 {
		s.deleteBudget--
	}
	return s.MemoryStore.Delete(key)
}

func (s *faultyStore) limit(sets, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBudget, s.deleteBudget = sets, deletes
}

// newJournaledManager creates a lock manager journaling into store
func newJournaledManager(t *testing.T, store IStore) (*lockmgr.LockManager, *Journal) {
	t.Helper()
	journal := NewJournal(store)
	config := lockmgr.DefaultConfig()
	config.OnAcquire = journal.OnAcquire
	config.OnRelease = journal.OnRelease
	mgr, err := lockmgr.NewLockManager(config)
	if err != nil {
		t.Fatalf("NewLockManager failed: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, journal
}

func mustRecords(t *testing.T, journal *Journal) []Record {
	t.Helper()
	records, err := journal.Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	return records
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

// TestMemoryStore tests the basic store operations
func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	value := []byte("v1")
	if err := store.Set("b", value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'x'
	if got, ok, err := store.Get("b"); err != nil || !ok || string(got) != "v1" {
		t.Errorf("Get(b) = %q, %v, %v; want v1", got, ok, err)
	}
	if _, ok, _ := store.Get("missing"); ok {
		t.Error("missing key should not be found")
	}

	_ = store.Set("a", nil)
	keys, _ := store.Keys()
	if diff := cmp.Diff([]string{"a", "b"}, keys); diff != "" {
		t.Errorf("unexpected keys (-want +got):\n%s", diff)
	}

	if err := store.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("a"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
	keys, _ = store.Keys()
	if diff := cmp.Diff([]string{"b"}, keys); diff != "" {
		t.Errorf("unexpected keys (-want +got):\n%s", diff)
	}
}

// TestJournal tests that the journal mirrors the held locks
func TestJournal(t *testing.T) {
	ctx := context.Background()
	mgr, journal := newJournaledManager(t, NewMemoryStore())

	if _, err := mgr.Acquire(ctx, lockmgr.Keys("db/users", "db/orders"), lockmgr.PW, "worker"); err != nil {
		t.Fatal(err)
	}
	// re-acquire does not duplicate the records
	if _, err := mgr.Acquire(ctx, lockmgr.Keys("db/users"), lockmgr.PW, "worker"); err != nil {
		t.Fatal(err)
	}
	want := []Record{
		{Key: "db/orders", Mode: "PW", Owner: "worker", OwnerType: "string"},
		{Key: "db/users", Mode: "PW", Owner: "worker", OwnerType: "string"},
	}
	if diff := cmp.Diff(want, mustRecords(t, journal)); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%s", diff)
	}

	if _, err := mgr.Release(ctx, lockmgr.Keys("db/users"), lockmgr.PW, "worker"); err != nil {
		t.Fatal(err)
	}
	want = want[:1]
	if diff := cmp.Diff(want, mustRecords(t, journal)); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%s", diff)
	}

	if _, err := mgr.Release(ctx, nil, lockmgr.PW, "worker"); err != nil {
		t.Fatal(err)
	}
	if records := mustRecords(t, journal); len(records) != 0 {
		t.Errorf("expected no records, got %v", records)
	}
}

// TestJournalAcquireFailure tests the compensation of a failed write
func TestJournalAcquireFailure(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	mgr, journal := newJournaledManager(t, store)

	if _, err := mgr.Acquire(ctx, lockmgr.Keys("held"), lockmgr.EX, "worker"); err != nil {
		t.Fatal(err)
	}

	// the second new record fails, the first one is deleted again
	store.limit(1, -1)
	_, err := mgr.Acquire(ctx, lockmgr.Keys("held", "a", "b"), lockmgr.EX, "worker")
	if !errors.Is(err, errStore) {
		t.Fatalf("expected the store error, got %v", err)
	}

	want := []Record{{Key: "held", Mode: "EX", Owner: "worker", OwnerType: "string"}}
	if diff := cmp.Diff(want, mustRecords(t, journal)); diff != "" {
		t.Errorf("unexpected records (-want +got):\n%s", diff)
	}
	if got := mgr.Select(nil, func(l *lockmgr.Lock) bool { return l.Primary() }); len(got) != 1 || got[0].Key() != "held" {
		t.Errorf("lock manager should have rolled back to the held lock, got %v", got)
	}
}

// TestJournalReleaseFailure tests that a failed delete restores the records
func TestJournalReleaseFailure(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	mgr, journal := newJournaledManager(t, store)

	if _, err := mgr.Acquire(ctx, lockmgr.Keys("a", "b"), lockmgr.EX, nil); err != nil {
		t.Fatal(err)
	}
	before := mustRecords(t, journal)

	store.limit(-1, 1)
	if _, err := mgr.Release(ctx, lockmgr.Keys("a", "b"), lockmgr.EX, nil); !errors.Is(err, errStore) {
		t.Fatalf("expected the store error, got %v", err)
	}
	if diff := cmp.Diff(before, mustRecords(t, journal)); diff != "" {
		t.Errorf("records should be restored (-want +got):\n%s", diff)
	}
	if len(mgr.Select([]string{"a", "b"}, nil)) != 2 {
		t.Error("locks should be kept")
	}

	store.limit(-1, -1)
	if released, err := mgr.Release(ctx, lockmgr.Keys("a", "b"), lockmgr.EX, nil); err != nil || len(released) != 2 {
		t.Fatalf("release should succeed now, got %v, %v", released, err)
	}
	if records := mustRecords(t, journal); len(records) != 0 {
		t.Errorf("expected no records, got %v", records)
	}
}

// TestJournalContext tests that a done context cancels the batch
func TestJournalContext(t *testing.T) {
	mgr, journal := newJournaledManager(t, NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mgr.Acquire(ctx, lockmgr.Keys("a"), lockmgr.EX, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(mgr.Locks()) != 0 || len(mustRecords(t, journal)) != 0 {
		t.Error("cancelled acquire should leave nothing behind")
	}

	if _, err := mgr.Acquire(context.Background(), lockmgr.Keys("a"), lockmgr.EX, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Release(ctx, lockmgr.Keys("a"), lockmgr.EX, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(mgr.Locks()) != 2 || len(mustRecords(t, journal)) != 1 {
		t.Error("cancelled release should keep the lock and its record")
	}
}

// TestRecordKey tests the record keys of locks with and without owners
func TestRecordKey(t *testing.T) {
	mgr, err := lockmgr.NewLockManager(lockmgr.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	locks, err := mgr.Acquire(context.Background(), []lockmgr.Item{
		{Key: "a/b", Owner: 42},
		{Key: "c"},
	}, lockmgr.CR, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := RecordKey(locks[0]); got != "lock:CR:int:42:a/b" {
		t.Errorf("unexpected record key %q", got)
	}
	if got := RecordKey(locks[1]); got != "lock:CR:::c" {
		t.Errorf("unexpected record key %q", got)
	}
}

// TestJournalOwnerTypes tests that owners with equal string forms but
// different types keep separate records
func TestJournalOwnerTypes(t *testing.T) {
	ctx := context.Background()
	mgr, journal := newJournaledManager(t, NewMemoryStore())

	if _, err := mgr.Acquire(ctx, lockmgr.Keys("key"), lockmgr.CR, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Acquire(ctx, lockmgr.Keys("key"), lockmgr.CR, "1"); err != nil {
		t.Fatal(err)
	}
	if records := mustRecords(t, journal); len(records) != 2 {
		t.Fatalf("expected one record per owner, got %v", records)
	}

	if _, err := mgr.Release(ctx, lockmgr.Keys("key"), lockmgr.CR, 1); err != nil {
		t.Fatal(err)
	}
	want := []Record{{Key: "key", Mode: "CR", Owner: "1", OwnerType: "string"}}
	if diff := cmp.Diff(want, mustRecords(t, journal)); diff != "" {
		t.Errorf("the record of the other owner should be kept (-want +got):\n%s", diff)
	}
}
