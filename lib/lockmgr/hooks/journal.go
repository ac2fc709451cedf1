package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/hlock/lib/lockmgr"
)

// recordPrefix prefixes the store key of every journal record
const recordPrefix = "lock:"

// Record is the persisted form of a held lock.
type Record struct {
	Key       string `json:"key"`
	Mode      string `json:"mode"`
	Owner     string `json:"owner,omitempty"`
	OwnerType string `json:"ownerType,omitempty"`
}

// RecordKey returns the store key of the record of a lock. Owners are
// rendered with their dynamic type and fmt, so 1 and "1" get distinct
// records while owners of one type with equal string forms share one.
func RecordKey(lock *lockmgr.Lock) string {
	r := newRecord(lock)
	return recordPrefix + r.Mode + ":" + r.OwnerType + ":" + r.Owner + ":" + r.Key
}

func newRecord(lock *lockmgr.Lock) Record {
	r := Record{Key: lock.Key(), Mode: lock.Code()}
	if owner := lock.Owner(); owner != nil {
		r.Owner = fmt.Sprint(owner)
		r.OwnerType = fmt.Sprintf("%T", owner)
	}
	return r
}

// Undo reverts the store changes of one successful journal call. Failures
// are logged, there is nobody left to return them to.
type Undo func()

// --------------------------------------------------------------------------
// Journal
// --------------------------------------------------------------------------

// Journal mirrors the held locks of a lock manager into an IStore. Use its
// OnAcquire and OnRelease methods as the hooks of the manager, or Acquire
// and Release when composing it with other hooks (see Chain and Fanout).
type Journal struct {
	store IStore
}

// NewJournal creates a journal writing to the given store.
func NewJournal(store IStore) *Journal {
	return &Journal{store: store}
}

// OnAcquire is the lockmgr.Hook form of Acquire.
func (j *Journal) OnAcquire(ctx context.Context, locks []*lockmgr.Lock) error {
	_, err := j.Acquire(ctx, locks)
	return err
}

// OnRelease is the lockmgr.Hook form of Release.
func (j *Journal) OnRelease(ctx context.Context, locks []*lockmgr.Lock) error {
	_, err := j.Release(ctx, locks)
	return err
}

// Acquire writes a record for every lock of the batch that has none yet. If
// a write fails or ctx is done, the records written by this call are deleted
// again and the error is returned, which makes the lock manager roll back
// the acquire. On success the returned Undo deletes exactly those records.
func (j *Journal) Acquire(ctx context.Context, locks []*lockmgr.Lock) (Undo, error) {
	var written []string
	undo := func() {
		for i := len(written) - 1; i >= 0; i-- {
			if err := j.store.Delete(written[i]); err != nil {
				Logger.Errorf("failed to delete journal record %q: %v", written[i], err)
			}
		}
	}
	compensate := func(cause error) (Undo, error) {
		undo()
		return nil, cause
	}

	for _, lock := range locks {
		if err := ctx.Err(); err != nil {
			return compensate(err)
		}

		key := RecordKey(lock)
		// a re-acquired lock already has its record, keep it on compensation
		_, exists, err := j.store.Get(key)
		if err != nil {
			return compensate(fmt.Errorf("journal: read %q: %w", key, err))
		}
		if exists {
			continue
		}

		value, err := json.Marshal(newRecord(lock))
		if err != nil {
			return compensate(fmt.Errorf("journal: encode %s: %w", lock, err))
		}
		if err := j.store.Set(key, value); err != nil {
			return compensate(fmt.Errorf("journal: write %q: %w", key, err))
		}
		written = append(written, key)
	}

	Logger.Debugf("journaled %d lock(s), %d new record(s)", len(locks), len(written))
	return undo, nil
}

// Release deletes the records of every lock of the batch. On the first
// failure or when ctx is done, the records deleted by this call are written
// back and the error is returned, which makes the lock manager keep the
// locks. On success the returned Undo writes exactly those records back.
func (j *Journal) Release(ctx context.Context, locks []*lockmgr.Lock) (Undo, error) {
	type deletedRecord struct {
		key   string
		value []byte
	}
	var deleted []deletedRecord
	undo := func() {
		for i := len(deleted) - 1; i >= 0; i-- {
			if err := j.store.Set(deleted[i].key, deleted[i].value); err != nil {
				Logger.Errorf("failed to restore journal record %q: %v", deleted[i].key, err)
			}
		}
	}
	compensate := func(cause error) (Undo, error) {
		undo()
		return nil, cause
	}

	for _, lock := range locks {
		if err := ctx.Err(); err != nil {
			return compensate(err)
		}
		key := RecordKey(lock)
		value, exists, err := j.store.Get(key)
		if err != nil {
			return compensate(fmt.Errorf("journal: read %q: %w", key, err))
		}
		if !exists {
			continue
		}
		if err := j.store.Delete(key); err != nil {
			return compensate(fmt.Errorf("journal: delete %q: %w", key, err))
		}
		deleted = append(deleted, deletedRecord{key: key, value: value})
	}
	Logger.Debugf("removed %d journal record(s)", len(deleted))
	return undo, nil
}

// Records returns every record held by the store, ordered by store key.
// Records that cannot be decoded are reported together after the scan.
func (j *Journal) Records() ([]Record, error) {
	keys, err := j.store.Keys()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(keys))
	var errs []error
	for _, key := range keys {
		if !strings.HasPrefix(key, recordPrefix) {
			continue
		}
		value, ok, err := j.store.Get(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			// deleted since Keys
			continue
		}
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			errs = append(errs, fmt.Errorf("journal: decode %q: %w", key, err))
			continue
		}
		records = append(records, r)
	}
	return records, errors.Join(errs...)
}
