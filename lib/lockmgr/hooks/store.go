package hooks

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the minimal key-value interface the Journal persists its records
// in. Implementations must be safe for concurrent use.
type IStore interface {
	// Set inserts or updates a key-value pair.
	Set(key string, value []byte) (err error)
	// Delete deletes a key-value pair. Deleting a missing key is no error.
	Delete(key string) (err error)
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Keys returns every stored key in ascending order.
	Keys() (keys []string, err error)
}

// --------------------------------------------------------------------------
// Memory Store
// --------------------------------------------------------------------------

// compile time check
var _ IStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory IStore backed by a concurrent map.
type MemoryStore struct {
	data *xsync.MapOf[string, []byte]
}

// NewMemoryStore creates a new empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: xsync.NewMapOf[string, []byte](),
	}
}

func (s *MemoryStore) Set(key string, value []byte) error {
	// copy, the caller may reuse its buffer
	s.data.Store(key, append([]byte(nil), value...))
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.data.Delete(key)
	return nil
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	value, ok := s.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	keys := make([]string, 0, s.data.Size())
	s.data.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys, nil
}
