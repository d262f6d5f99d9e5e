package claims

import "sync"

// SecureStore is the injected persistence boundary for the device
// identifier. Implementations must provide set-once semantics: PutIfAbsent
// makes concurrent first-time callers converge on a single stored value.
type SecureStore interface {
	// Get returns the stored value for key, or ok=false if absent.
	Get(key string) (value []byte, ok bool, err error)

	// PutIfAbsent stores value under key only if no value exists yet.
	// It returns the winning value: the stored one if the key was already
	// present, otherwise the value just written.
	PutIfAbsent(key string, value []byte) (stored []byte, err error)
}

// MemoryStore is an in-memory SecureStore, safe for concurrent use.
// Intended for tests and ephemeral processes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) PutIfAbsent(key string, value []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		out := make([]byte, len(existing))
		copy(out, existing)
		return out, nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = stored

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}
