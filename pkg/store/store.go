// Package store holds the in-memory forward and reverse lookup maps shared
// between the refresh tasks (single writer per namespace) and the query
// serving read path.
package store

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lookupd/lookupd/pkg/populator"
)

// Define static errors
var (
	// ErrUnknownNamespace is returned for reads against a namespace that
	// was never registered. Distinct from a registered namespace with no
	// data yet, which returns absent values.
	ErrUnknownNamespace = errors.New("unknown namespace")
)

// Store maps namespace names to their current published snapshot. Reads are
// lock-free once the namespace's pointer is resolved; the namespaces map
// itself only mutates on Register/Remove.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]*atomic.Pointer[Snapshot]
}

// New creates an empty store
func New() *Store {
	return &Store{
		namespaces: make(map[string]*atomic.Pointer[Snapshot]),
	}
}

// Register creates an empty snapshot for a namespace. Lookups against it
// return absent until the first refresh publishes data.
func (s *Store) Register(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.namespaces[name]; ok {
		return
	}

	ptr := &atomic.Pointer[Snapshot]{}
	ptr.Store(emptySnapshot())
	s.namespaces[name] = ptr
}

// Remove tears down a namespace's maps
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, name)
}

// Names returns the registered namespace names, sorted
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Snapshot returns the namespace's current published snapshot
func (s *Store) Snapshot(name string) (*Snapshot, error) {
	ptr, err := s.pointer(name)
	if err != nil {
		return nil, err
	}

	return ptr.Load(), nil
}

// Lookup returns the value for a key in a namespace. found is false both for
// keys absent from the mapping and for namespaces that have not completed a
// successful refresh yet.
func (s *Store) Lookup(name, key string) (value string, found bool, err error) {
	snap, err := s.Snapshot(name)
	if err != nil {
		return "", false, err
	}

	value, found = snap.Forward[key]

	return value, found, nil
}

// ReverseLookup returns the set of keys mapping to a value, sorted. The empty
// string bucket also answers lookups for absent/null values.
func (s *Store) ReverseLookup(name, value string) ([]string, error) {
	snap, err := s.Snapshot(name)
	if err != nil {
		return nil, err
	}

	bucket := snap.Reverse[value]
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

// Apply publishes a new snapshot for the namespace built from the fetched
// rows. When replace is true the row set is authoritative and the previous
// mapping is discarded; otherwise rows are merged over the current snapshot.
// Both forward and reverse maps become visible in the same atomic swap.
//
// Apply must only be called from the namespace's own refresh task; the store
// relies on that single-writer discipline instead of a CAS loop.
func (s *Store) Apply(name string, rows []populator.Row, version string, replace bool) (*Snapshot, error) {
	ptr, err := s.pointer(name)
	if err != nil {
		return nil, err
	}

	var next *Snapshot
	if replace {
		next = buildSnapshot(rows, version)
	} else {
		next = ptr.Load().merge(rows, version)
	}

	ptr.Store(next)

	return next, nil
}

func (s *Store) pointer(name string) (*atomic.Pointer[Snapshot], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ptr, ok := s.namespaces[name]
	if !ok {
		return nil, ErrUnknownNamespace
	}

	return ptr, nil
}
