// Package populator defines the narrow contract between the cache manager
// and the source-specific connectors that pull mapping rows from external
// systems.
package populator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lookupd/lookupd/pkg/namespace"
)

// Define static errors
var (
	// ErrMalformedRow is returned when a fetched row cannot be decoded
	// into a key/value pair. The whole batch fails, never part of it.
	ErrMalformedRow = errors.New("malformed source row")
	// ErrNoPopulator is returned when no populator is registered for a
	// definition's source kind
	ErrNoPopulator = errors.New("no populator registered for source kind")
)

// Row is a single key/value pair fetched from a source. Within a batch a
// later row for the same key overrides an earlier one, preserving source
// iteration order as the tie-break.
type Row struct {
	Key   string
	Value string
}

// Result is one complete fetch against a source.
//
// When Version equals the last version handed to Populate and Rows is empty,
// the source has not advanced and the refresh is a no-op. Snapshot marks the
// row set as the full authoritative mapping, to be applied wholesale rather
// than merged.
type Result struct {
	Rows     []Row
	Version  string
	Snapshot bool
}

// Noop reports whether this result proves the source has not advanced past
// lastVersion. A truly unversioned snapshot (empty Version) is never a no-op:
// its row set is authoritative every time, even when empty.
func (r *Result) Noop(lastVersion string) bool {
	if r.Snapshot && r.Version == "" {
		return false
	}

	return len(r.Rows) == 0 && r.Version == lastVersion
}

// Populator fetches mapping rows for one source kind.
//
// Implementations must be safe to call repeatedly and concurrently across
// namespaces (the manager serializes calls within a namespace), must either
// return a complete batch or fail entirely, and must honor ctx cancellation
// during source I/O.
type Populator interface {
	Populate(ctx context.Context, def *namespace.Definition, lastVersion string) (*Result, error)
}

// Registry selects a populator by the definition's declared source kind
type Registry struct {
	mu         sync.RWMutex
	populators map[namespace.SourceKind]Populator
}

// NewRegistry creates an empty populator registry
func NewRegistry() *Registry {
	return &Registry{
		populators: make(map[namespace.SourceKind]Populator),
	}
}

// Register binds a populator to a source kind, replacing any previous binding
func (r *Registry) Register(kind namespace.SourceKind, p Populator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.populators[kind] = p
}

// For returns the populator for a definition's source kind
func (r *Registry) For(def *namespace.Definition) (Populator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.populators[def.Source.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoPopulator, def.Source.Kind)
	}

	return p, nil
}
