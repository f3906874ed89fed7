package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lookupd/lookupd/pkg/namespace"
)

// registration is the per-namespace runtime record, exclusively owned by the
// manager. It holds the handle to the recurring refresh task: cancellation
// goes through cancel, completion is observable through done, which closes
// only after the task's last run has fully exited.
type registration struct {
	def      *namespace.Definition
	interval time.Duration
	id       string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Counters are read by diagnostics and tests while the task runs
	runs     atomic.Uint64
	applied  atomic.Uint64
	noops    atomic.Uint64
	failures atomic.Uint64

	mu          sync.Mutex
	lastVersion string
	deleting    bool
}

func newRegistration(def *namespace.Definition, interval time.Duration) *registration {
	ctx, cancel := context.WithCancel(context.Background())

	return &registration{
		def:      def,
		interval: interval,
		id:       uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// version returns the current version marker
func (r *registration) version() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastVersion
}

// setVersion advances the version marker after a successful publish
func (r *registration) setVersion(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastVersion = v
}

// markDeleting flags the registration for deletion so Schedule refuses to
// recreate the name until teardown completes
func (r *registration) markDeleting() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleting = true
}

func (r *registration) isDeleting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.deleting
}

// finished reports whether the refresh task has fully stopped
func (r *registration) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Info is a diagnostics snapshot of a registration. It is not part of the
// read-path contract used by query serving.
type Info struct {
	Name     string        `json:"name"`
	ID       string        `json:"id"`
	Version  string        `json:"version,omitempty"`
	Interval time.Duration `json:"interval"`
	Runs     uint64        `json:"runs"`
	Applied  uint64        `json:"applied"`
	Noops    uint64        `json:"noops"`
	Failures uint64        `json:"failures"`
	Deleting bool          `json:"deleting"`
	Done     bool          `json:"done"`
}

func (r *registration) info() Info {
	return Info{
		Name:     r.def.Name,
		ID:       r.id,
		Version:  r.version(),
		Interval: r.interval,
		Runs:     r.runs.Load(),
		Applied:  r.applied.Load(),
		Noops:    r.noops.Load(),
		Failures: r.failures.Load(),
		Deleting: r.isDeleting(),
		Done:     r.finished(),
	}
}
