// Package manager implements the namespace extraction cache manager: it
// schedules periodic refreshes per registered namespace, serializes refreshes
// within a namespace, publishes mapping snapshots atomically and makes
// cancellation observable on deletion.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lookupd/lookupd/pkg/namespace"
	"github.com/lookupd/lookupd/pkg/observability"
	"github.com/lookupd/lookupd/pkg/populator"
	"github.com/lookupd/lookupd/pkg/store"
)

// Service defines the public interface for the cache manager
type Service interface {
	// Start initializes the manager
	Start(ctx context.Context) error

	// Stop cancels and awaits every scheduled namespace task
	Stop() error

	// Schedule registers a namespace and starts its recurring refresh task.
	// Returns false when the namespace is already scheduled.
	Schedule(def *namespace.Definition) (bool, error)

	// Delete cancels a namespace's task, awaits its termination and clears
	// its cache entries. Returns false when no such namespace exists.
	Delete(name string) (bool, error)

	// Lookup returns the value for a key in a namespace
	Lookup(name, key string) (value string, found bool, err error)

	// ReverseLookup returns the set of keys mapping to a value
	ReverseLookup(name, value string) ([]string, error)

	// Registration returns diagnostics for one namespace
	Registration(name string) (Info, bool)

	// Registrations returns diagnostics for all namespaces, sorted by name
	Registrations() []Info
}

type service struct {
	log        logrus.FieldLogger
	cfg        *Config
	store      *store.Store
	populators *populator.Registry

	mu            sync.Mutex
	registrations map[string]*registration
	stopped       bool
}

// NewService creates a new cache manager
func NewService(log logrus.FieldLogger, cfg *Config, st *store.Store, populators *populator.Registry) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &service{
		log:           log.WithField("service", "manager"),
		cfg:           cfg,
		store:         st,
		populators:    populators,
		registrations: make(map[string]*registration),
	}, nil
}

// Start initializes the manager
func (s *service) Start(_ context.Context) error {
	s.log.Info("Cache manager started")

	return nil
}

// Stop cancels every namespace task and awaits termination within the
// bounded wait. A task exceeding the bound is reported, never swallowed.
func (s *service) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	regs := make([]*registration, 0, len(s.registrations))
	for _, reg := range s.registrations {
		regs = append(regs, reg)
	}
	s.mu.Unlock()

	for _, reg := range regs {
		reg.cancel()
	}

	var errs []error
	deadline := time.Now().Add(s.cfg.CancelWait)

	for _, reg := range regs {
		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-reg.done:
			timer.Stop()
		case <-timer.C:
			errs = append(errs, fmt.Errorf("%w: %s", ErrCancelTimeout, reg.def.Name))
			continue
		}

		s.teardown(reg)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.log.Info("Cache manager stopped successfully")

	return nil
}

// Schedule registers a namespace and starts its recurring refresh task.
// Re-scheduling an active namespace is a no-op reported as false; it never
// creates a second concurrent task for the same name.
func (s *service) Schedule(def *namespace.Definition) (bool, error) {
	if err := def.Validate(); err != nil {
		return false, err
	}

	interval, err := def.Interval()
	if err != nil {
		return false, err
	}

	pop, err := s.populators.For(def)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false, ErrManagerStopped
	}

	if existing, ok := s.registrations[def.Name]; ok {
		deleting := existing.isDeleting()
		s.mu.Unlock()
		if deleting {
			// Refuse to race re-creation against an in-flight delete
			return false, fmt.Errorf("%w: %s", ErrNamespaceDeleting, def.Name)
		}
		return false, nil
	}

	reg := newRegistration(def, interval)
	s.registrations[def.Name] = reg
	s.store.Register(def.Name)
	s.mu.Unlock()

	go s.runLoop(reg, pop)

	observability.RecordNamespaceRegistered(def.Name)

	s.log.WithFields(logrus.Fields{
		"namespace": def.Name,
		"source":    def.Source.Kind,
		"interval":  interval,
	}).Info("Scheduled namespace")

	return true, nil
}

// Delete cancels a namespace's refresh task, blocks until cancellation is
// observably complete and removes the registration and its cache entries.
func (s *service) Delete(name string) (bool, error) {
	s.mu.Lock()
	reg, ok := s.registrations[name]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}

	// Repeat callers, including retries after a timed-out delete, share the
	// same bounded wait below rather than failing silently.
	reg.markDeleting()
	reg.cancel()

	timer := time.NewTimer(s.cfg.CancelWait)
	defer timer.Stop()

	select {
	case <-reg.done:
	case <-timer.C:
		return false, fmt.Errorf("%w: %s", ErrCancelTimeout, name)
	}

	s.teardown(reg)

	s.log.WithField("namespace", name).Info("Deleted namespace")

	return true, nil
}

// teardown removes a terminated registration and clears its cache entries.
// Must only be called after the registration's done channel has closed.
// Concurrent deleters may race here; only the caller that still finds this
// exact registration in the table performs the removal.
func (s *service) teardown(reg *registration) {
	s.mu.Lock()
	current, ok := s.registrations[reg.def.Name]
	if !ok || current != reg {
		s.mu.Unlock()
		return
	}
	delete(s.registrations, reg.def.Name)
	s.mu.Unlock()

	s.store.Remove(reg.def.Name)

	observability.RecordNamespaceUnregistered(reg.def.Name)
}

// Lookup returns the value for a key in a namespace
func (s *service) Lookup(name, key string) (string, bool, error) {
	return s.store.Lookup(name, key)
}

// ReverseLookup returns the set of keys mapping to a value
func (s *service) ReverseLookup(name, value string) ([]string, error) {
	return s.store.ReverseLookup(name, value)
}

// Registration returns diagnostics for one namespace
func (s *service) Registration(name string) (Info, bool) {
	s.mu.Lock()
	reg, ok := s.registrations[name]
	s.mu.Unlock()

	if !ok {
		return Info{}, false
	}

	return reg.info(), true
}

// Registrations returns diagnostics for all namespaces, sorted by name
func (s *service) Registrations() []Info {
	s.mu.Lock()
	infos := make([]Info, 0, len(s.registrations))
	for _, reg := range s.registrations {
		infos = append(infos, reg.info())
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
