package manager

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lookupd/lookupd/pkg/observability"
	"github.com/lookupd/lookupd/pkg/populator"
)

// runLoop is the recurring refresh task for one namespace. Exactly one loop
// runs per registration, which is what guarantees at-most-one refresh in
// flight per namespace. The delay is fixed and measured from the end of one
// run to the start of the next; a zero interval runs exactly once.
//
// Cancellation interrupts the inter-run wait and any in-flight source fetch
// via the registration's context, but a fetch that has already returned is
// applied and published in full so readers never observe a torn mapping.
// done closes only after the loop has fully exited.
func (s *service) runLoop(reg *registration, pop populator.Populator) {
	defer close(reg.done)

	log := s.log.WithField("namespace", reg.def.Name)

	for {
		if reg.ctx.Err() != nil {
			log.Debug("Refresh task cancelled")
			return
		}

		s.refresh(reg, pop, log)

		if reg.interval == 0 {
			log.Debug("Run-once namespace completed, not rescheduling")
			return
		}

		timer := time.NewTimer(reg.interval)
		select {
		case <-reg.ctx.Done():
			timer.Stop()
			log.Debug("Refresh task cancelled")
			return
		case <-timer.C:
		}
	}
}

// refresh performs one fetch + apply + publish cycle for a namespace
func (s *service) refresh(reg *registration, pop populator.Populator, log logrus.FieldLogger) {
	start := time.Now()
	last := reg.version()

	res, err := pop.Populate(reg.ctx, reg.def, last)

	// Every completed invocation counts, including failures and no-ops,
	// so callers can await refresh activity.
	reg.runs.Add(1)

	duration := time.Since(start).Seconds()

	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) {
			log.Debug("Fetch interrupted by cancellation")
			return
		}

		// Abandon the run without touching the cache or the version
		// marker; the next regular period retries. No tight retry loop.
		reg.failures.Add(1)
		observability.RecordRefresh(reg.def.Name, "error", duration)
		observability.RecordError("manager", "refresh_error")
		log.WithError(err).Warn("Refresh failed, retrying on next period")

		return

	case res.Noop(last):
		reg.noops.Add(1)
		observability.RecordRefresh(reg.def.Name, "noop", duration)
		log.WithField("version", last).Debug("Source unchanged, skipping cache update")

		return

	case !res.Snapshot && res.Version != "" && last != "" && res.Version < last:
		// Incremental markers are fixed-width timestamps, so string order
		// is time order and a lower marker means a stale read. Snapshot
		// markers (generations, Last-Modified) are opaque and only ever
		// compare by equality on the no-op path above.
		reg.noops.Add(1)
		observability.RecordRefresh(reg.def.Name, "noop", duration)
		log.WithFields(logrus.Fields{
			"version":      last,
			"seen_version": res.Version,
		}).Warn("Source reported stale version, keeping current mapping")

		return
	}

	replace := res.Snapshot || !reg.def.Versioned()

	snap, err := s.store.Apply(reg.def.Name, res.Rows, res.Version, replace)
	if err != nil {
		observability.RecordRefresh(reg.def.Name, "error", duration)
		log.WithError(err).Error("Failed to publish mapping")

		return
	}

	reg.setVersion(res.Version)
	reg.applied.Add(1)

	observability.RecordRefresh(reg.def.Name, "applied", time.Since(start).Seconds())
	observability.RecordNamespaceEntries(reg.def.Name, float64(len(snap.Forward)))

	log.WithFields(logrus.Fields{
		"rows":       len(res.Rows),
		"entries":    len(snap.Forward),
		"version":    res.Version,
		"generation": snap.Generation,
		"replace":    replace,
	}).Debug("Published mapping generation")
}
