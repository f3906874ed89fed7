package store

import (
	"github.com/google/uuid"

	"github.com/lookupd/lookupd/pkg/populator"
)

// Snapshot is one immutable published generation of a namespace's mapping.
// Forward and Reverse are never mutated after publication; the reverse map is
// the exact inverse image of the forward map. Values of "" share a single
// reverse bucket with absent/null values.
type Snapshot struct {
	// Generation uniquely identifies this published generation
	Generation string

	// Version is the source version marker this snapshot was built from
	Version string

	Forward map[string]string
	Reverse map[string]map[string]struct{}
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Generation: uuid.NewString(),
		Forward:    map[string]string{},
		Reverse:    map[string]map[string]struct{}{},
	}
}

// buildSnapshot constructs a fresh snapshot from a full authoritative row set
func buildSnapshot(rows []populator.Row, version string) *Snapshot {
	next := &Snapshot{
		Generation: uuid.NewString(),
		Version:    version,
		Forward:    make(map[string]string, len(rows)),
		Reverse:    make(map[string]map[string]struct{}, len(rows)),
	}

	for _, row := range rows {
		next.set(row.Key, row.Value)
	}

	return next
}

// merge clones the snapshot and applies rows over it. Keys absent from the
// batch keep their previous value.
func (s *Snapshot) merge(rows []populator.Row, version string) *Snapshot {
	next := &Snapshot{
		Generation: uuid.NewString(),
		Version:    version,
		Forward:    make(map[string]string, len(s.Forward)+len(rows)),
		Reverse:    make(map[string]map[string]struct{}, len(s.Reverse)),
	}

	for key, value := range s.Forward {
		next.Forward[key] = value
	}
	for value, bucket := range s.Reverse {
		cloned := make(map[string]struct{}, len(bucket))
		for key := range bucket {
			cloned[key] = struct{}{}
		}
		next.Reverse[value] = cloned
	}

	for _, row := range rows {
		next.set(row.Key, row.Value)
	}

	return next
}

func (s *Snapshot) set(key, value string) {
	if prev, ok := s.Forward[key]; ok {
		s.unset(key, prev)
	}

	s.Forward[key] = value

	bucket, ok := s.Reverse[value]
	if !ok {
		bucket = make(map[string]struct{})
		s.Reverse[value] = bucket
	}
	bucket[key] = struct{}{}
}

func (s *Snapshot) unset(key, value string) {
	bucket, ok := s.Reverse[value]
	if !ok {
		return
	}

	delete(bucket, key)
	if len(bucket) == 0 {
		delete(s.Reverse, value)
	}
}
