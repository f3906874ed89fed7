// Package namespace defines the extraction namespace value types shared by
// the cache manager, the populators and the configuration layer.
package namespace

import (
	"errors"
	"fmt"
)

// SourceKind identifies the connector used to populate a namespace
type SourceKind string

const (
	// SourceKindPostgres pulls rows from a Postgres table via database/sql
	SourceKindPostgres SourceKind = "postgres"
	// SourceKindRedis pulls the full mapping from a Redis hash
	SourceKindRedis SourceKind = "redis"
	// SourceKindURI pulls a flat file from an http(s):// URL or local path
	SourceKindURI SourceKind = "uri"
)

// Define static errors
var (
	// ErrNameRequired is returned when a definition has no name
	ErrNameRequired = errors.New("namespace name is required")
	// ErrUnknownSourceKind is returned for an unrecognized source kind
	ErrUnknownSourceKind = errors.New("unknown source kind")
	// ErrDSNRequired is returned when a postgres source has no DSN
	ErrDSNRequired = errors.New("postgres source requires a dsn")
	// ErrAddrRequired is returned when a redis source has no address
	ErrAddrRequired = errors.New("redis source requires an addr")
	// ErrURIRequired is returned when a uri source has no uri
	ErrURIRequired = errors.New("uri source requires a uri")
	// ErrTableRequired is returned when a tabular source has no object name
	ErrTableRequired = errors.New("source table is required")
	// ErrColumnsRequired is returned when key/value columns are missing
	ErrColumnsRequired = errors.New("key_column and value_column are required")
)

// Source describes where a namespace's mapping data lives
type Source struct {
	Kind SourceKind `yaml:"kind" json:"kind"`

	// DSN is the connection string for postgres sources
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`

	// Addr and DB select the redis instance for redis sources
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`
	DB   int    `yaml:"db,omitempty" json:"db,omitempty"`

	// URI is an http(s):// URL or a local file path for uri sources
	URI string `yaml:"uri,omitempty" json:"uri,omitempty"`
}

// Definition is the immutable description of one extraction namespace: a
// named mapping bound to a single external source and a refresh schedule.
type Definition struct {
	Name   string `yaml:"name" json:"name"`
	Source Source `yaml:"source" json:"source"`

	// SourceRef names a shared source declared at the server level. It is
	// resolved into Source by the configuration layer before validation.
	SourceRef string `yaml:"source_ref,omitempty" json:"source_ref,omitempty"`

	// Table is the source object holding the mapping: a SQL table for
	// postgres sources, the hash key for redis sources. Unused for uri
	// sources, where the whole payload is the mapping.
	Table string `yaml:"table,omitempty" json:"table,omitempty"`

	KeyColumn   string `yaml:"key_column,omitempty" json:"key_column,omitempty"`
	ValueColumn string `yaml:"value_column,omitempty" json:"value_column,omitempty"`

	// TSColumn names the update-timestamp column for postgres sources, or
	// the generation key for redis sources. When set, refreshes are
	// incremental merges; when empty, every refresh is a full replacement.
	TSColumn string `yaml:"ts_column,omitempty" json:"ts_column,omitempty"`

	// Schedule is the refresh schedule: "@every 30s", a cron expression,
	// or empty/"0" to run exactly once.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	// Query optionally overrides the generated SQL for postgres sources.
	// Rendered as a template with sprig functions, see sqlsource.
	Query string `yaml:"query,omitempty" json:"query,omitempty"`
}

// Versioned reports whether the namespace carries a version column and so
// uses incremental merge semantics instead of snapshot replacement.
func (d *Definition) Versioned() bool {
	return d.TSColumn != ""
}

// Validate checks the definition is complete for its source kind
func (d *Definition) Validate() error {
	if d.Name == "" {
		return ErrNameRequired
	}

	switch d.Source.Kind {
	case SourceKindPostgres:
		if d.Source.DSN == "" {
			return ErrDSNRequired
		}
		if d.Query == "" {
			if d.Table == "" {
				return ErrTableRequired
			}
			if d.KeyColumn == "" || d.ValueColumn == "" {
				return ErrColumnsRequired
			}
		}
	case SourceKindRedis:
		if d.Source.Addr == "" {
			return ErrAddrRequired
		}
		if d.Table == "" {
			return ErrTableRequired
		}
	case SourceKindURI:
		if d.Source.URI == "" {
			return ErrURIRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSourceKind, d.Source.Kind)
	}

	if _, err := d.Interval(); err != nil {
		return fmt.Errorf("invalid schedule for namespace %s: %w", d.Name, err)
	}

	return nil
}
