// Package sqlsource populates namespaces from SQL tables via database/sql.
// Postgres is the supported driver; the connection pool is shared across
// namespaces pointing at the same DSN.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/lookupd/lookupd/pkg/namespace"
	"github.com/lookupd/lookupd/pkg/populator"
)

// versionFormat is how timestamp version markers are rendered. RFC3339Nano
// with fixed width keeps lexicographic and chronological order aligned.
const versionFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Populator fetches mapping rows from SQL tables
type Populator struct {
	log logrus.FieldLogger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// New creates a SQL populator
func New(log logrus.FieldLogger) *Populator {
	return &Populator{
		log: log.WithField("component", "sqlsource"),
		dbs: make(map[string]*sql.DB),
	}
}

// Populate fetches rows changed since lastVersion.
//
// With a ts column the fetch is incremental: only rows whose timestamp
// strictly exceeds lastVersion are returned, plus the maximum timestamp seen
// as the new version. Without one the full table is returned as an
// authoritative snapshot with an empty version.
func (p *Populator) Populate(ctx context.Context, def *namespace.Definition, lastVersion string) (*populator.Result, error) {
	db, err := p.db(def.Source.DSN)
	if err != nil {
		return nil, err
	}

	query, args, err := p.buildQuery(def, lastVersion)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", def.Table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	if def.Versioned() {
		return scanVersioned(rows, lastVersion)
	}

	return scanSnapshot(rows)
}

// Close releases all pooled connections
func (p *Populator) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for dsn, db := range p.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.dbs, dsn)
	}

	return firstErr
}

func (p *Populator) db(dsn string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dbs[dsn]; ok {
		return db, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	p.dbs[dsn] = db

	return db, nil
}

// buildQuery produces the fetch query and its arguments. A definition-level
// query override takes precedence over the generated statement.
func (p *Populator) buildQuery(def *namespace.Definition, lastVersion string) (string, []interface{}, error) {
	if def.Query != "" {
		query, err := renderQuery(def, lastVersion)
		return query, nil, err
	}

	key := pq.QuoteIdentifier(def.KeyColumn)
	value := pq.QuoteIdentifier(def.ValueColumn)
	table := pq.QuoteIdentifier(def.Table)

	if !def.Versioned() {
		return fmt.Sprintf("SELECT %s, %s FROM %s", key, value, table), nil, nil
	}

	ts := pq.QuoteIdentifier(def.TSColumn)

	if lastVersion == "" {
		query := fmt.Sprintf("SELECT %s, %s, %s FROM %s ORDER BY %s ASC", ts, key, value, table, ts)
		return query, nil, nil
	}

	since, err := time.Parse(versionFormat, lastVersion)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse version marker %q: %w", lastVersion, err)
	}

	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s > $1 ORDER BY %s ASC", ts, key, value, table, ts, ts)

	return query, []interface{}{since}, nil
}

// scanVersioned decodes (ts, key, value) rows and tracks the maximum
// timestamp as the new version marker. No rows means the source has not
// advanced and the previous version is echoed back as the no-op signal.
func scanVersioned(rows *sql.Rows, lastVersion string) (*populator.Result, error) {
	res := &populator.Result{Version: lastVersion}

	var maxTS time.Time
	for rows.Next() {
		var (
			ts    time.Time
			key   sql.NullString
			value sql.NullString
		)
		if err := rows.Scan(&ts, &key, &value); err != nil {
			return nil, fmt.Errorf("%w: %w", populator.ErrMalformedRow, err)
		}
		if !key.Valid {
			return nil, fmt.Errorf("%w: NULL key", populator.ErrMalformedRow)
		}

		res.Rows = append(res.Rows, populator.Row{Key: key.String, Value: value.String})
		if ts.After(maxTS) {
			maxTS = ts
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	if !maxTS.IsZero() {
		res.Version = maxTS.UTC().Format(versionFormat)
	}

	return res, nil
}

// scanSnapshot decodes (key, value) rows as a full authoritative row set
func scanSnapshot(rows *sql.Rows) (*populator.Result, error) {
	res := &populator.Result{Snapshot: true}

	for rows.Next() {
		var key, value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("%w: %w", populator.ErrMalformedRow, err)
		}
		if !key.Valid {
			return nil, fmt.Errorf("%w: NULL key", populator.ErrMalformedRow)
		}

		res.Rows = append(res.Rows, populator.Row{Key: key.String, Value: value.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return res, nil
}
