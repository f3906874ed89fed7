// Package redissource populates namespaces from Redis hashes. The hash is
// always fetched whole, so every result is an authoritative snapshot; an
// optional generation key lets refreshes short-circuit when the hash has not
// been republished since the last run.
package redissource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lookupd/lookupd/pkg/namespace"
	"github.com/lookupd/lookupd/pkg/populator"
)

// Populator fetches mapping rows from Redis hashes
type Populator struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	clients map[string]*redis.Client
}

// New creates a Redis populator
func New(log logrus.FieldLogger) *Populator {
	return &Populator{
		log:     log.WithField("component", "redissource"),
		clients: make(map[string]*redis.Client),
	}
}

// Populate fetches the full hash as a snapshot. When the definition names a
// generation key (TSColumn), an unchanged generation since lastVersion is
// reported as a no-op without reading the hash.
func (p *Populator) Populate(ctx context.Context, def *namespace.Definition, lastVersion string) (*populator.Result, error) {
	client := p.client(&def.Source)

	generation := ""
	if def.TSColumn != "" {
		val, err := client.Get(ctx, def.TSColumn).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read generation key %s: %w", def.TSColumn, err)
		}
		generation = val

		if generation != "" && generation == lastVersion {
			return &populator.Result{Version: lastVersion, Snapshot: true}, nil
		}
	}

	fields, err := client.HGetAll(ctx, def.Table).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read hash %s: %w", def.Table, err)
	}

	// Hash fields carry no ordering; sort keys so repeated fetches of the
	// same data produce identical batches.
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]populator.Row, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, populator.Row{Key: key, Value: fields[key]})
	}

	return &populator.Result{Rows: rows, Version: generation, Snapshot: true}, nil
}

// Close releases all pooled clients
func (p *Populator) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for addr, client := range p.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, addr)
	}

	return firstErr
}

func (p *Populator) client(src *namespace.Source) *redis.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := fmt.Sprintf("%s/%d", src.Addr, src.DB)
	if client, ok := p.clients[key]; ok {
		return client
	}

	client := redis.NewClient(&redis.Options{
		Addr: src.Addr,
		DB:   src.DB,
	})
	p.clients[key] = client

	return client
}
