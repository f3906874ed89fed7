// Package urisource populates namespaces from flat files reachable over
// http(s) or on the local filesystem. The payload is either a JSON object of
// key/value pairs or tab-separated lines; the version marker is the HTTP
// Last-Modified header or the file's mtime, so unchanged files refresh as
// no-ops without re-parsing.
package urisource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lookupd/lookupd/pkg/namespace"
	"github.com/lookupd/lookupd/pkg/populator"
)

const fetchTimeout = 30 * time.Second

// Populator fetches mapping files from URIs
type Populator struct {
	log    logrus.FieldLogger
	client *http.Client
}

// New creates a URI populator
func New(log logrus.FieldLogger) *Populator {
	return &Populator{
		log: log.WithField("component", "urisource"),
		client: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     time.Minute,
			},
		},
	}
}

// Populate fetches the file behind the definition's URI as an authoritative
// snapshot, or reports a no-op when the file has not changed since
// lastVersion.
func (p *Populator) Populate(ctx context.Context, def *namespace.Definition, lastVersion string) (*populator.Result, error) {
	uri := def.Source.URI

	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return p.fetchHTTP(ctx, uri, lastVersion)
	}

	return p.fetchFile(strings.TrimPrefix(uri, "file://"), lastVersion)
}

func (p *Populator) fetchHTTP(ctx context.Context, uri, lastVersion string) (*populator.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if lastVersion != "" {
		req.Header.Set("If-Modified-Since", lastVersion)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &populator.Result{Version: lastVersion, Snapshot: true}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to fetch %s: status %d", uri, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}

	version := resp.Header.Get("Last-Modified")

	rows, err := parsePayload(payload)
	if err != nil {
		return nil, err
	}

	return &populator.Result{Rows: rows, Version: version, Snapshot: true}, nil
}

func (p *Populator) fetchFile(path, lastVersion string) (*populator.Result, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	version := fi.ModTime().UTC().Format(http.TimeFormat)
	if version == lastVersion {
		return &populator.Result{Version: lastVersion, Snapshot: true}, nil
	}

	payload, err := os.ReadFile(path) //nolint:gosec // Operator-configured source path
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	rows, err := parsePayload(payload)
	if err != nil {
		return nil, err
	}

	return &populator.Result{Rows: rows, Version: version, Snapshot: true}, nil
}

// parsePayload decodes a mapping file. A payload starting with '{' is a JSON
// object; anything else is tab-separated "key<TAB>value" lines.
func parsePayload(payload []byte) ([]populator.Row, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		return parseJSON(trimmed)
	}

	return parseTSV(trimmed)
}

func parseJSON(payload string) ([]populator.Row, error) {
	var mapping map[string]string
	if err := json.Unmarshal([]byte(payload), &mapping); err != nil {
		return nil, fmt.Errorf("%w: %w", populator.ErrMalformedRow, err)
	}

	// JSON objects carry no ordering; sort keys for deterministic batches
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]populator.Row, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, populator.Row{Key: key, Value: mapping[key]})
	}

	return rows, nil
}

func parseTSV(payload string) ([]populator.Row, error) {
	lines := strings.Split(payload, "\n")
	rows := make([]populator.Row, 0, len(lines))

	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, "\t")
		if !found {
			return nil, fmt.Errorf("%w: line %d has no tab separator", populator.ErrMalformedRow, i+1)
		}

		rows = append(rows, populator.Row{Key: key, Value: value})
	}

	return rows, nil
}
