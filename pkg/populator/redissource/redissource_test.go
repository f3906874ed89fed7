package redissource

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookupd/lookupd/internal/testutil"
	"github.com/lookupd/lookupd/pkg/namespace"
	"github.com/lookupd/lookupd/pkg/populator"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestPopulateHash(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	mr.HSet("renames", "foo", "bar")
	mr.HSet("renames", "bad", "bar")
	mr.HSet("renames", "empty string", "")

	p := New(testLogger())
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})

	def := &namespace.Definition{
		Name:   "renames",
		Source: namespace.Source{Kind: namespace.SourceKindRedis, Addr: mr.Addr()},
		Table:  "renames",
	}

	res, err := p.Populate(context.Background(), def, "")
	require.NoError(t, err)

	assert.True(t, res.Snapshot, "hash fetches are always authoritative")
	assert.Empty(t, res.Version)
	assert.Equal(t, []populator.Row{
		{Key: "bad", Value: "bar"},
		{Key: "empty string", Value: ""},
		{Key: "foo", Value: "bar"},
	}, res.Rows)
}

func TestPopulateMissingHash(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	p := New(testLogger())
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})

	def := &namespace.Definition{
		Name:   "renames",
		Source: namespace.Source{Kind: namespace.SourceKindRedis, Addr: mr.Addr()},
		Table:  "no-such-hash",
	}

	res, err := p.Populate(context.Background(), def, "")
	require.NoError(t, err)

	assert.True(t, res.Snapshot)
	assert.Empty(t, res.Rows, "a missing hash is an empty authoritative mapping")
}

func TestPopulateGenerationKey(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	mr.HSet("renames", "foo", "bar")

	p := New(testLogger())
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})

	def := &namespace.Definition{
		Name:     "renames",
		Source:   namespace.Source{Kind: namespace.SourceKindRedis, Addr: mr.Addr()},
		Table:    "renames",
		TSColumn: "renames:generation",
	}

	t.Run("absent generation key still fetches", func(t *testing.T) {
		res, err := p.Populate(context.Background(), def, "")
		require.NoError(t, err)
		assert.Len(t, res.Rows, 1)
		assert.Empty(t, res.Version)
	})

	require.NoError(t, mr.Set("renames:generation", "gen-1"))

	t.Run("new generation is fetched with its version", func(t *testing.T) {
		res, err := p.Populate(context.Background(), def, "")
		require.NoError(t, err)
		assert.Len(t, res.Rows, 1)
		assert.Equal(t, "gen-1", res.Version)
	})

	t.Run("unchanged generation short-circuits to a no-op", func(t *testing.T) {
		res, err := p.Populate(context.Background(), def, "gen-1")
		require.NoError(t, err)
		assert.Empty(t, res.Rows)
		assert.Equal(t, "gen-1", res.Version)
		assert.True(t, res.Noop("gen-1"))
	})

	require.NoError(t, mr.Set("renames:generation", "gen-2"))
	mr.HSet("renames", "baz", "qux")

	t.Run("republished generation is fetched again", func(t *testing.T) {
		res, err := p.Populate(context.Background(), def, "gen-1")
		require.NoError(t, err)
		assert.Len(t, res.Rows, 2)
		assert.Equal(t, "gen-2", res.Version)
		assert.False(t, res.Noop("gen-1"))
	})
}

func TestPopulateConnectionError(t *testing.T) {
	p := New(testLogger())
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})

	def := &namespace.Definition{
		Name:   "renames",
		Source: namespace.Source{Kind: namespace.SourceKindRedis, Addr: "127.0.0.1:1"},
		Table:  "renames",
	}

	_, err := p.Populate(context.Background(), def, "")
	require.Error(t, err)
}
