package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookupd/lookupd/pkg/manager"
	"github.com/lookupd/lookupd/pkg/namespace"
	"github.com/lookupd/lookupd/pkg/populator"
	"github.com/lookupd/lookupd/pkg/store"
)

// fakeManager implements manager.Service for handler tests, serving reads
// from a real store and scripting the mutation outcomes.
type fakeManager struct {
	store *store.Store
	infos map[string]manager.Info

	scheduleResult bool
	scheduleErr    error
	deleteResult   bool
	deleteErr      error
}

func (f *fakeManager) Start(_ context.Context) error { return nil }
func (f *fakeManager) Stop() error                   { return nil }

func (f *fakeManager) Schedule(_ *namespace.Definition) (bool, error) {
	return f.scheduleResult, f.scheduleErr
}

func (f *fakeManager) Delete(_ string) (bool, error) {
	return f.deleteResult, f.deleteErr
}

func (f *fakeManager) Lookup(name, key string) (string, bool, error) {
	return f.store.Lookup(name, key)
}

func (f *fakeManager) ReverseLookup(name, value string) ([]string, error) {
	return f.store.ReverseLookup(name, value)
}

func (f *fakeManager) Registration(name string) (manager.Info, bool) {
	info, ok := f.infos[name]
	return info, ok
}

func (f *fakeManager) Registrations() []manager.Info {
	infos := make([]manager.Info, 0, len(f.infos))
	for _, info := range f.infos {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

var _ manager.Service = (*fakeManager)(nil)

func newTestApp(t *testing.T, mgr manager.Service) *fiber.App {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	newHandlers(mgr, log).register(app.Group("/api/v1"))

	return app
}

func newTestManager(t *testing.T) *fakeManager {
	t.Helper()

	st := store.New()
	st.Register("renames")

	_, err := st.Apply("renames", []populator.Row{
		{Key: "foo", Value: "bar"},
		{Key: "bad", Value: "bar"},
		{Key: "blank", Value: ""},
	}, "v1", true)
	require.NoError(t, err)

	return &fakeManager{
		store: st,
		infos: map[string]manager.Info{
			"renames": {Name: "renames", ID: "reg-1", Version: "v1", Runs: 3, Applied: 1},
		},
	}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	defer func() {
		_ = resp.Body.Close()
	}()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body
}

func TestLookupHandler(t *testing.T) {
	app := newTestApp(t, newTestManager(t))

	t.Run("found key", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/renames/keys/foo", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "foo", body["key"])
		assert.Equal(t, "bar", body["value"])
	})

	t.Run("key mapped to empty value is found", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/renames/keys/blank", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "", body["value"])
	})

	t.Run("missing key", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/renames/keys/nope", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown namespace", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/missing/keys/foo", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestReverseLookupHandler(t *testing.T) {
	app := newTestApp(t, newTestManager(t))

	t.Run("value with keys", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/renames/values/bar", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "bar", body["value"])
		assert.Equal(t, []interface{}{"bad", "foo"}, body["keys"])
	})

	t.Run("empty value bucket", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/renames/values", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "", body["value"])
		assert.Equal(t, []interface{}{"blank"}, body["keys"])
	})

	t.Run("value with no keys", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/renames/values/never", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, []interface{}{}, body["keys"])
	})

	t.Run("unknown namespace", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/missing/values/bar", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestNamespaceHandlers(t *testing.T) {
	t.Run("list namespaces", func(t *testing.T) {
		app := newTestApp(t, newTestManager(t))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		namespaces, ok := body["namespaces"].([]interface{})
		require.True(t, ok)
		require.Len(t, namespaces, 1)
	})

	t.Run("get namespace", func(t *testing.T) {
		app := newTestApp(t, newTestManager(t))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/renames", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "renames", body["name"])
		assert.Equal(t, "v1", body["version"])
	})

	t.Run("get missing namespace", func(t *testing.T) {
		app := newTestApp(t, newTestManager(t))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/missing", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCreateNamespaceHandler(t *testing.T) {
	definitionJSON := `{
		"name": "renames",
		"source": {"kind": "uri", "uri": "https://example.com/renames.tsv"},
		"schedule": "@every 30s"
	}`

	post := func(t *testing.T, app *fiber.App, payload string) *http.Response {
		t.Helper()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/namespaces", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		return resp
	}

	t.Run("created", func(t *testing.T) {
		mgr := newTestManager(t)
		mgr.scheduleResult = true
		app := newTestApp(t, mgr)

		resp := post(t, app, definitionJSON)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, true, body["scheduled"])
	})

	t.Run("already scheduled", func(t *testing.T) {
		mgr := newTestManager(t)
		mgr.scheduleResult = false
		app := newTestApp(t, mgr)

		resp := post(t, app, definitionJSON)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, false, body["scheduled"])
	})

	t.Run("deletion in progress", func(t *testing.T) {
		mgr := newTestManager(t)
		mgr.scheduleErr = manager.ErrNamespaceDeleting
		app := newTestApp(t, mgr)

		resp := post(t, app, definitionJSON)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("manager stopped", func(t *testing.T) {
		mgr := newTestManager(t)
		mgr.scheduleErr = manager.ErrManagerStopped
		app := newTestApp(t, mgr)

		resp := post(t, app, definitionJSON)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("invalid definition", func(t *testing.T) {
		mgr := newTestManager(t)
		mgr.scheduleErr = namespace.ErrNameRequired
		app := newTestApp(t, mgr)

		resp := post(t, app, definitionJSON)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeleteNamespaceHandler(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		mgr := newTestManager(t)
		mgr.deleteResult = true
		app := newTestApp(t, mgr)

		resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/namespaces/renames", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, true, body["deleted"])
	})

	t.Run("not found", func(t *testing.T) {
		app := newTestApp(t, newTestManager(t))

		resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/namespaces/missing", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("cancellation timeout surfaces as server error", func(t *testing.T) {
		mgr := newTestManager(t)
		mgr.deleteErr = manager.ErrCancelTimeout
		app := newTestApp(t, mgr)

		resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/namespaces/renames", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}
