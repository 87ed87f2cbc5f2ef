package rpcserver_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/biscuitwizard/moovcs/internal/codec/mootext"
	"github.com/biscuitwizard/moovcs/internal/ops"
	"github.com/biscuitwizard/moovcs/internal/rpcserver"
	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.Open(filepath.Join(dir, "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var clock uint64 = 1000
	now := func() uint64 { clock++; return clock }
	engine, err := ops.New(store, mootext.New(), nil, "tester", now, zap.NewNop())
	require.NoError(t, err)
	return rpcserver.New(engine, zap.NewNop())
}

func post(t *testing.T, h http.Handler, operation string, args []string) (int, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"operation": operation, "args": args})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestUnknownOperationIsBadRequest(t *testing.T) {
	h := newTestServer(t)
	code, out := post(t, h, "not_a_real_operation", nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, out["success"])
	require.Contains(t, out["result"].(string), "InvalidInput")
}

func TestObjectGetMissingIsNotFound(t *testing.T) {
	h := newTestServer(t)
	code, out := post(t, h, "object_get", []string{"nope"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, false, out["success"])
	require.Contains(t, out["result"].(string), "NotFound")
}

func TestObjectUpdateThenGetRoundTrips(t *testing.T) {
	h := newTestServer(t)
	text := "object room\nverb look\nreturn 1;\nendverb\nendobject\n"

	code, out := post(t, h, "object_update", []string{"room", text})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, out["success"])

	code, out = post(t, h, "object_get", []string{"room"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, out["success"])
	require.Contains(t, out["result"].(string), "object room")
}

func TestMissingRequiredArgumentIsBadRequest(t *testing.T) {
	h := newTestServer(t)
	code, out := post(t, h, "object_update", []string{"onlyname"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, out["result"].(string), "InvalidInput")
}
