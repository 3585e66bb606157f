package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wastelink/internal/backend"
	"wastelink/internal/fixture"
)

func startFixture(t *testing.T) {
	t.Helper()
	mem := backend.NewMemory()
	seed, err := backend.LoadSeed("")
	require.NoError(t, err)
	require.NoError(t, seed.Apply(context.Background(), mem))
	srv := httptest.NewServer(fixture.NewServer(mem, nil, nil, nil).Routes())
	t.Cleanup(srv.Close)
	t.Setenv("WASTELINK_CLIENT_ENDPOINT", srv.URL)
	t.Setenv("WASTELINK_CLIENT_RETRIES", "0")
	t.Setenv("WASTELINK_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRequestLifecycle(t *testing.T) {
	startFixture(t)

	out, err := run(t, "requests", "create", "--type", "plastic", "--volume", "medium", "--lat=-1.29", "--lng=36.82")
	require.NoError(t, err)
	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	id := created["id"].(string)
	assert.True(t, strings.HasPrefix(id, "req_"))
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, "res_001", created["residentId"])

	out, err = run(t, "requests", "list", "--status", "pending")
	require.NoError(t, err)
	var pending []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	assert.Len(t, pending, 2)

	_, err = run(t, "requests", "cancel", id, "--reason", "changed plans")
	require.NoError(t, err)

	_, err = run(t, "requests", "cancel", "req_seed_003")
	assert.Error(t, err, "another resident's request")

	_, err = run(t, "--role", "collector", "--user", "col_001", "requests", "status", "req_seed_002", "in_progress")
	require.NoError(t, err)
}

func TestAdminCommands(t *testing.T) {
	startFixture(t)

	out, err := run(t, "--role", "admin", "--user", "ops", "tasks", "assign", "task_seed_001", "col_002")
	require.NoError(t, err)
	var task map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, "col_002", task["collectorId"])
	assert.Equal(t, "assigned", task["status"])

	out, err = run(t, "--role", "admin", "--user", "ops", "metrics")
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.EqualValues(t, 3, m["totalRequests"])

	_, err = run(t, "metrics")
	assert.Error(t, err)

	out, err = run(t, "--role", "admin", "--user", "ops", "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, `"role": "admin"`)
}

func TestCollectorCommands(t *testing.T) {
	startFixture(t)
	admin := []string{"--role", "admin", "--user", "ops"}

	out, err := run(t, append(admin, "collectors", "approve", "col_004")...)
	require.NoError(t, err)
	var c map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, "col_004", c["id"])
	assert.Equal(t, true, c["approved"])

	out, err = run(t, append(admin, "metrics")...)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.EqualValues(t, 3, m["activeCollectors"])

	out, err = run(t, append(admin, "collectors", "deactivate", "col_001")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, false, c["active"])

	_, err = run(t, append(admin, "collectors", "activate", "col_999")...)
	assert.Error(t, err)
	_, err = run(t, "--role", "collector", "--user", "col_004", "collectors", "approve", "col_004")
	assert.Error(t, err)
}

func TestTokenAndVersion(t *testing.T) {
	startFixture(t)
	out, err := run(t, "--role", "collector", "--user", "col_001", "token")
	require.NoError(t, err)
	assert.Contains(t, out, `"token": "col_001:collector"`)

	_, err = run(t, "--role", "mayor", "token")
	assert.Error(t, err)

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
}
