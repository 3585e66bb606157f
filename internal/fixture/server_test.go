package fixture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wastelink/internal/auth"
	"wastelink/internal/backend"
)

var fixedNow = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *backend.Memory) {
	t.Helper()
	mem := backend.NewMemory()
	seed, err := backend.LoadSeed("")
	require.NoError(t, err)
	require.NoError(t, seed.Apply(context.Background(), mem))
	s := NewServer(mem, nil, nil, nil)
	s.Now = func() time.Time { return fixedNow }
	return s, mem
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func as(user, role string) map[string]string {
	return map[string]string{"X-User-Id": user, "X-Role": role}
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, "GET", "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ready")
}

func TestDebugVarsListsWalkers(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(t, s.Routes(), "GET", "/debug/vars", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeMap(t, rr)
	walkers, ok := body["walkers"].([]any)
	require.True(t, ok)
	assert.Len(t, walkers, 9)
	assert.Equal(t, "approve_collector", walkers[0])
}

func TestUnknownWalker(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(t, s.Routes(), "POST", "/v1/walkers/launch_rocket/spawn", `{"ctx":{}}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestWalkerRoleChecks(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, "POST", "/v1/walkers/get_system_metrics/spawn", `{"ctx":{}}`, as("res_001", "resident"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = do(t, h, "POST", "/v1/nodes/task_seed_001/walkers/assign_collector", `{"ctx":{"collectorId":"col_001"}}`, as("col_001", "collector"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGetWasteRequestsScopesResidents(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, "POST", "/v1/walkers/get_waste_requests/spawn", `{"ctx":{}}`, as("res_001", "resident"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeMap(t, rr)["requests"], 2)

	rr = do(t, h, "POST", "/v1/walkers/get_waste_requests/spawn", `{"ctx":{"status":"completed"}}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeMap(t, rr)["requests"], 1)

	rr = do(t, h, "POST", "/v1/walkers/get_waste_requests/spawn", `{"ctx":{"status":"lost"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCollectorSeesOwnTasks(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(t, s.Routes(), "POST", "/v1/walkers/get_collector_tasks/spawn", `{"ctx":{"collectorId":"col_002"}}`, as("col_001", "collector"))
	require.Equal(t, http.StatusOK, rr.Code)
	tasks := decodeMap(t, rr)["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task_seed_002", tasks[0].(map[string]any)["id"])
}

func TestCreateWasteRequestQuotes(t *testing.T) {
	s, mem := newTestServer(t)
	rr := do(t, s.Routes(), "POST", "/v1/walkers/create_waste_request/spawn", `{"ctx":{"wasteType":"plastic","volumeKg":15}}`, as("res_001", "resident"))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "1500.00", body["estimatedFee"])
	assert.Equal(t, "KES", body["currency"])
	assert.True(t, strings.HasPrefix(body["requestId"].(string), "req_"))

	reqs, _ := mem.ListRequests(context.Background(), "")
	assert.Len(t, reqs, 3, "quoting stores nothing")

	rr = do(t, s.Routes(), "POST", "/v1/walkers/create_waste_request/spawn", `{"ctx":{"wasteType":"rubble"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateRequestStatus(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Routes()
	ch := s.Broker.Subscribe(EventsTopic)
	defer s.Broker.Unsubscribe(EventsTopic, ch)

	rr := do(t, h, "POST", "/v1/walkers/update_request_status/spawn", `{"ctx":{"requestId":"req_seed_002","newStatus":"in_progress"}}`, as("col_001", "collector"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	r, err := mem.GetRequest(context.Background(), "req_seed_002")
	require.NoError(t, err)
	assert.EqualValues(t, "in_progress", r.Status)
	evt := <-ch
	assert.Equal(t, "request.updated", evt.Type)

	rr = do(t, h, "POST", "/v1/walkers/update_request_status/spawn", `{"ctx":{"requestId":"req_seed_002","newStatus":"pending"}}`, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, "POST", "/v1/walkers/update_request_status/spawn", `{"ctx":{"requestId":"req_nope","newStatus":"cancelled"}}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestResidentMayOnlyCancelOwnRequests(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, "POST", "/v1/walkers/update_request_status/spawn", `{"ctx":{"requestId":"req_seed_001","newStatus":"assigned"}}`, as("res_001", "resident"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = do(t, h, "POST", "/v1/walkers/update_request_status/spawn", `{"ctx":{"requestId":"req_seed_001","newStatus":"cancelled"}}`, as("res_002", "resident"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = do(t, h, "POST", "/v1/walkers/update_request_status/spawn", `{"ctx":{"requestId":"req_seed_001","newStatus":"cancelled","reason":"moved"}}`, as("res_001", "resident"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "moved", mem.CancelReason("req_seed_001"))
}

func TestAssignCollector(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, "POST", "/v1/nodes/task_seed_001/walkers/assign_collector", `{"ctx":{"collectorId":"col_002"}}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	tasks, _ := mem.ListTasks(context.Background(), "col_002")
	require.Len(t, tasks, 1)
	r, _ := mem.GetRequest(context.Background(), "req_seed_001")
	assert.EqualValues(t, "assigned", r.Status)

	rr = do(t, h, "POST", "/v1/walkers/assign_collector/spawn", `{"ctx":{"collectorId":"col_002"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "needs a task node")
	rr = do(t, h, "POST", "/v1/nodes/task_seed_001/walkers/assign_collector", `{"ctx":{}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, "POST", "/v1/nodes/task_nope/walkers/assign_collector", `{"ctx":{"collectorId":"col_002"}}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSystemMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(t, s.Routes(), "POST", "/v1/walkers/get_system_metrics/spawn", `{}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeMap(t, rr)
	assert.EqualValues(t, 3, body["totalRequests"])
	assert.EqualValues(t, 1, body["completedRequests"])
	assert.EqualValues(t, 2, body["activeCollectors"])
	assert.Equal(t, "33.3%", body["recyclingRate"])
	assert.Equal(t, "+100%", body["monthlyGrowth"])
}

func TestCollectorApproval(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Routes()
	ch := s.Broker.Subscribe(EventsTopic)
	defer s.Broker.Unsubscribe(EventsTopic, ch)
	active := func() any {
		rr := do(t, h, "POST", "/v1/walkers/get_system_metrics/spawn", `{}`, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		return decodeMap(t, rr)["activeCollectors"]
	}

	rr := do(t, h, "POST", "/v1/nodes/col_004/walkers/approve_collector", `{"ctx":{"approved":true}}`, as("col_004", "collector"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, "POST", "/v1/nodes/col_004/walkers/approve_collector", `{"ctx":{"approved":true}}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	col := decodeMap(t, rr)["collector"].(map[string]any)
	assert.Equal(t, true, col["approved"])
	assert.Equal(t, "collector.updated", (<-ch).Type)
	assert.EqualValues(t, 3, active())

	rr = do(t, h, "POST", "/v1/nodes/col_001/walkers/set_collector_active", `{"ctx":{"active":false}}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 2, active())

	// rejection also deactivates
	rr = do(t, h, "POST", "/v1/nodes/col_002/walkers/approve_collector", `{"ctx":{"approved":false}}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cols, _ := mem.ListCollectors(context.Background())
	assert.False(t, cols[1].Approved)
	assert.False(t, cols[1].Active)
	assert.EqualValues(t, 1, active())

	rr = do(t, h, "POST", "/v1/nodes/col_999/walkers/set_collector_active", `{"ctx":{"active":true}}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, h, "POST", "/v1/nodes/col_001/walkers/set_collector_active", `{"ctx":{"active":"yes"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, "POST", "/v1/walkers/approve_collector/spawn", `{"ctx":{"approved":true}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "needs a collector node")
}

func TestAssignAfterCancelConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, "POST", "/v1/walkers/update_request_status/spawn", `{"ctx":{"requestId":"req_seed_001","newStatus":"cancelled"}}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, "POST", "/v1/nodes/task_seed_001/walkers/assign_collector", `{"ctx":{"collectorId":"col_002"}}`, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRecommendations(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, "POST", "/v1/walkers/get_ai_recommendations/spawn", `{"ctx":{"wasteType":"ewaste"}}`, as("res_002", "resident"))
	require.Equal(t, http.StatusOK, rr.Code)
	recs := decodeMap(t, rr)["recommendations"].([]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "high", recs[0].(map[string]any)["priority"])

	rr = do(t, h, "POST", "/v1/walkers/get_ai_recommendations/spawn", ``, as("res_002", "resident"))
	require.Equal(t, http.StatusOK, rr.Code)
	recs = decodeMap(t, rr)["recommendations"].([]any)
	assert.Equal(t, "general", recs[0].(map[string]any)["type"])
}

func TestCreateNodes(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, "POST", "/v1/nodes", `{"kind":"waste_request","data":{"wasteType":"glass","residentId":"someone","createdAt":"2025-01-19T09:00:00Z"}}`, as("res_009", "resident"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeMap(t, rr)
	id := body["id"].(string)
	assert.True(t, strings.HasPrefix(id, "req_"))
	assert.Equal(t, "res_009", body["residentId"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "2025-01-19T09:00:00Z", body["createdAt"])

	tasks, _ := mem.ListTasks(context.Background(), "")
	found := false
	for _, tk := range tasks {
		if tk.RequestID == id {
			found = true
		}
	}
	assert.True(t, found, "a pending task is opened for the new request")

	rr = do(t, h, "POST", "/v1/nodes", `{"kind":"collector_task","data":{"requestId":"`+id+`"}}`, as("res_009", "resident"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = do(t, h, "POST", "/v1/nodes", `{"kind":"collector_task","data":{"requestId":"`+id+`"}}`, nil)
	assert.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, h, "POST", "/v1/nodes", `{"kind":"collector_task","data":{"requestId":"req_nope"}}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, "POST", "/v1/nodes", `{"kind":"planet","data":{}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, "POST", "/v1/nodes", `{"data":{}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, "POST", "/v1/nodes", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNextIDIsStrictlyIncreasing(t *testing.T) {
	s, _ := newTestServer(t)
	a, b := s.nextID("req"), s.nextID("req")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(b, "req_"))
}

func TestHMACAuth(t *testing.T) {
	s, _ := newTestServer(t)
	s.Auth = auth.NewVerifier("hmac", "s3cret")
	h := s.Routes()

	rr := do(t, h, "POST", "/v1/walkers/get_waste_requests/spawn", `{}`, as("dev", "admin"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "headers are ignored outside dev mode")
	rr = do(t, h, "POST", "/v1/walkers/get_waste_requests/spawn", `{}`, map[string]string{"Authorization": "Bearer junk"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	tok, err := s.Auth.Issue(auth.Principal{UserID: "res_001", Role: "resident"}, time.Hour)
	require.NoError(t, err)
	rr = do(t, h, "POST", "/v1/walkers/get_waste_requests/spawn", `{}`, map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeMap(t, rr)["requests"], 2)
}
