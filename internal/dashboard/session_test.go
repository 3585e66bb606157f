package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wastelink/internal/model"
	"wastelink/internal/store"
	"wastelink/internal/walker"
	"wastelink/internal/walker/walkertest"
)

func setup(t *testing.T) (*walkertest.Fake, *walker.Client, *store.Store) {
	t.Helper()
	fake := walkertest.New()
	fake.Reply(store.OpGetRequests, walker.Result{"requests": []any{
		map[string]any{"id": "r1", "residentId": "alice", "wasteType": "plastic", "status": "pending", "createdAt": "2025-03-01T08:00:00Z"},
		map[string]any{"id": "r2", "residentId": "bob", "wasteType": "glass", "status": "completed", "createdAt": "2025-03-01T07:00:00Z"},
		map[string]any{"id": "r3", "residentId": "alice", "wasteType": "metal", "status": "assigned", "createdAt": "2025-03-01T06:00:00Z"},
	}})
	fake.Reply(store.OpGetTasks, walker.Result{"tasks": []any{
		map[string]any{"id": "t1", "requestId": "r3", "collectorId": "col1", "status": "assigned"},
	}})
	fake.Reply(store.OpGetMetrics, walker.Result{"totalRequests": 3, "completedRequests": 1, "activeCollectors": 1, "recyclingRate": 33.3, "monthlyGrowth": "+5%"})
	fake.Reply(store.OpRecommendations, walker.Result{"recommendations": []any{map[string]any{"type": "tip", "message": "Separate glass by colour"}}})
	fake.Reply(store.OpUpdateStatus, walker.Result{})
	c := walker.New(walker.Config{}, fake)
	require.NoError(t, c.Initialize(context.Background()))
	return fake, c, store.New(c)
}

func TestRoleCapabilities(t *testing.T) {
	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)
	_, err = ParseRole("janitor")
	assert.Error(t, err)

	assert.True(t, RoleResident.Can(CreateRequest))
	assert.False(t, RoleResident.Can(AssignTask))
	assert.True(t, RoleCollector.Can(UpdateStatus))
	assert.False(t, RoleCollector.Can(ViewMetrics))
	assert.True(t, RoleAdmin.Can(ViewMetrics))
	assert.False(t, RoleAdmin.Can(CreateRequest))
}

func TestResidentView(t *testing.T) {
	fake, c, st := setup(t)
	s := NewSession(RoleResident, "alice", st, c)

	v, err := s.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, v.Requests, 2)
	for _, r := range v.Requests {
		assert.Equal(t, "alice", r.ResidentID)
	}
	assert.Equal(t, 1, v.Counts[model.StatusPending])
	assert.Equal(t, 1, v.Counts[model.StatusAssigned])
	assert.Nil(t, v.Metrics)
	assert.Empty(t, v.Tasks)
	assert.Len(t, v.Recommendations, 1)
	assert.False(t, v.Busy)
	assert.Empty(t, fake.CallsTo(store.OpGetMetrics))

	err = s.AssignTask(context.Background(), "t1", "col1")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, s.UpdateStatus(context.Background(), "r1", model.StatusAssigned), ErrForbidden)
	assert.ErrorIs(t, s.CancelRequest(context.Background(), "r2", "not mine"), ErrForbidden)
	require.NoError(t, s.CancelRequest(context.Background(), "r1", "changed my mind"))
}

func TestResidentCreateSetsOwner(t *testing.T) {
	fake, c, st := setup(t)
	fake.Reply(store.OpCreateRequest, walker.Result{})
	s := NewSession(RoleResident, "alice", st, c)

	got, err := s.CreateRequest(context.Background(), model.PickupRequestInput{WasteType: model.WasteOrganic, ResidentID: "mallory"})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ResidentID)

	admin := NewSession(RoleAdmin, "root", st, c)
	_, err = admin.CreateRequest(context.Background(), model.PickupRequestInput{WasteType: model.WasteOrganic})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCollectorView(t *testing.T) {
	fake, c, st := setup(t)
	s := NewSession(RoleCollector, "col1", st, c)

	v, err := s.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, v.Tasks, 1)
	assert.Empty(t, v.Requests)
	assert.Equal(t, 1, v.Counts[model.StatusAssigned])
	assert.Equal(t, "col1", fake.CallsTo(store.OpGetTasks)[0].Payload["collectorId"])
	_, err = s.Recommendations(context.Background(), nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdminView(t *testing.T) {
	_, c, st := setup(t)
	s := NewSession(RoleAdmin, "root", st, c)

	v, err := s.Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.Requests, 3)
	require.NotNil(t, v.Metrics)
	assert.Equal(t, model.Percent(5), v.Metrics.MonthlyGrowth)
	assert.Equal(t, RoleAdmin.Capabilities(), v.Capabilities)

	require.NoError(t, s.UpdateStatus(context.Background(), "r1", model.StatusAssigned))
	assert.Equal(t, model.StatusAssigned, st.Requests()[0].Status)
}

type busyFunc func() bool

func (f busyFunc) Busy() bool { return f() }

func TestBusyReflectsOtherCallers(t *testing.T) {
	_, _, st := setup(t)
	inflight := true
	s := NewSession(RoleCollector, "col1", st, busyFunc(func() bool { return inflight }))
	v, err := s.Build(context.Background())
	require.NoError(t, err)
	assert.True(t, v.Busy)

	inflight = false
	v, err = s.Build(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Busy)
}

func TestAdminManagesCollectors(t *testing.T) {
	fake, c, st := setup(t)
	fake.OnRun(store.OpApproveCollector, func(_ context.Context, nodeID string, p map[string]any) (walker.Result, error) {
		return walker.Result{"collector": map[string]any{"id": nodeID, "approved": p["approved"], "active": false}}, nil
	})
	fake.OnRun(store.OpSetActive, func(_ context.Context, nodeID string, p map[string]any) (walker.Result, error) {
		return walker.Result{"collector": map[string]any{"id": nodeID, "approved": true, "active": p["active"]}}, nil
	})
	ctx := context.Background()

	admin := NewSession(RoleAdmin, "root", st, c)
	col, err := admin.ApproveCollector(ctx, "col4", false)
	require.NoError(t, err)
	assert.False(t, col.Approved)
	col, err = admin.SetCollectorActive(ctx, "col4", true)
	require.NoError(t, err)
	assert.True(t, col.Active)

	collector := NewSession(RoleCollector, "col4", st, c)
	_, err = collector.ApproveCollector(ctx, "col4", true)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = collector.SetCollectorActive(ctx, "col4", true)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Len(t, fake.CallsTo(store.OpApproveCollector), 1)
}

func TestBuildReturnsStaleViewOnLoadFailure(t *testing.T) {
	fake, c, st := setup(t)
	s := NewSession(RoleAdmin, "root", st, c)
	_, err := s.Build(context.Background())
	require.NoError(t, err)

	boom := errors.New("metrics backend down")
	fake.Fail(store.OpGetMetrics, boom)
	v, err := s.Build(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Len(t, v.Requests, 3, "request load still ran")
	require.NotNil(t, v.Metrics, "previous metrics kept")
	assert.Equal(t, 3, v.Metrics.TotalRequests)
}
