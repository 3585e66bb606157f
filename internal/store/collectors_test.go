package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wastelink/internal/notify"
	"wastelink/internal/walker"
)

func TestApproveAndDeactivateCollector(t *testing.T) {
	h := newHarness(t, true)
	h.fake.OnRun(OpApproveCollector, func(_ context.Context, nodeID string, p map[string]any) (walker.Result, error) {
		return walker.Result{"success": true, "collector": map[string]any{"id": nodeID, "name": "Brian", "status": "available", "approved": p["approved"], "active": true}}, nil
	})
	h.fake.OnRun(OpSetActive, func(_ context.Context, nodeID string, p map[string]any) (walker.Result, error) {
		return walker.Result{"success": true, "collector": map[string]any{"id": nodeID, "approved": true, "active": p["active"]}}, nil
	})
	ctx := context.Background()

	c, err := h.store.ApproveCollector(ctx, "col_004", true)
	require.NoError(t, err)
	assert.True(t, c.Approved)
	assert.Equal(t, "col_004", c.ID)
	calls := h.fake.CallsTo(OpApproveCollector)
	require.Len(t, calls, 1)
	assert.Equal(t, "col_004", calls[0].NodeID)
	assert.Equal(t, true, calls[0].Payload["approved"])

	c, err = h.store.SetCollectorActive(ctx, "col_004", false)
	require.NoError(t, err)
	assert.False(t, c.Active)
	oks := h.rec.Level(notify.LevelSuccess)
	require.Len(t, oks, 2)
	assert.Equal(t, "Collector deactivated", oks[1].Message)
}

func TestCollectorUpdateFailureNotifies(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.store.ApproveCollector(context.Background(), "col_999", false)
	var rerr *walker.RemoteOperationError
	require.ErrorAs(t, err, &rerr)
	fails := h.rec.Level(notify.LevelError)
	require.Len(t, fails, 1)
	assert.Equal(t, OpApproveCollector, fails[0].Op)
}
