package store

import (
	"context"

	"wastelink/internal/model"
	"wastelink/internal/notify"
)

// ApproveCollector approves or rejects collector id's registration. The
// endpoint deactivates rejected collectors.
func (s *Store) ApproveCollector(ctx context.Context, id string, approved bool) (model.Collector, error) {
	msg := "Collector approved"
	if !approved {
		msg = "Collector rejected"
	}
	return s.patchCollector(ctx, OpApproveCollector, id, map[string]any{"approved": approved}, msg)
}

// SetCollectorActive activates or deactivates collector id's account.
func (s *Store) SetCollectorActive(ctx context.Context, id string, active bool) (model.Collector, error) {
	msg := "Collector activated"
	if !active {
		msg = "Collector deactivated"
	}
	return s.patchCollector(ctx, OpSetActive, id, map[string]any{"active": active}, msg)
}

func (s *Store) patchCollector(ctx context.Context, op, id string, payload map[string]any, okMsg string) (model.Collector, error) {
	const msgFail = "Failed to update collector"
	release, err := s.seq.acquire(ctx, "collector:"+id)
	if err != nil {
		notify.Failure(ctx, s.sink, op, msgFail, err)
		return model.Collector{}, err
	}
	defer release()

	res, err := s.client.Run(ctx, op, id, payload)
	if err != nil {
		notify.Failure(ctx, s.sink, op, msgFail, err)
		return model.Collector{}, err
	}
	var c model.Collector
	if err := decodeField(res, "collector", &c); err != nil {
		notify.Failure(ctx, s.sink, op, msgFail, err)
		return model.Collector{}, err
	}
	if c.ID == "" {
		c.ID = id
	}
	notify.Success(ctx, s.sink, op, okMsg)
	return c, nil
}
