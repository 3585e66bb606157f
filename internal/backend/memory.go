package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wastelink/internal/model"
)

// Memory is the in-memory backend used when no database URL is set.
type Memory struct {
	mu         sync.Mutex
	requests   map[string]model.PickupRequest
	tasks      map[string]model.CollectorTask
	taskOrder  []string
	collectors map[string]model.Collector
	reasons    map[string]string // request id -> cancel reason
}

func NewMemory() *Memory {
	return &Memory{
		requests:   map[string]model.PickupRequest{},
		tasks:      map[string]model.CollectorTask{},
		collectors: map[string]model.Collector{},
		reasons:    map[string]string{},
	}
}

func (m *Memory) ListRequests(ctx context.Context, residentID string) ([]model.PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.PickupRequest{}
	for _, r := range m.requests {
		if residentID == "" || r.ResidentID == residentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (model.PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return model.PickupRequest{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) CreateRequest(ctx context.Context, r model.PickupRequest) (model.PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = "req_" + uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.requests[r.ID] = r
	return r, nil
}

func (m *Memory) UpdateRequestStatus(ctx context.Context, id string, to model.RequestStatus, reason string) (model.PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return model.PickupRequest{}, ErrNotFound
	}
	if !model.CanTransition(r.Status, to) {
		return model.PickupRequest{}, &model.InvalidTransitionError{ID: id, From: r.Status, To: to}
	}
	r.Status = to
	m.requests[id] = r
	for tid, t := range m.tasks {
		if t.RequestID == id && model.TaskFollows(t.Status, to) {
			t.Status = to
			m.tasks[tid] = t
		}
	}
	if reason != "" {
		m.reasons[id] = reason
	}
	return r, nil
}

func (m *Memory) ListTasks(ctx context.Context, collectorID string) ([]model.CollectorTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.CollectorTask{}
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if collectorID == "" || t.CollectorID == collectorID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) CreateTask(ctx context.Context, t model.CollectorTask) (model.CollectorTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = "task_" + uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if _, exists := m.tasks[t.ID]; !exists {
		m.taskOrder = append(m.taskOrder, t.ID)
	}
	m.tasks[t.ID] = t
	return t, nil
}

// AssignTask sets the task's collector. A pending linked request moves to
// assigned. Tasks past assignment, or whose request has ended, are rejected.
func (m *Memory) AssignTask(ctx context.Context, taskID, collectorID string) (model.CollectorTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return model.CollectorTask{}, ErrNotFound
	}
	if !model.CanAssign(t.Status) {
		return model.CollectorTask{}, &model.InvalidTransitionError{ID: taskID, From: t.Status, To: model.StatusAssigned}
	}
	if r, ok := m.requests[t.RequestID]; ok && r.Status.Terminal() {
		return model.CollectorTask{}, &model.InvalidTransitionError{ID: r.ID, From: r.Status, To: model.StatusAssigned}
	}
	t.CollectorID = collectorID
	t.Status = model.StatusAssigned
	m.tasks[taskID] = t
	if r, ok := m.requests[t.RequestID]; ok && r.Status == model.StatusPending {
		r.Status = model.StatusAssigned
		m.requests[r.ID] = r
	}
	return t, nil
}

func (m *Memory) UpsertCollector(ctx context.Context, c model.Collector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Status == "" {
		c.Status = model.CollectorOffline
	}
	m.collectors[c.ID] = c
	return nil
}

func (m *Memory) PatchCollector(ctx context.Context, id string, p CollectorPatch) (model.Collector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collectors[id]
	if !ok {
		return model.Collector{}, ErrNotFound
	}
	p.apply(&c)
	m.collectors[id] = c
	return c, nil
}

func (m *Memory) ListCollectors(ctx context.Context) ([]model.Collector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Collector, 0, len(m.collectors))
	for _, c := range m.collectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Stats(ctx context.Context, now time.Time) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thisStart, lastStart := monthBounds(now)
	var s Stats
	for _, r := range m.requests {
		s.TotalRequests++
		if r.Status == model.StatusCompleted {
			s.CompletedRequests++
		}
		switch {
		case !r.CreatedAt.Before(thisStart):
			s.ThisMonth++
		case !r.CreatedAt.Before(lastStart):
			s.LastMonth++
		}
	}
	for _, c := range m.collectors {
		if collectorActive(c) {
			s.ActiveCollectors++
		}
	}
	return s, nil
}

// CancelReason returns the reason recorded when id was cancelled.
func (m *Memory) CancelReason(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reasons[id]
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
