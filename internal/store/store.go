// Package store is the client-side domain store. It caches pickup requests,
// collector tasks and system metrics fetched through the walker client, and
// patches the cache only after a mutation's remote call has succeeded.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wastelink/internal/model"
	"wastelink/internal/notify"
	"wastelink/internal/walker"
)

// Client is the subset of *walker.Client the store drives.
type Client interface {
	Invoke(ctx context.Context, name string, payload map[string]any) (walker.Result, error)
	Run(ctx context.Context, name, nodeID string, payload map[string]any) (walker.Result, error)
	CreateEntity(ctx context.Context, kind string, data map[string]any) (walker.Result, error)
}

// Walker names used by the store.
const (
	OpGetRequests      = "get_waste_requests"
	OpGetTasks         = "get_collector_tasks"
	OpGetMetrics       = "get_system_metrics"
	OpCreateRequest    = "create_waste_request"
	OpUpdateStatus     = "update_request_status"
	OpAssignCollector  = "assign_collector"
	OpRecommendations  = "get_ai_recommendations"
	OpApproveCollector = "approve_collector"
	OpSetActive        = "set_collector_active"

	KindWasteRequest = "waste_request"
)

type Store struct {
	client Client
	sink   notify.Sink
	log    *zap.Logger
	now    func() time.Time
	seq    *sequencer

	mu       sync.RWMutex
	requests []model.PickupRequest
	tasks    []model.CollectorTask
	metrics  *model.SystemMetrics
	versions map[string]uint64
}

type Option func(*Store)

func WithSink(s notify.Sink) Option { return func(st *Store) { st.sink = s } }

func WithLogger(l *zap.Logger) Option { return func(st *Store) { st.log = l } }

func WithClock(now func() time.Time) Option { return func(st *Store) { st.now = now } }

func New(c Client, opts ...Option) *Store {
	s := &Store{
		client:   c,
		sink:     notify.Nop{},
		log:      zap.NewNop(),
		now:      time.Now,
		seq:      newSequencer(),
		requests: []model.PickupRequest{},
		tasks:    []model.CollectorTask{},
		versions: map[string]uint64{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoadPickupRequests replaces the cached requests. On failure the previous
// collection is kept and the error is returned for information only.
func (s *Store) LoadPickupRequests(ctx context.Context) error {
	res, err := s.client.Invoke(ctx, OpGetRequests, map[string]any{})
	var reqs []model.PickupRequest
	if err == nil {
		err = decodeField(res, "requests", &reqs)
	}
	if err != nil {
		s.loadFailed(ctx, OpGetRequests, "Failed to load pickup requests", err)
		return err
	}
	s.mu.Lock()
	s.requests = nonNil(reqs)
	s.mu.Unlock()
	return nil
}

// LoadCollectorTasks replaces the cached tasks with those of collectorID.
func (s *Store) LoadCollectorTasks(ctx context.Context, collectorID string) error {
	res, err := s.client.Invoke(ctx, OpGetTasks, map[string]any{"collectorId": collectorID})
	var tasks []model.CollectorTask
	if err == nil {
		err = decodeField(res, "tasks", &tasks)
	}
	if err != nil {
		s.loadFailed(ctx, OpGetTasks, "Failed to load collector tasks", err)
		return err
	}
	s.mu.Lock()
	s.tasks = nonNil(tasks)
	s.mu.Unlock()
	return nil
}

func (s *Store) LoadSystemMetrics(ctx context.Context) error {
	res, err := s.client.Invoke(ctx, OpGetMetrics, map[string]any{})
	var m model.SystemMetrics
	if err == nil {
		err = decode(res, &m)
	}
	if err != nil {
		s.loadFailed(ctx, OpGetMetrics, "Failed to load system metrics", err)
		return err
	}
	s.mu.Lock()
	s.metrics = &m
	s.mu.Unlock()
	return nil
}

func (s *Store) loadFailed(ctx context.Context, op, msg string, err error) {
	s.log.Warn(msg, zap.String("op", op), zap.Error(err))
	notify.Failure(ctx, s.sink, op, msg, err)
}

// CreatePickupRequest validates in, submits it and records the created entity
// at the front of the cached requests. Nothing is cached unless every step succeeds.
func (s *Store) CreatePickupRequest(ctx context.Context, in model.PickupRequestInput) (model.PickupRequest, error) {
	const msgFail = "Failed to create pickup request"
	if err := in.Validate(); err != nil {
		notify.Failure(ctx, s.sink, OpCreateRequest, msgFail, err)
		return model.PickupRequest{}, err
	}
	payload := in.Payload()
	if _, err := s.client.Invoke(ctx, OpCreateRequest, payload); err != nil {
		notify.Failure(ctx, s.sink, OpCreateRequest, msgFail, err)
		return model.PickupRequest{}, err
	}

	data := in.Payload()
	data["status"] = string(model.StatusPending)
	data["createdAt"] = s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.client.CreateEntity(ctx, KindWasteRequest, data)
	var created model.PickupRequest
	if err == nil {
		err = decode(res, &created)
	}
	if err != nil {
		notify.Failure(ctx, s.sink, OpCreateRequest, msgFail, err)
		return model.PickupRequest{}, err
	}
	if created.Status == "" {
		created.Status = model.StatusPending
	}

	s.mu.Lock()
	s.requests = append([]model.PickupRequest{created}, s.requests...)
	s.versions[created.ID]++
	s.mu.Unlock()
	notify.Success(ctx, s.sink, OpCreateRequest, "Pickup request created")
	return clonePickup(created), nil
}

// UpdateRequestStatus moves request id to status. The transition is checked
// against the cached copy before any remote call. Only the status field of the
// cached request changes. An id not in the cache is updated remotely only.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	return s.updateStatus(ctx, id, status, nil, "Request status updated")
}

// CancelPickupRequest cancels request id, passing reason to the endpoint.
func (s *Store) CancelPickupRequest(ctx context.Context, id, reason string) error {
	var extra map[string]any
	if reason != "" {
		extra = map[string]any{"reason": reason}
	}
	return s.updateStatus(ctx, id, model.StatusCancelled, extra, "Pickup request cancelled")
}

func (s *Store) updateStatus(ctx context.Context, id string, status model.RequestStatus, extra map[string]any, okMsg string) error {
	const msgFail = "Failed to update request status"
	release, err := s.seq.acquire(ctx, "request:"+id)
	if err != nil {
		notify.Failure(ctx, s.sink, OpUpdateStatus, msgFail, err)
		return err
	}
	defer release()

	if !status.Valid() {
		err := fmt.Errorf("unknown request status %q", status)
		notify.Failure(ctx, s.sink, OpUpdateStatus, msgFail, err)
		return err
	}
	if cur, ok := s.requestStatus(id); ok && !model.CanTransition(cur, status) {
		err := &model.InvalidTransitionError{ID: id, From: cur, To: status}
		notify.Failure(ctx, s.sink, OpUpdateStatus, msgFail, err)
		return err
	}

	payload := map[string]any{"requestId": id, "newStatus": string(status)}
	for k, v := range extra {
		payload[k] = v
	}
	if _, err := s.client.Invoke(ctx, OpUpdateStatus, payload); err != nil {
		notify.Failure(ctx, s.sink, OpUpdateStatus, msgFail, err)
		return err
	}

	s.mu.Lock()
	for i := range s.requests {
		if s.requests[i].ID == id {
			s.requests[i].Status = status
			s.versions[id]++
			break
		}
	}
	for i := range s.tasks {
		if s.tasks[i].RequestID == id && model.TaskFollows(s.tasks[i].Status, status) {
			s.tasks[i].Status = status
		}
	}
	s.mu.Unlock()
	notify.Success(ctx, s.sink, OpUpdateStatus, okMsg)
	return nil
}

func (s *Store) requestStatus(id string) (model.RequestStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.ID == id {
			return r.Status, true
		}
	}
	return "", false
}

// AssignTaskToCollector assigns task taskID to collectorID. Only pending tasks
// can be assigned; assigned tasks may be reassigned. Started, completed and
// cancelled tasks are rejected before any remote call.
func (s *Store) AssignTaskToCollector(ctx context.Context, taskID, collectorID string) error {
	const msgFail = "Failed to assign task"
	release, err := s.seq.acquire(ctx, "task:"+taskID)
	if err != nil {
		notify.Failure(ctx, s.sink, OpAssignCollector, msgFail, err)
		return err
	}
	defer release()

	s.mu.RLock()
	var cur model.RequestStatus
	for _, t := range s.tasks {
		if t.ID == taskID {
			cur = t.Status
			break
		}
	}
	s.mu.RUnlock()
	if cur != "" && !model.CanAssign(cur) {
		err := &model.InvalidTransitionError{ID: taskID, From: cur, To: model.StatusAssigned}
		notify.Failure(ctx, s.sink, OpAssignCollector, msgFail, err)
		return err
	}

	if _, err := s.client.Run(ctx, OpAssignCollector, taskID, map[string]any{"collectorId": collectorID}); err != nil {
		notify.Failure(ctx, s.sink, OpAssignCollector, msgFail, err)
		return err
	}

	s.mu.Lock()
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			s.tasks[i].CollectorID = collectorID
			s.tasks[i].Status = model.StatusAssigned
			s.versions[taskID]++
			break
		}
	}
	s.mu.Unlock()
	notify.Success(ctx, s.sink, OpAssignCollector, "Task assigned to collector")
	return nil
}

// Recommendations asks for suggestions given a free-form context. Failures
// yield an empty list.
func (s *Store) Recommendations(ctx context.Context, hint map[string]any) []Recommendation {
	if hint == nil {
		hint = map[string]any{}
	}
	res, err := s.client.Invoke(ctx, OpRecommendations, hint)
	var out []Recommendation
	if err == nil {
		err = decodeField(res, "recommendations", &out)
	}
	if err != nil {
		s.log.Debug("recommendations unavailable", zap.Error(err))
		return []Recommendation{}
	}
	return nonNil(out)
}

// Recommendation is one hint returned by get_ai_recommendations.
type Recommendation struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority,omitempty"`
}

// Requests returns a copy of the cached pickup requests, newest first.
func (s *Store) Requests() []model.PickupRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PickupRequest, len(s.requests))
	for i, r := range s.requests {
		out[i] = clonePickup(r)
	}
	return out
}

func (s *Store) Tasks() []model.CollectorTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CollectorTask, len(s.tasks))
	for i, t := range s.tasks {
		t.Route = append([]model.GeoPoint(nil), t.Route...)
		out[i] = t
	}
	return out
}

// Metrics returns the last fetched metrics; ok is false before the first successful load.
func (s *Store) Metrics() (m model.SystemMetrics, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.metrics == nil {
		return model.SystemMetrics{}, false
	}
	return *s.metrics, true
}

// Version is the number of mutations applied to entity id by this store.
func (s *Store) Version(id string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[id]
}

func clonePickup(r model.PickupRequest) model.PickupRequest {
	if r.Location != nil {
		loc := *r.Location
		r.Location = &loc
	}
	return r
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// decode converts a loosely typed walker result into a typed value.
func decode(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// decodeField decodes res[key]; a missing key decodes as empty.
func decodeField(res walker.Result, key string, out any) error {
	v, ok := res[key]
	if !ok || v == nil {
		return nil
	}
	return decode(v, out)
}
