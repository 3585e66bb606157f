package dashboard

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wastelink/internal/model"
	"wastelink/internal/store"
)

// ErrForbidden is returned when the session's role lacks the capability for an operation.
var ErrForbidden = errors.New("forbidden")

// Store is the part of *store.Store a session drives.
type Store interface {
	LoadPickupRequests(ctx context.Context) error
	LoadCollectorTasks(ctx context.Context, collectorID string) error
	LoadSystemMetrics(ctx context.Context) error
	CreatePickupRequest(ctx context.Context, in model.PickupRequestInput) (model.PickupRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error
	CancelPickupRequest(ctx context.Context, id, reason string) error
	AssignTaskToCollector(ctx context.Context, taskID, collectorID string) error
	Recommendations(ctx context.Context, hint map[string]any) []store.Recommendation
	ApproveCollector(ctx context.Context, id string, approved bool) (model.Collector, error)
	SetCollectorActive(ctx context.Context, id string, active bool) (model.Collector, error)
	Requests() []model.PickupRequest
	Tasks() []model.CollectorTask
	Metrics() (model.SystemMetrics, bool)
}

// Busy reports whether remote calls are outstanding; *walker.Client satisfies it.
type Busy interface {
	Busy() bool
}

// Session is one user acting in one role.
type Session struct {
	Role   Role
	UserID string
	store  Store
	busy   Busy
}

func NewSession(role Role, userID string, st Store, busy Busy) *Session {
	return &Session{Role: role, UserID: userID, store: st, busy: busy}
}

func (s *Session) require(c Capability) error {
	if !s.Role.Can(c) {
		return fmt.Errorf("%s cannot %s: %w", s.Role, c, ErrForbidden)
	}
	return nil
}

// CreateRequest files a pickup request owned by the session user.
func (s *Session) CreateRequest(ctx context.Context, in model.PickupRequestInput) (model.PickupRequest, error) {
	if err := s.require(CreateRequest); err != nil {
		return model.PickupRequest{}, err
	}
	in.ResidentID = s.UserID
	return s.store.CreatePickupRequest(ctx, in)
}

// CancelRequest cancels a request. Residents may only cancel their own.
func (s *Session) CancelRequest(ctx context.Context, id, reason string) error {
	if err := s.require(CancelRequest); err != nil {
		return err
	}
	if !s.Role.Can(ViewAllRequests) {
		for _, r := range s.store.Requests() {
			if r.ID == id && r.ResidentID != "" && r.ResidentID != s.UserID {
				return fmt.Errorf("request %s belongs to another resident: %w", id, ErrForbidden)
			}
		}
	}
	return s.store.CancelPickupRequest(ctx, id, reason)
}

func (s *Session) UpdateStatus(ctx context.Context, id string, status model.RequestStatus) error {
	if err := s.require(UpdateStatus); err != nil {
		return err
	}
	return s.store.UpdateRequestStatus(ctx, id, status)
}

func (s *Session) AssignTask(ctx context.Context, taskID, collectorID string) error {
	if err := s.require(AssignTask); err != nil {
		return err
	}
	return s.store.AssignTaskToCollector(ctx, taskID, collectorID)
}

// ApproveCollector approves (or, with approved false, rejects) a collector registration.
func (s *Session) ApproveCollector(ctx context.Context, id string, approved bool) (model.Collector, error) {
	if err := s.require(ManageCollectors); err != nil {
		return model.Collector{}, err
	}
	return s.store.ApproveCollector(ctx, id, approved)
}

func (s *Session) SetCollectorActive(ctx context.Context, id string, active bool) (model.Collector, error) {
	if err := s.require(ManageCollectors); err != nil {
		return model.Collector{}, err
	}
	return s.store.SetCollectorActive(ctx, id, active)
}

func (s *Session) Recommendations(ctx context.Context, hint map[string]any) ([]store.Recommendation, error) {
	if err := s.require(ViewRecommendation); err != nil {
		return nil, err
	}
	return s.store.Recommendations(ctx, hint), nil
}

// View is the data a role's dashboard shows.
type View struct {
	Role            Role                        `json:"role"`
	UserID          string                      `json:"userId"`
	Capabilities    []Capability                `json:"capabilities"`
	Requests        []model.PickupRequest       `json:"requests,omitempty"`
	Tasks           []model.CollectorTask       `json:"tasks,omitempty"`
	Metrics         *model.SystemMetrics        `json:"metrics,omitempty"`
	Recommendations []store.Recommendation      `json:"recommendations,omitempty"`
	Counts          map[model.RequestStatus]int `json:"counts"`
	// Busy is sampled after this view's own loads finish, so it reports calls
	// still in flight from other sessions sharing the client.
	Busy bool `json:"busy"`
}

// Build loads everything the role can see, in parallel, and assembles the
// view from the store's cache. A failed load does not stop the others; its
// data stays stale in the view and the first error is returned alongside it.
func (s *Session) Build(ctx context.Context) (View, error) {
	var g errgroup.Group
	var recs []store.Recommendation
	if s.Role.Can(ViewOwnRequests) || s.Role.Can(ViewAllRequests) {
		g.Go(func() error { return s.store.LoadPickupRequests(ctx) })
	}
	if s.Role.Can(ViewOwnTasks) {
		g.Go(func() error { return s.store.LoadCollectorTasks(ctx, s.UserID) })
	}
	if s.Role.Can(ViewMetrics) {
		g.Go(func() error { return s.store.LoadSystemMetrics(ctx) })
	}
	if s.Role.Can(ViewRecommendation) {
		g.Go(func() error {
			recs = s.store.Recommendations(ctx, map[string]any{"residentId": s.UserID})
			return nil
		})
	}
	err := g.Wait()

	v := View{
		Role:            s.Role,
		UserID:          s.UserID,
		Capabilities:    s.Role.Capabilities(),
		Recommendations: recs,
		Counts:          map[model.RequestStatus]int{},
	}
	switch {
	case s.Role.Can(ViewAllRequests):
		v.Requests = s.store.Requests()
	case s.Role.Can(ViewOwnRequests):
		for _, r := range s.store.Requests() {
			if r.ResidentID == s.UserID {
				v.Requests = append(v.Requests, r)
			}
		}
	}
	for _, r := range v.Requests {
		v.Counts[r.Status]++
	}
	if s.Role.Can(ViewOwnTasks) {
		for _, t := range s.store.Tasks() {
			if t.CollectorID == "" || t.CollectorID == s.UserID {
				v.Tasks = append(v.Tasks, t)
				v.Counts[t.Status]++
			}
		}
	}
	if s.Role.Can(ViewMetrics) {
		if m, ok := s.store.Metrics(); ok {
			v.Metrics = &m
		}
	}
	if s.busy != nil {
		v.Busy = s.busy.Busy()
	}
	return v, err
}
