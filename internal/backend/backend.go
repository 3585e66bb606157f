// Package backend persists the fixture server's pickup requests, collector
// tasks and collectors.
package backend

import (
	"context"
	"errors"
	"time"

	"wastelink/internal/model"
)

// Backend is the persistence interface used by the walker fixture server.
type Backend interface {
	// Pickup requests, newest first
	ListRequests(ctx context.Context, residentID string) ([]model.PickupRequest, error)
	GetRequest(ctx context.Context, id string) (model.PickupRequest, error)
	CreateRequest(ctx context.Context, r model.PickupRequest) (model.PickupRequest, error)
	// UpdateRequestStatus applies the transition table; disallowed moves
	// return *model.InvalidTransitionError.
	UpdateRequestStatus(ctx context.Context, id string, to model.RequestStatus, reason string) (model.PickupRequest, error)

	// Collector tasks; an empty collectorID lists all
	ListTasks(ctx context.Context, collectorID string) ([]model.CollectorTask, error)
	CreateTask(ctx context.Context, t model.CollectorTask) (model.CollectorTask, error)
	AssignTask(ctx context.Context, taskID, collectorID string) (model.CollectorTask, error)

	// Collectors
	UpsertCollector(ctx context.Context, c model.Collector) error
	ListCollectors(ctx context.Context) ([]model.Collector, error)
	// PatchCollector sets the non-nil flags of collector id and returns the
	// updated record.
	PatchCollector(ctx context.Context, id string, p CollectorPatch) (model.Collector, error)

	Stats(ctx context.Context, now time.Time) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")

// CollectorPatch carries the admin-controlled collector flags; nil leaves a flag as is.
type CollectorPatch struct {
	Approved *bool
	Active   *bool
}

func (p CollectorPatch) apply(c *model.Collector) {
	if p.Approved != nil {
		c.Approved = *p.Approved
	}
	if p.Active != nil {
		c.Active = *p.Active
	}
}

// Stats are the raw counts behind get_system_metrics.
type Stats struct {
	TotalRequests     int
	CompletedRequests int
	ActiveCollectors  int
	ThisMonth         int // requests created since the start of now's month
	LastMonth         int // requests created during the previous month
}

// RecyclingRate is the completed share of all requests, in percent, one decimal.
func (s Stats) RecyclingRate() model.Percent {
	if s.TotalRequests == 0 {
		return 0
	}
	return model.Percent(round1(float64(s.CompletedRequests) * 100 / float64(s.TotalRequests)))
}

// MonthlyGrowth compares this month's request count with last month's.
func (s Stats) MonthlyGrowth() model.Percent {
	if s.LastMonth == 0 {
		if s.ThisMonth == 0 {
			return 0
		}
		return 100
	}
	return model.Percent(round1(float64(s.ThisMonth-s.LastMonth) * 100 / float64(s.LastMonth)))
}

func (s Stats) Metrics() model.SystemMetrics {
	return model.SystemMetrics{
		TotalRequests:     s.TotalRequests,
		CompletedRequests: s.CompletedRequests,
		ActiveCollectors:  s.ActiveCollectors,
		RecyclingRate:     s.RecyclingRate(),
		MonthlyGrowth:     s.MonthlyGrowth(),
	}
}

func round1(f float64) float64 {
	if f < 0 {
		return -round1(-f)
	}
	return float64(int64(f*10+0.5)) / 10
}

func monthBounds(now time.Time) (thisStart, lastStart time.Time) {
	now = now.UTC()
	thisStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return thisStart, thisStart.AddDate(0, -1, 0)
}

func collectorActive(c model.Collector) bool {
	return c.Active && c.Approved && c.Status != model.CollectorOffline
}
