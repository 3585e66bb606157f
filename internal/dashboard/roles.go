// Package dashboard renders the resident, collector and admin views as one
// abstraction parameterized by the capabilities of a role.
package dashboard

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleResident  Role = "resident"
	RoleCollector Role = "collector"
	RoleAdmin     Role = "admin"
)

type Capability string

const (
	ViewOwnRequests    Capability = "view_own_requests"
	ViewAllRequests    Capability = "view_all_requests"
	CreateRequest      Capability = "create_request"
	CancelRequest      Capability = "cancel_request"
	ViewRecommendation Capability = "view_recommendations"
	ViewOwnTasks       Capability = "view_own_tasks"
	UpdateStatus       Capability = "update_request_status"
	AssignTask         Capability = "assign_task"
	ViewMetrics        Capability = "view_metrics"
	ManageCollectors   Capability = "manage_collectors"
)

var roleCaps = map[Role][]Capability{
	RoleResident:  {ViewOwnRequests, CreateRequest, CancelRequest, ViewRecommendation},
	RoleCollector: {ViewOwnTasks, UpdateStatus},
	RoleAdmin:     {ViewAllRequests, AssignTask, ViewMetrics, UpdateStatus, CancelRequest, ManageCollectors},
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleCaps[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Capabilities returns a copy of the role's capability list.
func (r Role) Capabilities() []Capability {
	return append([]Capability(nil), roleCaps[r]...)
}

func (r Role) Can(c Capability) bool {
	for _, have := range roleCaps[r] {
		if have == c {
			return true
		}
	}
	return false
}
