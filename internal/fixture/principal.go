package fixture

import (
	"errors"
	"net/http"
	"strings"

	"wastelink/internal/auth"
)

var errUnauthenticated = errors.New("missing or invalid bearer token")

// principal extracts the caller from a bearer token, or in dev mode from the
// X-User-Id and X-Role headers, defaulting to an admin.
func (s *Server) principal(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		p, err := s.Auth.Verify(tok)
		if err != nil {
			return auth.Principal{}, errUnauthenticated
		}
		return p, nil
	}
	if s.Auth != nil && s.Auth.Mode != "dev" {
		return auth.Principal{}, errUnauthenticated
	}
	user := r.Header.Get("X-User-Id")
	role := strings.ToLower(r.Header.Get("X-Role"))
	if user == "" {
		user = "dev"
	}
	if role == "" {
		role = "admin"
	}
	return auth.Principal{UserID: user, Role: role}, nil
}

// allowedRoles lists who may run each walker; walkers absent here are open to every role.
var allowedRoles = map[string][]string{
	"get_collector_tasks":   {"collector", "admin"},
	"create_waste_request":  {"resident", "admin"},
	"update_request_status": {"resident", "collector", "admin"},
	"assign_collector":      {"admin"},
	"get_system_metrics":    {"admin"},
	"approve_collector":     {"admin"},
	"set_collector_active":  {"admin"},
}

func permitted(p auth.Principal, walker string) bool {
	roles, ok := allowedRoles[walker]
	if !ok {
		return true
	}
	for _, r := range roles {
		if r == p.Role {
			return true
		}
	}
	return false
}
