package fixture

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"wastelink/internal/backend"
	"wastelink/internal/buildinfo"
	"wastelink/internal/notify"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.walkers))
	for n := range s.walkers {
		names = append(names, n)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{
		"build":   buildinfo.Info(),
		"time":    s.Now().UTC().Format(time.RFC3339),
		"walkers": names,
		"config": map[string]any{
			"authMode": s.Auth.Mode,
			"backend":  backendName(s.Backend),
			"broker":   brokerName(s.Broker),
		},
	})
}

func backendName(b backend.Backend) string {
	switch b.(type) {
	case *backend.Memory:
		return "memory"
	case *backend.Postgres:
		return "postgres"
	}
	return "custom"
}

func brokerName(b notify.EventBroker) string {
	switch b.(type) {
	case *notify.Broker:
		return "memory"
	case *notify.RedisBroker:
		return "redis"
	}
	return "custom"
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
