package fixture

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"wastelink/internal/auth"
	"wastelink/internal/backend"
	"wastelink/internal/model"
)

type call struct {
	Principal auth.Principal
	NodeID    string
	Ctx       map[string]any
}

type walkerFunc func(ctx context.Context, c call) (map[string]any, error)

func (s *Server) walkerTable() map[string]walkerFunc {
	return map[string]walkerFunc{
		"get_waste_requests":     s.getWasteRequests,
		"get_collector_tasks":    s.getCollectorTasks,
		"create_waste_request":   s.createWasteRequest,
		"update_request_status":  s.updateRequestStatus,
		"assign_collector":       s.assignCollector,
		"get_system_metrics":     s.getSystemMetrics,
		"get_ai_recommendations": s.getRecommendations,
		"approve_collector":      s.approveCollector,
		"set_collector_active":   s.setCollectorActive,
	}
}

// spawn runs walker name for p. nodeID is empty for spawned (unrooted) walkers.
func (s *Server) spawn(ctx context.Context, p auth.Principal, name, nodeID string, payload map[string]any) (map[string]any, error) {
	w, ok := s.walkers[name]
	if !ok {
		return nil, notFound("unknown walker " + name)
	}
	if !permitted(p, name) {
		return nil, forbidden(fmt.Sprintf("role %q may not run %s", p.Role, name))
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return w(ctx, call{Principal: p, NodeID: nodeID, Ctx: payload})
}

// SpawnHandler handles POST /v1/walkers/{name}/spawn
func (s *Server) SpawnHandler(w http.ResponseWriter, r *http.Request) {
	s.serveWalker(w, r, r.PathValue("name"), "")
}

// RunHandler handles POST /v1/nodes/{id}/walkers/{name}
func (s *Server) RunHandler(w http.ResponseWriter, r *http.Request) {
	s.serveWalker(w, r, r.PathValue("name"), r.PathValue("id"))
}

func (s *Server) serveWalker(w http.ResponseWriter, r *http.Request, name, nodeID string) {
	p, err := s.principal(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return
	}
	var body struct {
		Ctx map[string]any `json:"ctx"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.spawn(r.Context(), p, name, nodeID, body.Ctx)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}

func (s *Server) getWasteRequests(ctx context.Context, c call) (map[string]any, error) {
	resident := ""
	if c.Principal.Role == "resident" {
		resident = c.Principal.UserID
	}
	reqs, err := s.Backend.ListRequests(ctx, resident)
	if err != nil {
		return nil, err
	}
	if st := str(c.Ctx, "status"); st != "" {
		want, err := model.ParseStatus(st)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		filtered := reqs[:0]
		for _, r := range reqs {
			if r.Status == want {
				filtered = append(filtered, r)
			}
		}
		reqs = filtered
	}
	return map[string]any{"requests": reqs}, nil
}

func (s *Server) getCollectorTasks(ctx context.Context, c call) (map[string]any, error) {
	collector := str(c.Ctx, "collectorId")
	if c.Principal.Role == "collector" {
		collector = c.Principal.UserID
	}
	tasks, err := s.Backend.ListTasks(ctx, collector)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": tasks}, nil
}

// createWasteRequest validates a request and quotes it. Nothing is stored;
// the record is created by a following waste_request node.
func (s *Server) createWasteRequest(ctx context.Context, c call) (map[string]any, error) {
	var in model.PickupRequestInput
	if err := fromMap(c.Ctx, &in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	kg := in.EstimatedKg()
	return map[string]any{
		"success":      true,
		"requestId":    s.nextID("req"),
		"estimatedKg":  kg,
		"estimatedFee": model.EstimateFee(in.WasteType, kg).StringFixed(2),
		"currency":     "KES",
	}, nil
}

func (s *Server) updateRequestStatus(ctx context.Context, c call) (map[string]any, error) {
	id := str(c.Ctx, "requestId")
	if id == "" {
		return nil, badRequest("requestId is required")
	}
	to, err := model.ParseStatus(str(c.Ctx, "newStatus"))
	if err != nil {
		return nil, badRequest(err.Error())
	}
	if c.Principal.Role == "resident" {
		if to != model.StatusCancelled {
			return nil, forbidden("residents may only cancel")
		}
		cur, err := s.Backend.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.ResidentID != c.Principal.UserID {
			return nil, forbidden("request belongs to another resident")
		}
	}
	r, err := s.Backend.UpdateRequestStatus(ctx, id, to, str(c.Ctx, "reason"))
	if err != nil {
		return nil, err
	}
	out, err := toMap(r)
	if err != nil {
		return nil, err
	}
	s.publish("request.updated", out)
	return map[string]any{"success": true, "request": out}, nil
}

func (s *Server) assignCollector(ctx context.Context, c call) (map[string]any, error) {
	if c.NodeID == "" {
		return nil, badRequest("assign_collector must run on a task node")
	}
	collector := str(c.Ctx, "collectorId")
	if collector == "" {
		return nil, badRequest("collectorId is required")
	}
	t, err := s.Backend.AssignTask(ctx, c.NodeID, collector)
	if err != nil {
		return nil, err
	}
	out, err := toMap(t)
	if err != nil {
		return nil, err
	}
	s.publish("task.assigned", out)
	return map[string]any{"success": true, "task": out}, nil
}

func flag(m map[string]any, key string) (bool, error) {
	v, ok := m[key].(bool)
	if !ok {
		return false, badRequest(key + " must be a boolean")
	}
	return v, nil
}

// approveCollector approves or rejects a collector registration. A rejected
// collector is also deactivated.
func (s *Server) approveCollector(ctx context.Context, c call) (map[string]any, error) {
	approved, err := flag(c.Ctx, "approved")
	if err != nil {
		return nil, err
	}
	p := backend.CollectorPatch{Approved: &approved}
	if !approved {
		p.Active = &approved
	}
	return s.patchCollector(ctx, c, p)
}

func (s *Server) setCollectorActive(ctx context.Context, c call) (map[string]any, error) {
	active, err := flag(c.Ctx, "active")
	if err != nil {
		return nil, err
	}
	return s.patchCollector(ctx, c, backend.CollectorPatch{Active: &active})
}

func (s *Server) patchCollector(ctx context.Context, c call, p backend.CollectorPatch) (map[string]any, error) {
	if c.NodeID == "" {
		return nil, badRequest("collector walkers must run on a collector node")
	}
	col, err := s.Backend.PatchCollector(ctx, c.NodeID, p)
	if err != nil {
		return nil, err
	}
	out, err := toMap(col)
	if err != nil {
		return nil, err
	}
	s.publish("collector.updated", out)
	return map[string]any{"success": true, "collector": out}, nil
}

func (s *Server) getSystemMetrics(ctx context.Context, c call) (map[string]any, error) {
	st, err := s.Backend.Stats(ctx, s.Now())
	if err != nil {
		return nil, err
	}
	m := st.Metrics()
	growth := m.MonthlyGrowth.String()
	if m.MonthlyGrowth > 0 {
		growth = "+" + growth
	}
	return map[string]any{
		"totalRequests":     m.TotalRequests,
		"completedRequests": m.CompletedRequests,
		"activeCollectors":  m.ActiveCollectors,
		"recyclingRate":     m.RecyclingRate.String(),
		"monthlyGrowth":     growth,
	}, nil
}

// getRecommendations answers with fixed, rule-based hints.
func (s *Server) getRecommendations(ctx context.Context, c call) (map[string]any, error) {
	recs := []map[string]any{}
	add := func(typ, msg, prio string) {
		recs = append(recs, map[string]any{"type": typ, "message": msg, "priority": prio})
	}
	if wt, err := model.ParseWasteType(str(c.Ctx, "wasteType")); err == nil {
		switch wt {
		case model.WastePlastic:
			add("sorting", "Rinse and flatten plastic containers before pickup", "low")
		case model.WasteGlass:
			add("safety", "Wrap broken glass and separate it by colour", "medium")
		case model.WasteOrganic:
			add("timing", "Schedule organic pickups within 48 hours to avoid odour", "medium")
		case model.WasteEWaste:
			add("safety", "Remove batteries from electronics before pickup", "high")
		default:
			add("sorting", "Separate recyclables to lower your pickup fee", "low")
		}
	}
	resident := str(c.Ctx, "residentId")
	if c.Principal.Role == "resident" {
		resident = c.Principal.UserID
	}
	if resident != "" {
		reqs, err := s.Backend.ListRequests(ctx, resident)
		if err == nil {
			pending := 0
			for _, r := range reqs {
				if r.Status == model.StatusPending {
					pending++
				}
			}
			if pending >= 3 {
				add("scheduling", fmt.Sprintf("You have %d pending pickups; combining them saves on the minimum fee", pending), "medium")
			}
		}
	}
	if len(recs) == 0 {
		add("general", "Book pickups early in the week for faster collection", "low")
	}
	return map[string]any{"recommendations": recs}, nil
}
