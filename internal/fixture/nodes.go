package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"wastelink/internal/auth"
	"wastelink/internal/logging"
	"wastelink/internal/model"
)

const maxBody = 1 << 20

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NodesHandler handles POST /v1/nodes
func (s *Server) NodesHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.principal(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return
	}
	var body struct {
		Kind string         `json:"kind"`
		Data map[string]any `json:"data"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.createNode(r.Context(), p, body.Kind, body.Data)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) createNode(ctx context.Context, p auth.Principal, kind string, data map[string]any) (map[string]any, error) {
	if data == nil {
		data = map[string]any{}
	}
	switch kind {
	case "waste_request":
		return s.createRequestNode(ctx, p, data)
	case "collector_task":
		if !p.IsAdmin() {
			return nil, forbidden("collector_task nodes are created by admins")
		}
		return s.createTaskNode(ctx, data)
	case "":
		return nil, badRequest("kind is required")
	}
	return nil, badRequest("unsupported node kind " + kind)
}

// createRequestNode stores a pickup request with a fresh req_<unix-nanos> id
// and opens a pending collector task for it.
func (s *Server) createRequestNode(ctx context.Context, p auth.Principal, data map[string]any) (map[string]any, error) {
	if p.Role != "resident" && !p.IsAdmin() {
		return nil, forbidden("only residents create pickup requests")
	}
	var in model.PickupRequestInput
	if err := fromMap(data, &in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if p.Role == "resident" {
		in.ResidentID = p.UserID
	}

	created := s.Now().UTC()
	if ts := str(data, "createdAt"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			created = t.UTC()
		}
	}
	r := model.PickupRequest{
		ID:         s.nextID("req"),
		ResidentID: in.ResidentID,
		WasteType:  in.WasteType,
		Volume:     in.Volume,
		VolumeKg:   in.VolumeKg,
		Status:     model.StatusPending,
		Location:   in.Location,
		Address:    in.Address,
		Notes:      in.Notes,
		Urgency:    in.Urgency,
		CreatedAt:  created,
	}
	r, err := s.Backend.CreateRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	if _, err := s.Backend.CreateTask(ctx, model.CollectorTask{ID: s.nextID("task"), RequestID: r.ID, Status: model.StatusPending}); err != nil {
		logging.FromContext(ctx).Warn("open task for request failed", zap.String("request", r.ID), zap.Error(err))
	}
	out, err := toMap(r)
	if err != nil {
		return nil, err
	}
	s.publish("request.created", out)
	return out, nil
}

func (s *Server) createTaskNode(ctx context.Context, data map[string]any) (map[string]any, error) {
	var t model.CollectorTask
	if err := fromMap(data, &t); err != nil {
		return nil, err
	}
	if t.RequestID == "" {
		return nil, badRequest("requestId is required")
	}
	if _, err := s.Backend.GetRequest(ctx, t.RequestID); err != nil {
		return nil, err
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if !t.Status.Valid() {
		return nil, badRequest("invalid status " + string(t.Status))
	}
	if t.ID == "" {
		t.ID = s.nextID("task")
	}
	t, err := s.Backend.CreateTask(ctx, t)
	if err != nil {
		return nil, err
	}
	out, err := toMap(t)
	if err != nil {
		return nil, err
	}
	s.publish("task.created", out)
	return out, nil
}
