package fixture

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wastelink/internal/auth"
	"wastelink/internal/walker"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// WSHandler handles /v1/ws. Each request frame is served concurrently and
// answered with a result or error frame carrying the request's id.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.principal(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	var wg sync.WaitGroup
	defer wg.Wait()

	var wmu sync.Mutex
	write := func(f walker.Frame) {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(f); err != nil {
			s.Log.Debug("ws write failed", zap.Error(err))
		}
	}

	conn.SetReadLimit(maxBody)
	for {
		var f walker.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		wg.Add(1)
		go func(f walker.Frame) {
			defer wg.Done()
			write(s.serveFrame(ctx, p, f))
		}(f)
	}
}

func (s *Server) serveFrame(ctx context.Context, p auth.Principal, f walker.Frame) walker.Frame {
	var res map[string]any
	var err error
	switch f.Type {
	case "spawn", "run":
		var sp walker.SpawnPayload
		if err = json.Unmarshal(f.Payload, &sp); err != nil {
			err = badRequest(err.Error())
			break
		}
		res, err = s.spawn(ctx, p, sp.Name, sp.NodeID, sp.Ctx)
	case "create_node":
		var np walker.NodePayload
		if err = json.Unmarshal(f.Payload, &np); err != nil {
			err = badRequest(err.Error())
			break
		}
		res, err = s.createNode(ctx, p, np.Kind, np.Data)
	default:
		err = badRequest("unknown frame type " + f.Type)
	}
	if err != nil {
		b, _ := json.Marshal(problemFor(err, "/v1/ws"))
		return walker.Frame{Type: "error", ID: f.ID, Payload: b}
	}
	b, err := json.Marshal(res)
	if err != nil {
		b, _ = json.Marshal(problemFor(err, "/v1/ws"))
		return walker.Frame{Type: "error", ID: f.ID, Payload: b}
	}
	return walker.Frame{Type: "result", ID: f.ID, Payload: b}
}
