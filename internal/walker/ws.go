package walker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame is one WebSocket message. Requests carry type spawn, run or
// create_node; replies carry result or error with the request's id.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SpawnPayload is the payload of spawn and run frames.
type SpawnPayload struct {
	Name   string         `json:"name"`
	NodeID string         `json:"nodeId,omitempty"`
	Ctx    map[string]any `json:"ctx"`
}

// NodePayload is the payload of create_node frames.
type NodePayload struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data"`
}

var errConnClosed = errors.New("websocket connection closed")

// WSTransport multiplexes walker calls over a single WebSocket connection.
type WSTransport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	wmu  sync.Mutex // serializes writes
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan Frame
	done    chan struct{}
	readErr error
}

func NewWSTransport(endpoint, token string) *WSTransport {
	u := strings.TrimRight(endpoint, "/")
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	if !strings.HasSuffix(u, "/v1/ws") {
		u += "/v1/ws"
	}
	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
	}
	return &WSTransport{url: u, header: hdr, dialer: websocket.DefaultDialer}
}

func (t *WSTransport) Connect(ctx context.Context) error {
	c, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		return err
	}
	c.SetReadLimit(8 << 20)
	_ = t.Close()
	t.mu.Lock()
	t.conn = c
	t.pending = map[string]chan Frame{}
	t.done = make(chan struct{})
	t.readErr = nil
	done := t.done
	t.mu.Unlock()
	go t.readLoop(c, done)
	return nil
}

func (t *WSTransport) readLoop(c *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var f Frame
		if err := c.ReadJSON(&f); err != nil {
			t.mu.Lock()
			owned := t.conn == c
			if owned {
				t.conn = nil
			}
			t.readErr = err
			t.mu.Unlock()
			if owned {
				_ = c.Close()
			}
			return
		}
		t.mu.Lock()
		ch, ok := t.pending[f.ID]
		delete(t.pending, f.ID)
		t.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (t *WSTransport) Spawn(ctx context.Context, name string, payload map[string]any) (Result, error) {
	return t.call(ctx, "spawn", SpawnPayload{Name: name, Ctx: orEmpty(payload)})
}

func (t *WSTransport) Run(ctx context.Context, name, nodeID string, payload map[string]any) (Result, error) {
	return t.call(ctx, "run", SpawnPayload{Name: name, NodeID: nodeID, Ctx: orEmpty(payload)})
}

func (t *WSTransport) CreateNode(ctx context.Context, kind string, data map[string]any) (Result, error) {
	return t.call(ctx, "create_node", NodePayload{Kind: kind, Data: orEmpty(data)})
}

func (t *WSTransport) call(ctx context.Context, typ string, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	id := uuid.NewString()
	reply := make(chan Frame, 1)

	t.mu.Lock()
	if t.conn == nil {
		err := t.readErr
		t.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errConnClosed, err)
		}
		return nil, errConnClosed
	}
	conn, done := t.conn, t.done
	t.pending[id] = reply
	t.mu.Unlock()

	t.wmu.Lock()
	dl, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(dl)
	err = conn.WriteJSON(Frame{Type: typ, ID: id, Payload: body})
	t.wmu.Unlock()
	if err != nil {
		t.forget(id)
		return nil, err
	}

	select {
	case f := <-reply:
		return decodeFrame(f)
	case <-ctx.Done():
		t.forget(id)
		return nil, ctx.Err()
	case <-done:
		t.mu.Lock()
		err := t.readErr
		t.mu.Unlock()
		if err == nil {
			err = errConnClosed
		}
		return nil, fmt.Errorf("%w: %v", errConnClosed, err)
	}
}

func (t *WSTransport) forget(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func decodeFrame(f Frame) (Result, error) {
	switch f.Type {
	case "result":
		out := Result{}
		if len(f.Payload) > 0 && string(f.Payload) != "null" {
			if err := json.Unmarshal(f.Payload, &out); err != nil {
				return nil, fmt.Errorf("decode result: %w", err)
			}
		}
		return out, nil
	case "error":
		return nil, decodeProblem(0, f.Payload)
	}
	return nil, fmt.Errorf("unexpected frame type %q", f.Type)
}

// Close closes the connection and waits for the reader to exit.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	c, done := t.conn, t.done
	t.conn = nil
	t.mu.Unlock()
	if c == nil {
		return nil
	}
	t.wmu.Lock()
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadlineSoon())
	t.wmu.Unlock()
	err := c.Close()
	<-done
	return err
}

func deadlineSoon() time.Time { return time.Now().Add(time.Second) }
