// Package walkertest provides an in-memory walker transport for tests.
package walkertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wastelink/internal/walker"
)

type Handler func(ctx context.Context, payload map[string]any) (walker.Result, error)

type RunHandler func(ctx context.Context, nodeID string, payload map[string]any) (walker.Result, error)

type NodeHandler func(ctx context.Context, data map[string]any) (walker.Result, error)

// Call records one request seen by a Fake.
type Call struct {
	Kind    string // spawn, run or create_node
	Name    string // walker name or node kind
	NodeID  string
	Payload map[string]any
}

// Fake is a scriptable walker.Transport. Unscripted walkers answer with a
// 404 StatusError; unscripted node kinds echo their data with a generated id.
type Fake struct {
	mu sync.Mutex

	// ConnectErr is returned by the first FailConnects Connect calls, or by
	// every call when FailConnects is negative.
	ConnectErr   error
	FailConnects int

	connects int
	seq      int
	spawn    map[string]Handler
	run      map[string]RunHandler
	nodes    map[string]NodeHandler
	calls    []Call
	closed   bool
}

var _ walker.Transport = (*Fake)(nil)

func New() *Fake {
	return &Fake{spawn: map[string]Handler{}, run: map[string]RunHandler{}, nodes: map[string]NodeHandler{}}
}

func (f *Fake) On(name string, h Handler) *Fake {
	f.mu.Lock()
	f.spawn[name] = h
	f.mu.Unlock()
	return f
}

func (f *Fake) OnRun(name string, h RunHandler) *Fake {
	f.mu.Lock()
	f.run[name] = h
	f.mu.Unlock()
	return f
}

func (f *Fake) OnCreate(kind string, h NodeHandler) *Fake {
	f.mu.Lock()
	f.nodes[kind] = h
	f.mu.Unlock()
	return f
}

// Reply scripts name to always return res.
func (f *Fake) Reply(name string, res walker.Result) *Fake {
	return f.On(name, func(context.Context, map[string]any) (walker.Result, error) { return res, nil })
}

// Fail scripts name to always return err.
func (f *Fake) Fail(name string, err error) *Fake {
	return f.On(name, func(context.Context, map[string]any) (walker.Result, error) { return nil, err })
}

func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	n := f.connects
	f.closed = false
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.ConnectErr != nil && (f.FailConnects < 0 || n <= f.FailConnects) {
		return f.ConnectErr
	}
	return nil
}

func (f *Fake) Spawn(ctx context.Context, name string, payload map[string]any) (walker.Result, error) {
	f.record(Call{Kind: "spawn", Name: name, Payload: payload})
	f.mu.Lock()
	h := f.spawn[name]
	f.mu.Unlock()
	if h == nil {
		return nil, &walker.StatusError{Code: 404, Title: "Not Found", Detail: "unknown walker " + name}
	}
	return h(ctx, payload)
}

func (f *Fake) Run(ctx context.Context, name, nodeID string, payload map[string]any) (walker.Result, error) {
	f.record(Call{Kind: "run", Name: name, NodeID: nodeID, Payload: payload})
	f.mu.Lock()
	h := f.run[name]
	f.mu.Unlock()
	if h == nil {
		return nil, &walker.StatusError{Code: 404, Title: "Not Found", Detail: "unknown walker " + name}
	}
	return h(ctx, nodeID, payload)
}

func (f *Fake) CreateNode(ctx context.Context, kind string, data map[string]any) (walker.Result, error) {
	f.record(Call{Kind: "create_node", Name: kind, Payload: data})
	f.mu.Lock()
	h := f.nodes[kind]
	f.seq++
	seq := f.seq
	f.mu.Unlock()
	if h != nil {
		return h(ctx, data)
	}
	out := walker.Result{}
	for k, v := range data {
		out[k] = v
	}
	out["id"] = fmt.Sprintf("%s_%d", kind, seq)
	if _, ok := out["createdAt"]; !ok {
		out["createdAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return out, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

// Calls returns every recorded call in arrival order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls with the given name.
func (f *Fake) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports whether Close was called after the last Connect.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}
