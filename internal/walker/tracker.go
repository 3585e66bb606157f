package walker

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Call describes one in-flight client operation.
type Call struct {
	ID      string
	Op      string
	Started time.Time
}

// tracker is the set of in-flight calls. Each call removes only its own
// entry, so overlapping calls never clear each other's busy state.
type tracker struct {
	mu    sync.Mutex
	calls map[string]Call
}

func newTracker() *tracker {
	return &tracker{calls: map[string]Call{}}
}

func (t *tracker) begin(op string) string {
	c := Call{ID: uuid.NewString(), Op: op, Started: time.Now()}
	t.mu.Lock()
	t.calls[c.ID] = c
	t.mu.Unlock()
	return c.ID
}

func (t *tracker) end(id string) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}

func (t *tracker) busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls) > 0
}

func (t *tracker) list() []Call {
	t.mu.Lock()
	out := make([]Call, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, c)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
