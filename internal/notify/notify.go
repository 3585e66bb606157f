// Package notify is the notification surface: it turns operation outcomes
// into user-visible feedback. Sinks observe outcomes; they never change how
// errors propagate to callers.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	Err     string    `json:"error,omitempty"`
	TS      time.Time `json:"ts"`
}

// Sink receives notifications. Implementations must be safe for concurrent use
// and must not block for long.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Success reports a successful operation.
func Success(ctx context.Context, s Sink, op, msg string) {
	emit(ctx, s, Notification{Level: LevelSuccess, Op: op, Message: msg})
}

// Failure reports a failed operation. err may be nil.
func Failure(ctx context.Context, s Sink, op, msg string, err error) {
	n := Notification{Level: LevelError, Op: op, Message: msg}
	if err != nil {
		n.Err = err.Error()
	}
	emit(ctx, s, n)
}

// Info reports something worth showing that is neither success nor failure.
func Info(ctx context.Context, s Sink, op, msg string) {
	emit(ctx, s, Notification{Level: LevelInfo, Op: op, Message: msg})
}

func emit(ctx context.Context, s Sink, n Notification) {
	if s == nil {
		return
	}
	n.ID = uuid.NewString()
	n.TS = time.Now().UTC()
	s.Notify(ctx, n)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// Fanout delivers each notification to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, s := range f {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}
