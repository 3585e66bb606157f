// Package walker is the operation client: it invokes named remote walkers and
// creates entities against a single endpoint, tracking in-flight calls and
// reporting outcomes to a notification sink.
package walker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"wastelink/internal/metrics"
	"wastelink/internal/notify"
)

type Config struct {
	Endpoint  string
	Transport string
	Timeout   time.Duration // per attempt and per call; 0 means no client-side bound
	Retries   int           // extra connection attempts after the first
	Token     string
	RateLimit float64 // calls per second; 0 disables limiting
	RateBurst int
}

type Client struct {
	cfg     Config
	tr      Transport
	sink    notify.Sink
	log     *zap.Logger
	limiter *rate.Limiter
	backoff func(attempt int) time.Duration
	calls   *tracker
	init    singleflight.Group

	mu    sync.RWMutex
	ready bool
}

type Option func(*Client)

func WithSink(s notify.Sink) Option { return func(c *Client) { c.sink = s } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithBackoff overrides the delay between connection attempts.
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = f }
}

// New returns an uninitialized client using tr.
func New(cfg Config, tr Transport, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		tr:      tr,
		sink:    notify.Nop{},
		log:     zap.NewNop(),
		backoff: connectBackoff,
		calls:   newTracker(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial builds the configured transport and returns an uninitialized client.
func Dial(cfg Config, opts ...Option) (*Client, error) {
	tr, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, tr, opts...), nil
}

func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Busy reports whether any call is in flight.
func (c *Client) Busy() bool { return c.calls.busy() }

// InFlight lists in-flight calls, oldest first.
func (c *Client) InFlight() []Call { return c.calls.list() }

// Initialize connects to the endpoint. It is idempotent, and concurrent
// callers share one attempt sequence.
func (c *Client) Initialize(ctx context.Context) error {
	if c.Ready() {
		return nil
	}
	_, err, _ := c.init.Do("init", func() (any, error) {
		if c.Ready() {
			return nil, nil
		}
		return nil, c.connect(ctx)
	})
	return err
}

func (c *Client) connect(ctx context.Context) error {
	id := c.calls.begin("initialize")
	defer c.calls.end(id)

	attempts := c.cfg.Retries + 1
	var err error
	made := 0
	for made < attempts {
		if made > 0 {
			wait := time.NewTimer(c.backoff(made - 1))
			select {
			case <-wait.C:
			case <-ctx.Done():
				wait.Stop()
				err = ctx.Err()
			}
			if ctx.Err() != nil {
				break
			}
		}
		made++
		actx, cancel := c.bound(ctx)
		err = c.tr.Connect(actx)
		cancel()
		if err == nil {
			c.mu.Lock()
			c.ready = true
			c.mu.Unlock()
			c.log.Info("walker client initialized", zap.String("endpoint", c.cfg.Endpoint), zap.Int("attempt", made))
			notify.Success(ctx, c.sink, "initialize", "walker client initialized")
			return nil
		}
		c.log.Warn("walker connect attempt failed", zap.String("endpoint", c.cfg.Endpoint), zap.Int("attempt", made), zap.Error(err))
	}
	cerr := &ConnectionError{Endpoint: c.cfg.Endpoint, Attempts: made, Err: err}
	notify.Failure(ctx, c.sink, "initialize", "could not reach walker endpoint", cerr)
	return cerr
}

// Invoke spawns the named walker with payload as its context. Calls are not retried.
func (c *Client) Invoke(ctx context.Context, name string, payload map[string]any) (Result, error) {
	res, err := c.call(ctx, "spawn", name, func(ctx context.Context) (Result, error) {
		return c.tr.Spawn(ctx, name, payload)
	})
	if err != nil {
		if errors.Is(err, ErrNotInitialized) {
			return nil, err
		}
		rerr := &RemoteOperationError{Op: name, Err: err}
		notify.Failure(ctx, c.sink, name, fmt.Sprintf("Failed to execute %s", name), rerr)
		return nil, rerr
	}
	return res, nil
}

// Run runs the named walker rooted on an existing node.
func (c *Client) Run(ctx context.Context, name, nodeID string, payload map[string]any) (Result, error) {
	res, err := c.call(ctx, "run", name, func(ctx context.Context) (Result, error) {
		return c.tr.Run(ctx, name, nodeID, payload)
	})
	if err != nil {
		if errors.Is(err, ErrNotInitialized) {
			return nil, err
		}
		rerr := &RemoteOperationError{Op: name, Err: err}
		notify.Failure(ctx, c.sink, name, fmt.Sprintf("Failed to execute %s on %s", name, nodeID), rerr)
		return nil, rerr
	}
	return res, nil
}

// CreateEntity creates a node of the given kind. The returned entity carries
// the endpoint-assigned id.
func (c *Client) CreateEntity(ctx context.Context, kind string, data map[string]any) (Result, error) {
	op := "create_" + kind
	res, err := c.call(ctx, "create_node", op, func(ctx context.Context) (Result, error) {
		res, err := c.tr.CreateNode(ctx, kind, data)
		if err == nil {
			if id, _ := res["id"].(string); id == "" {
				err = errors.New("response has no id")
			}
		}
		return res, err
	})
	if err != nil {
		if errors.Is(err, ErrNotInitialized) {
			return nil, err
		}
		cerr := &CreateEntityError{Kind: kind, Err: err}
		notify.Failure(ctx, c.sink, op, fmt.Sprintf("Failed to create %s", kind), cerr)
		return nil, cerr
	}
	notify.Success(ctx, c.sink, op, fmt.Sprintf("%s created successfully", kind))
	return res, nil
}

func (c *Client) call(ctx context.Context, kind, op string, fn func(context.Context) (Result, error)) (Result, error) {
	if !c.Ready() {
		return nil, ErrNotInitialized
	}
	id := c.calls.begin(op)
	defer c.calls.end(id)
	metrics.WalkerInFlight.Inc()
	defer metrics.WalkerInFlight.Dec()

	start := time.Now()
	res, err := c.exec(ctx, fn)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.WalkerCalls.WithLabelValues(kind, op, outcome).Inc()
	metrics.WalkerDuration.WithLabelValues(kind, op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Warn("walker call failed", zap.String("kind", kind), zap.String("op", op), zap.Duration("took", time.Since(start)), zap.Error(err))
	} else {
		c.log.Debug("walker call", zap.String("kind", kind), zap.String("op", op), zap.Duration("took", time.Since(start)))
	}
	return res, err
}

func (c *Client) exec(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	cctx, cancel := c.bound(ctx)
	defer cancel()
	return fn(cctx)
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// Close releases the transport. The client must be initialized again before reuse.
func (c *Client) Close() error {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	return c.tr.Close()
}

func connectBackoff(attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	return 200 * time.Millisecond * time.Duration(1<<attempt)
}
