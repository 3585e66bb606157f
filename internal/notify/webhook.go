package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"wastelink/internal/metrics"
)

// WebhookSink forwards notifications to an HTTP endpoint from a background
// worker. Each delivery is a signed JSON POST retried with exponential backoff.
type WebhookSink struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Log         *zap.Logger

	queue chan Notification
	stop  chan struct{}
	done  chan struct{}
}

func NewWebhookSink(url, secret string, maxAttempts int, log *zap.Logger) *WebhookSink {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookSink{
		URL: url, Secret: secret, MaxAttempts: maxAttempts, Log: log,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		Backoff: nextBackoff,
		queue:   make(chan Notification, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Notify enqueues n; when the queue is full the notification is dropped.
func (w *WebhookSink) Notify(_ context.Context, n Notification) {
	select {
	case w.queue <- n:
	default:
		metrics.WebhookDeliveries.WithLabelValues(string(n.Level), "dropped").Inc()
		w.Log.Warn("webhook queue full, dropping notification", zap.String("op", n.Op))
	}
}

// Start runs the delivery worker until Close.
func (w *WebhookSink) Start() {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.stop:
				w.drain()
				return
			case n := <-w.queue:
				w.deliver(n, w.MaxAttempts)
			}
		}
	}()
}

// Close stops the worker after a single delivery attempt for anything still queued.
func (w *WebhookSink) Close() {
	close(w.stop)
	<-w.done
}

func (w *WebhookSink) drain() {
	for {
		select {
		case n := <-w.queue:
			w.deliver(n, 1)
		default:
			return
		}
	}
}

func (w *WebhookSink) deliver(n Notification, attempts int) {
	body, err := json.Marshal(n)
	if err != nil {
		return
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.Backoff(attempt - 1)):
			case <-w.stop:
				attempts = attempt + 1 // one last try, no more waiting
			}
		}
		if lastErr = w.post(body, n); lastErr == nil {
			metrics.WebhookDeliveries.WithLabelValues(string(n.Level), "delivered").Inc()
			return
		}
	}
	metrics.WebhookDeliveries.WithLabelValues(string(n.Level), "failed").Inc()
	w.Log.Warn("webhook delivery failed", zap.String("op", n.Op), zap.Error(lastErr))
}

func (w *WebhookSink) post(body []byte, n Notification) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", "notification."+string(n.Level))
	if w.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(w.Secret, body))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := 500 * time.Millisecond * time.Duration(1<<attempts)
	if base > time.Minute {
		base = time.Minute
	}
	return base
}
