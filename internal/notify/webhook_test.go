package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"op":"x"}`)
	sig := SignHMAC("s3cret", body)
	assert.True(t, VerifyHMAC("s3cret", body, sig))
	assert.False(t, VerifyHMAC("other", body, sig))
	assert.False(t, VerifyHMAC("s3cret", body, "zz"))
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, nextBackoff(0))
	assert.Equal(t, time.Second, nextBackoff(1))
	assert.Equal(t, time.Minute, nextBackoff(50))
	assert.Equal(t, 500*time.Millisecond, nextBackoff(-3))
}

func TestWebhookSinkRetriesAndSigns(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	var mu sync.Mutex
	var got Notification
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !VerifyHMAC("k", body, r.Header.Get("X-Signature")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		mu.Lock()
		_ = json.Unmarshal(body, &got)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		close(done)
	}))

	sink := NewWebhookSink(srv.URL, "k", 5, nil)
	sink.HTTP = srv.Client()
	sink.Backoff = func(int) time.Duration { return time.Millisecond }
	sink.Start()

	Success(context.Background(), sink, "update_request_status", "status updated")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered")
	}
	sink.Close()
	srv.Close()

	assert.EqualValues(t, 3, calls.Load())
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "update_request_status", got.Op)
	assert.Equal(t, LevelSuccess, got.Level)
}

func TestWebhookSinkCloseDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "", 3, nil)
	sink.HTTP = srv.Client()
	// not started: everything stays queued until Close drains it
	for i := 0; i < 4; i++ {
		Info(context.Background(), sink, "op", "queued")
	}
	sink.Start()
	sink.Close()
	assert.EqualValues(t, 4, calls.Load())
	srv.Client().CloseIdleConnections()
}
