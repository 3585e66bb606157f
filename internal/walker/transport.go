package walker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Result is the decoded JSON object returned by a walker or node creation.
type Result = map[string]any

// Transport carries walker calls to one endpoint. Implementations must be
// safe for concurrent use once Connect has returned.
type Transport interface {
	Connect(ctx context.Context) error
	Spawn(ctx context.Context, name string, payload map[string]any) (Result, error)
	Run(ctx context.Context, name, nodeID string, payload map[string]any) (Result, error)
	CreateNode(ctx context.Context, kind string, data map[string]any) (Result, error)
	Close() error
}

// NewTransport builds the transport named by cfg.Transport ("http" or "ws").
func NewTransport(cfg Config) (Transport, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", cfg.Endpoint)
	}
	switch strings.ToLower(cfg.Transport) {
	case "", "http":
		return NewHTTPTransport(cfg.Endpoint, cfg.Token, &http.Client{}), nil
	case "ws":
		return NewWSTransport(cfg.Endpoint, cfg.Token), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
