package walker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPTransport speaks the walker protocol as JSON over HTTP.
type HTTPTransport struct {
	base  string
	token string
	hc    *http.Client
}

func NewHTTPTransport(endpoint, token string, hc *http.Client) *HTTPTransport {
	if hc == nil {
		hc = http.DefaultClient
	}
	base := strings.TrimRight(endpoint, "/")
	base = strings.Replace(base, "ws://", "http://", 1)
	base = strings.Replace(base, "wss://", "https://", 1)
	return &HTTPTransport{base: base, token: token, hc: hc}
}

func (t *HTTPTransport) Connect(ctx context.Context) error {
	_, err := t.do(ctx, http.MethodGet, "/healthz", nil)
	return err
}

func (t *HTTPTransport) Spawn(ctx context.Context, name string, payload map[string]any) (Result, error) {
	return t.do(ctx, http.MethodPost, "/v1/walkers/"+url.PathEscape(name)+"/spawn", map[string]any{"ctx": orEmpty(payload)})
}

func (t *HTTPTransport) Run(ctx context.Context, name, nodeID string, payload map[string]any) (Result, error) {
	path := "/v1/nodes/" + url.PathEscape(nodeID) + "/walkers/" + url.PathEscape(name)
	return t.do(ctx, http.MethodPost, path, map[string]any{"ctx": orEmpty(payload)})
}

func (t *HTTPTransport) CreateNode(ctx context.Context, kind string, data map[string]any) (Result, error) {
	return t.do(ctx, http.MethodPost, "/v1/nodes", map[string]any{"kind": kind, "data": orEmpty(data)})
}

func (t *HTTPTransport) Close() error {
	t.hc.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body any) (Result, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	resp, err := t.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeProblem(resp.StatusCode, raw)
	}
	out := Result{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func decodeProblem(code int, raw []byte) *StatusError {
	var p problem
	if err := json.Unmarshal(raw, &p); err != nil || p.Title == "" {
		return &StatusError{Code: code, Title: http.StatusText(code), Detail: strings.TrimSpace(string(raw))}
	}
	if p.Status != 0 {
		code = p.Status
	}
	return &StatusError{Code: code, Title: p.Title, Detail: p.Detail}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
