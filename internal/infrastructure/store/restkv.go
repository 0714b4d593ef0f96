package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// RESTKV is a KV backed by a managed key-value service spoken to over
// HTTPS, using the Upstash-style REST protocol: each request POSTs a
// single Redis command as a JSON array and receives {"result": ...}.
//
// This backend exists for deployments where a direct Redis connection is
// not available (serverless platforms fronting the store with an HTTP
// gateway).
type RESTKV struct {
	baseURL string
	token   string
	http    *http.Client
}

// restResult is the response envelope returned by the service.
type restResult struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// NewRESTKV creates a KV speaking the managed service's REST protocol.
func NewRESTKV(baseURL, token string, timeout time.Duration) *RESTKV {
	return &RESTKV{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// do executes one command against the service and returns the raw result.
func (s *RESTKV) do(ctx context.Context, command []any) (json.RawMessage, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshalling command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-side close, nothing to recover

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, data)
	}

	var result restResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrUnavailable, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, result.Error)
	}

	return result.Result, nil
}

// Set stores value under key with the given TTL.
func (s *RESTKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	seconds := strconv.Itoa(int(ttl.Seconds()))
	if _, err := s.do(ctx, []any{"SET", key, string(value), "EX", seconds}); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// Get retrieves the value stored under key.
func (s *RESTKV) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.do(ctx, []any{"GET", key})
	if err != nil {
		return nil, fmt.Errorf("getting %q: %w", key, err)
	}

	// Absent keys come back as a JSON null result.
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrNotFound
	}

	var value string
	if err := json.Unmarshal(result, &value); err != nil {
		return nil, fmt.Errorf("%w: decoding value for %q: %w", ErrUnavailable, key, err)
	}
	return []byte(value), nil
}

// Delete removes the given keys.
func (s *RESTKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	command := make([]any, 0, len(keys)+1)
	command = append(command, "DEL")
	for _, key := range keys {
		command = append(command, key)
	}
	if _, err := s.do(ctx, command); err != nil {
		return fmt.Errorf("deleting keys: %w", err)
	}
	return nil
}

// Ping verifies the service is reachable.
func (s *RESTKV) Ping(ctx context.Context) error {
	if _, err := s.do(ctx, []any{"PING"}); err != nil {
		return err
	}
	return nil
}

// Close is a no-op; the HTTP client holds no persistent connection state
// worth tearing down explicitly.
func (s *RESTKV) Close() error {
	s.http.CloseIdleConnections()
	return nil
}
