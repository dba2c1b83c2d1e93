// Package stream opens per-run and per-scenario event streams and splits
// them into event lines.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Transport opens the event stream of a run or of one of its what-if
// scenarios. Closing the returned body releases the subscription and
// unblocks any pending read.
type Transport interface {
	OpenRun(ctx context.Context, runID string) (io.ReadCloser, error)
	OpenScenario(ctx context.Context, runID, scenarioKey string) (io.ReadCloser, error)
}

// ErrStatus marks a stream request that got a non-2xx response.
var ErrStatus = errors.New("unexpected stream status")

// StatusError carries the status and a prefix of the body of a failed
// stream request. It unwraps to ErrStatus.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stream: status %d", e.Code)
	}
	return fmt.Sprintf("stream: status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// RunPath is the producer's stream endpoint for a run.
func RunPath(runID string) string {
	return "/api/analyze/" + url.PathEscape(runID) + "/stream"
}

// ScenarioPath is the producer's stream endpoint for a what-if scenario.
func ScenarioPath(runID, scenarioKey string) string {
	return "/api/analyze/" + url.PathEscape(runID) + "/what-if/" + url.PathEscape(scenarioKey) + "/stream"
}

// HTTPTransport reads server-sent event streams from the producer API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport returns a transport rooted at baseURL. A nil client
// uses a client without a timeout, since streams stay open for minutes.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (t *HTTPTransport) OpenRun(ctx context.Context, runID string) (io.ReadCloser, error) {
	return t.open(ctx, RunPath(runID))
}

func (t *HTTPTransport) OpenScenario(ctx context.Context, runID, scenarioKey string) (io.ReadCloser, error) {
	return t.open(ctx, ScenarioPath(runID, scenarioKey))
}

func (t *HTTPTransport) open(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp.Body, nil
}

// FileTransport replays recorded streams from a directory of NDJSON
// files: <runID>.ndjson for runs and <runID>.<scenarioKey>.ndjson for
// scenarios.
type FileTransport struct {
	Dir string
}

func (t FileTransport) OpenRun(_ context.Context, runID string) (io.ReadCloser, error) {
	return t.open(runID)
}

func (t FileTransport) OpenScenario(_ context.Context, runID, scenarioKey string) (io.ReadCloser, error) {
	return t.open(runID, scenarioKey)
}

func (t FileTransport) open(parts ...string) (io.ReadCloser, error) {
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, `/\`) || p == "." || p == ".." {
			return nil, fmt.Errorf("fixture name %q: invalid", p)
		}
	}
	path := filepath.Join(t.Dir, strings.Join(parts, ".")+".ndjson")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	return f, nil
}
