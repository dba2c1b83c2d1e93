// Package api is the client for the analysis producer's control plane:
// starting runs and what-if scenarios and listing past runs. Streams are
// consumed through internal/stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/otel"
)

var (
	// ErrNotFound means the run or scenario does not exist, or the run has
	// not completed and cannot seed a scenario.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the password was rejected.
	ErrForbidden = errors.New("invalid password")
)

// APIError is a non-success reply from the producer.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("producer error (status %d)", e.Code)
	}
	return fmt.Sprintf("producer error (status %d): %s", e.Code, e.Message)
}

// Unwrap maps 404 and 403 to ErrNotFound and ErrForbidden.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrForbidden
	}
	return nil
}

// ScenarioTicket identifies a started what-if scenario. StreamKey addresses
// its stream.
type ScenarioTicket struct {
	ScenarioID string `json:"scenario_id"`
	StreamKey  string `json:"stream_key"`
}

// Client talks to the producer. Safe for concurrent use.
type Client struct {
	baseURL  string
	password string
	client   *http.Client
	limiter  *rate.Limiter
	journal  *otel.Logger
	backoffs []time.Duration
}

// NewClient creates a client for baseURL allowing rps requests per second.
// rps <= 0 disables throttling.
func NewClient(baseURL, password string, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// SetJournal attaches a stream journal for request events.
func (c *Client) SetJournal(l *otel.Logger) { c.journal = l }

// BaseURL returns the producer's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// StartRun starts an analysis and returns its run id.
func (c *Client) StartRun(ctx context.Context, cfg model.RunConfig) (string, error) {
	if strings.TrimSpace(cfg.Country) == "" {
		return "", errors.New("start run: country is required")
	}
	body, err := json.Marshal(startRunRequest{RunConfig: cfg, Password: c.password})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/analyze", body, false)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	id := gjson.GetBytes(resp, "analysis_id")
	if id.Type != gjson.String || id.Str == "" {
		return "", fmt.Errorf("start run: response has no analysis_id")
	}
	c.journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRunStart, Comp: "api", RunID: id.Str, Msg: cfg.Subject()})
	return id.Str, nil
}

// StartScenario injects a hypothetical shock into a completed run.
func (c *Client) StartScenario(ctx context.Context, runID, scenario string) (ScenarioTicket, error) {
	if runID == "" || strings.TrimSpace(scenario) == "" {
		return ScenarioTicket{}, errors.New("start scenario: run id and scenario text are required")
	}
	body, err := json.Marshal(map[string]string{"scenario": scenario})
	if err != nil {
		return ScenarioTicket{}, fmt.Errorf("marshal request: %w", err)
	}

	path := "/api/analyze/" + url.PathEscape(runID) + "/what-if"
	resp, err := c.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return ScenarioTicket{}, fmt.Errorf("start scenario: %w", err)
	}
	var ticket ScenarioTicket
	if err := json.Unmarshal(resp, &ticket); err != nil {
		return ScenarioTicket{}, fmt.Errorf("parse scenario ticket: %w", err)
	}
	if ticket.StreamKey == "" {
		return ScenarioTicket{}, errors.New("start scenario: response has no stream_key")
	}
	c.journal.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindScenarioStart, Comp: "api", RunID: runID, Scenario: ticket.StreamKey})
	return ticket, nil
}

// ListRuns returns the producer's runs, newest first.
func (c *Client) ListRuns(ctx context.Context) ([]model.RunSummary, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/runs", nil, true)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := gjson.GetBytes(resp, "runs")
	if !runs.IsArray() {
		return nil, errors.New("list runs: response has no runs array")
	}
	var out []model.RunSummary
	var bad int
	runs.ForEach(func(_, v gjson.Result) bool {
		var r model.RunSummary
		if !v.IsObject() || json.Unmarshal([]byte(v.Raw), &r) != nil || r.ID == "" {
			bad++
			return true
		}
		out = append(out, r)
		return true
	})
	if bad > 0 {
		logging.Warn("skipped unreadable run rows", "count", bad)
	}
	return out, nil
}

type startRunRequest struct {
	model.RunConfig
	Password string `json:"password,omitempty"`
}

// do sends one request and returns the body of a successful reply.
// Idempotent requests are retried on 429 and 5xx with backoff.
func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotent bool) ([]byte, error) {
	attempts := 1
	if idempotent {
		attempts += len(c.backoffs)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoffs[attempt-1]):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		start := time.Now()
		resp, err := c.once(ctx, method, path, body)
		c.journal.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindAPIRequest, Comp: "api", Msg: method + " " + path, Dur: time.Since(start)})
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		c.journal.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindAPIError, Comp: "api", Msg: method + " " + path, Err: err.Error()})

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code != http.StatusTooManyRequests && apiErr.Code < 500 {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if err := embeddedError(data); err != nil {
		return nil, err
	}
	return data, nil
}

// embeddedError detects a failure reported inside a 200 reply. The
// producer answers some errors with a [{"error": msg}, code] pair.
func embeddedError(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsArray() {
		return nil
	}
	pair := res.Array()
	if len(pair) != 2 || pair[1].Type != gjson.Number {
		return nil
	}
	msg := pair[0].Get("error")
	if !msg.Exists() {
		return nil
	}
	return &APIError{Code: int(pair[1].Int()), Message: msg.String()}
}

func errorMessage(data []byte) string {
	for _, path := range []string{"error", "detail", "message"} {
		if v := gjson.GetBytes(data, path); v.Type == gjson.String {
			return v.Str
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200] + "..." + strconv.Itoa(len(msg)-200) + " more bytes"
	}
	return msg
}
