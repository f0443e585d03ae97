// Package marketclient is a typed HTTP client for the marketplace API.
package marketclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gorilla/websocket"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

// DefaultTimeout bounds each request when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

// Client talks to a marketplace instance. Non-2xx responses are mapped back
// onto the ledger error taxonomy so callers can use errors.Is; transport
// failures surface as ledger.ErrUpstreamUnavailable.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request; non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// New constructs a client for baseURL (e.g. http://localhost:4000).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the marketplace root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Agents lists registered agents.
func (c *Client) Agents(ctx context.Context) ([]ledger.Agent, error) {
	var out []ledger.Agent
	err := c.do(ctx, http.MethodGet, "/agents", nil, &out)
	return out, err
}

// Agent fetches one agent by wallet.
func (c *Client) Agent(ctx context.Context, id string) (ledger.Agent, error) {
	var out ledger.Agent
	err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Jobs lists all jobs.
func (c *Client) Jobs(ctx context.Context) ([]ledger.Job, error) {
	var out []ledger.Job
	err := c.do(ctx, http.MethodGet, "/jobs", nil, &out)
	return out, err
}

// Job fetches one job.
func (c *Client) Job(ctx context.Context, id string) (ledger.Job, error) {
	var out ledger.Job
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Transactions returns the recent ledger window, oldest first.
func (c *Client) Transactions(ctx context.Context) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := c.do(ctx, http.MethodGet, "/transactions", nil, &out)
	return out, err
}

// Stats returns the marketplace rollup.
func (c *Client) Stats(ctx context.Context) (ledger.Stats, error) {
	var out ledger.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// Register creates or refreshes an agent record.
func (c *Client) Register(ctx context.Context, req ledger.RegisterRequest) (ledger.Agent, error) {
	var out struct {
		Agent ledger.Agent `json:"agent"`
	}
	err := c.do(ctx, http.MethodPost, "/register", req, &out)
	return out.Agent, err
}

// SetStatus changes an agent's liveness.
func (c *Client) SetStatus(ctx context.Context, id string, status ledger.AgentStatus) (ledger.Agent, error) {
	var out struct {
		Agent ledger.Agent `json:"agent"`
	}
	err := c.do(ctx, http.MethodPost, "/agents/"+url.PathEscape(id)+"/status", map[string]string{"status": string(status)}, &out)
	return out.Agent, err
}

// CreateJob opens a pending job.
func (c *Client) CreateJob(ctx context.Context, req ledger.CreateJobRequest) (ledger.Job, error) {
	var out struct {
		Job ledger.Job `json:"job"`
	}
	err := c.do(ctx, http.MethodPost, "/create-job", req, &out)
	return out.Job, err
}

// CompleteJob resolves a job with result, which must marshal to JSON.
func (c *Client) CompleteJob(ctx context.Context, jobID string, result any) (ledger.CompletionResult, error) {
	var out ledger.CompletionResult
	err := c.do(ctx, http.MethodPost, "/job-complete", map[string]any{"jobId": jobID, "result": result}, &out)
	return out, err
}

// FailJob resolves a job as failed.
func (c *Client) FailJob(ctx context.Context, jobID, reason string) (ledger.Job, error) {
	var out struct {
		Job ledger.Job `json:"job"`
	}
	err := c.do(ctx, http.MethodPost, "/job-fail", map[string]string{"jobId": jobID, "reason": reason}, &out)
	return out.Job, err
}

// RecordTransaction appends a raw payment record.
func (c *Client) RecordTransaction(ctx context.Context, req ledger.TransactionRequest) (ledger.Transaction, error) {
	var out struct {
		Transaction ledger.Transaction `json:"transaction"`
	}
	err := c.do(ctx, http.MethodPost, "/transaction", req, &out)
	return out.Transaction, err
}

// DialFeed opens the real-time event stream.
func (c *Client) DialFeed(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, errorsmod.Wrap(ledger.ErrInvalidInput, err.Error())
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errorsmod.Wrap(ledger.ErrUpstreamUnavailable, err.Error())
	}
	return conn, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errorsmod.Wrap(ledger.ErrInvalidInput, err.Error())
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errorsmod.Wrap(ledger.ErrInvalidInput, err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "decode %s %s: %v", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	base := ledger.ErrorForStatus(resp.StatusCode)
	var body ledger.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
		if known := ledger.ErrorForCode(body.Code); known != nil {
			base = known
		}
	}
	if msg == "" {
		msg = resp.Status
	}
	return errorsmod.Wrap(base, msg)
}
