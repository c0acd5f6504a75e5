package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"callpanel/internal/api"
	"callpanel/internal/record"
	"callpanel/internal/workflow"
)

// ErrAPIUnavailable reports that no daemon answered at the configured address.
var ErrAPIUnavailable = errors.New("callpanel API unavailable")

// Identity and auth headers understood by the daemon.
const (
	headerActorID   = "X-Actor-Id"
	headerActorName = "X-Actor-Name"
)

// Client talks to the callpanel daemon over HTTP.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
	actor record.Actor
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithActor identifies the caller on mutating requests.
func WithActor(actor record.Actor) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the daemon bound at bind (host:port or URL).
func New(bind string, opts ...Option) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	c := &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Actor returns the identity sent with requests.
func (c *Client) Actor() record.Actor {
	return c.actor
}

// Health calls the unauthenticated health probe.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &out)
	return out, err
}

// Status returns daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Stats returns record counts by status.
func (c *Client) Stats(ctx context.Context) (api.StatsResponse, error) {
	var out api.StatsResponse
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out)
	return out, err
}

// List returns every record with its live lease.
func (c *Client) List(ctx context.Context) ([]workflow.Summary, error) {
	var resp api.RecordListResponse
	if err := c.do(ctx, http.MethodGet, "/api/records", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]workflow.Summary, 0, len(resp.Records))
	for _, dto := range resp.Records {
		s, err := api.ToSummary(dto)
		if err != nil {
			return nil, fmt.Errorf("decode record list: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Detail returns one record with its filters and lease.
func (c *Client) Detail(ctx context.Context, id int64) (*workflow.Detail, error) {
	return c.detail(ctx, http.MethodGet, recordPath(id), nil)
}

// Create adds a draft record.
func (c *Client) Create(ctx context.Context, req api.CreateRecordRequest) (*workflow.Detail, error) {
	return c.detail(ctx, http.MethodPost, "/api/records", req)
}

// Start begins filter n and takes the record's lease.
func (c *Client) Start(ctx context.Context, id int64, n int) (*workflow.Detail, error) {
	return c.detail(ctx, http.MethodPost, filterPath(id, n, "start"), nil)
}

// Finish completes filter n. A nil nextDueMinutes clears the record's due time.
func (c *Client) Finish(ctx context.Context, id int64, n int, nextDueMinutes *int) (*workflow.Detail, error) {
	return c.detail(ctx, http.MethodPost, filterPath(id, n, "finish"), api.FinishRequest{NextDueMinutes: nextDueMinutes})
}

// Cancel cancels the record with reason.
func (c *Client) Cancel(ctx context.Context, id int64, reason string) (*workflow.Detail, error) {
	return c.detail(ctx, http.MethodPost, recordPath(id)+"/cancel", api.CancelRequest{Reason: reason})
}

// Renew extends the caller's lease on the record.
func (c *Client) Renew(ctx context.Context, id int64) (record.Lease, error) {
	var resp api.LeaseResponse
	if err := c.do(ctx, http.MethodPost, recordPath(id)+"/lease/renew", nil, &resp); err != nil {
		return record.Lease{}, err
	}
	l, err := api.ToLease(&resp.Lease)
	if err != nil {
		return record.Lease{}, fmt.Errorf("decode lease: %w", err)
	}
	return *l, nil
}

func (c *Client) detail(ctx context.Context, method, path string, body any) (*workflow.Detail, error) {
	var resp api.RecordDetailResponse
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return nil, err
	}
	d, err := api.ToDetail(resp.Detail)
	if err != nil {
		return nil, fmt.Errorf("decode record detail: %w", err)
	}
	return d, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.actor.ID != "" {
		req.Header.Set(headerActorID, c.actor.ID)
		if c.actor.Name != "" {
			req.Header.Set(headerActorName, c.actor.Name)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isUnavailable(err) {
			return fmt.Errorf("%w: %w", ErrAPIUnavailable, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func recordPath(id int64) string {
	return "/api/records/" + strconv.FormatInt(id, 10)
}

func filterPath(id int64, n int, action string) string {
	return fmt.Sprintf("%s/filters/%d/%s", recordPath(id), n, action)
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAPIUnavailable) || isUnavailable(err)
}

func isUnavailable(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
