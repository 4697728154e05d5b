package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL             = "https://api.airtable.com/v0"
	defaultRequestsPerSec      = 5
	maxRecordsPerWrite         = 10
	maxPageSize                = 100
	responseBodyReadLimit int64 = 2048
)

var (
	errAPIKeyRequired = errors.New("airtable api key is required")
	errBaseIDRequired = errors.New("airtable base id is required")
)

// Fields is the loosely typed column map Airtable stores per record.
type Fields map[string]any

// Record is a single Airtable row.
type Record struct {
	ID          string `json:"id,omitempty"`
	Fields      Fields `json:"fields"`
	CreatedTime string `json:"createdTime,omitempty"`
}

// Client talks to one Airtable base. Calls are rate limited to the per-base
// quota and short-circuited while the API keeps failing.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	baseID     string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*rawResponse]
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Airtable API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithRateLimit overrides the request rate. A non-positive value disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a client for the given base.
func NewClient(apiKey, baseID string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}
	trimmedBase := strings.TrimSpace(baseID)
	if trimmedBase == "" {
		return nil, errBaseIDRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseID:     trimmedBase,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSec), 1),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	client.breaker = gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        "airtable:" + trimmedBase,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return client, nil
}

// CreateRecords inserts records in batches of ten, the API maximum, and
// returns the created rows in input order.
func (c *Client) CreateRecords(ctx context.Context, table string, records []Fields) ([]Record, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "airtable client not configured")
	}
	if len(records) == 0 {
		return nil, nil
	}

	created := make([]Record, 0, len(records))
	for start := 0; start < len(records); start += maxRecordsPerWrite {
		end := start + maxRecordsPerWrite
		if end > len(records) {
			end = len(records)
		}

		payload := struct {
			Records  []Record `json:"records"`
			Typecast bool     `json:"typecast"`
		}{Typecast: true}
		for _, fields := range records[start:end] {
			payload.Records = append(payload.Records, Record{Fields: fields})
		}

		var resp struct {
			Records []Record `json:"records"`
		}
		if err := c.do(ctx, http.MethodPost, c.tableURL(table, ""), payload, &resp); err != nil {
			return created, err
		}
		created = append(created, resp.Records...)
	}
	return created, nil
}

// CreateRecord inserts one record and returns its id.
func (c *Client) CreateRecord(ctx context.Context, table string, fields Fields) (string, error) {
	created, err := c.CreateRecords(ctx, table, []Fields{fields})
	if err != nil {
		return "", err
	}
	if len(created) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "airtable returned no record")
	}
	return created[0].ID, nil
}

// UpdateRecord patches the given fields on an existing record.
func (c *Client) UpdateRecord(ctx context.Context, table, recordID string, fields Fields) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "airtable client not configured")
	}
	if strings.TrimSpace(recordID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "record id is required")
	}
	payload := struct {
		Fields   Fields `json:"fields"`
		Typecast bool   `json:"typecast"`
	}{Fields: fields, Typecast: true}
	return c.do(ctx, http.MethodPatch, c.tableURL(table, recordID), payload, nil)
}

// GetRecord fetches a record by id.
func (c *Client) GetRecord(ctx context.Context, table, recordID string) (*Record, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "airtable client not configured")
	}
	if strings.TrimSpace(recordID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "record id is required")
	}
	var rec Record
	if err := c.do(ctx, http.MethodGet, c.tableURL(table, recordID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecords pages through a table, optionally filtered by an Airtable formula.
func (c *Client) ListRecords(ctx context.Context, table, formula string) ([]Record, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "airtable client not configured")
	}

	var (
		out    []Record
		offset string
	)
	for {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprintf("%d", maxPageSize))
		if formula != "" {
			q.Set("filterByFormula", formula)
		}
		if offset != "" {
			q.Set("offset", offset)
		}

		var page struct {
			Records []Record `json:"records"`
			Offset  string   `json:"offset"`
		}
		if err := c.do(ctx, http.MethodGet, c.tableURL(table, "")+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if page.Offset == "" {
			return out, nil
		}
		offset = page.Offset
	}
}

// StatusError is a 4xx answer Airtable gave for a well-formed request.
// Retrying the same payload will not change the outcome.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("airtable status %d: %s", e.Status, e.Body)
}

// IsRejected reports whether err carries a StatusError.
func IsRejected(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

type rawResponse struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal airtable request")
		}
		payload = encoded
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "airtable rate limiter")
	}

	resp, err := c.breaker.Execute(func() (*rawResponse, error) {
		return c.send(ctx, method, target, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "airtable circuit open")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("airtable %s request failed", strings.ToLower(method)))
	}

	switch {
	case resp.status == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, "airtable record not found")
	case resp.status >= http.StatusBadRequest:
		statusErr := &StatusError{Status: resp.status, Body: strings.TrimSpace(string(resp.body))}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, statusErr, "airtable rejected request")
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode airtable response")
	}
	return nil
}

// send performs one HTTP round trip. Transport errors, 429 and 5xx count
// against the breaker; other 4xx responses are returned as values.
func (c *Client) send(ctx context.Context, method, target string, payload []byte) (*rawResponse, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	limit := int64(-1)
	if resp.StatusCode >= http.StatusBadRequest {
		limit = responseBodyReadLimit
	}
	var data []byte
	if limit > 0 {
		data, err = io.ReadAll(io.LimitReader(resp.Body, limit))
	} else {
		data, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, err
	}
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}

func (c *Client) tableURL(table, recordID string) string {
	u := fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(c.baseID), url.PathEscape(table))
	if recordID != "" {
		u += "/" + url.PathEscape(recordID)
	}
	return u
}
