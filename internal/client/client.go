// Package client is a typed HTTP client for the device compliance API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"devcompliance/internal/compliance/handler"
	id "devcompliance/pkg/domain"
	dErrors "devcompliance/pkg/domain-errors"
	"devcompliance/pkg/platform/httputil"
)

// Client calls a device compliance server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New parses baseURL (for example "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q must use http or https", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Initialize creates or resets the record for deviceID.
func (c *Client) Initialize(ctx context.Context, deviceID id.DeviceID, nextRequired time.Time) (*handler.ComplianceRecordResponse, error) {
	next := nextRequired.Unix()
	var out handler.ComplianceRecordResponse
	err := c.do(ctx, http.MethodPut, devicePath(deviceID, ""), nil,
		handler.InitializeRequest{NextRequiredDate: &next}, http.StatusCreated, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordMaintenance records maintenance at performedAt, or at the server's
// request time when performedAt is zero.
func (c *Client) RecordMaintenance(ctx context.Context, deviceID id.DeviceID, performedAt time.Time) error {
	var body any
	if !performedAt.IsZero() {
		at := performedAt.Unix()
		body = handler.MaintenanceRequest{PerformedAt: &at}
	}
	return c.do(ctx, http.MethodPost, devicePath(deviceID, "/maintenance"), nil, body, http.StatusNoContent, nil)
}

// AttachCertification attaches or replaces the device certificate.
func (c *Client) AttachCertification(ctx context.Context, deviceID id.DeviceID, certificationID string, expiry time.Time) error {
	exp := expiry.Unix()
	return c.do(ctx, http.MethodPut, devicePath(deviceID, "/certification"), nil,
		handler.CertificationRequest{CertificationID: certificationID, ExpiresAt: &exp}, http.StatusNoContent, nil)
}

// GetComplianceDetails fetches the stored record. A missing record is an
// error carrying dErrors.CodeNotFound.
func (c *Client) GetComplianceDetails(ctx context.Context, deviceID id.DeviceID) (*handler.ComplianceRecordResponse, error) {
	var out handler.ComplianceRecordResponse
	if err := c.do(ctx, http.MethodGet, devicePath(deviceID, ""), nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status evaluates both verdicts at the given time, or at the server's
// request time when at is zero.
func (c *Client) Status(ctx context.Context, deviceID id.DeviceID, at time.Time) (*handler.ComplianceStatusResponse, error) {
	q := url.Values{}
	if !at.IsZero() {
		q.Set("at", strconv.FormatInt(at.Unix(), 10))
	}
	var out handler.ComplianceStatusResponse
	if err := c.do(ctx, http.MethodGet, devicePath(deviceID, "/status"), q, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func devicePath(deviceID id.DeviceID, suffix string) string {
	return "/devices/" + url.PathEscape(deviceID.String()) + "/compliance" + suffix
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, want int, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance server unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns the server's error envelope back into a coded error.
func decodeError(resp *http.Response) error {
	var env httputil.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == "" {
		return dErrors.New(codeForStatus(resp.StatusCode), fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	msg := env.ErrorDescription
	if msg == "" {
		msg = env.Error
	}
	return dErrors.New(dErrors.Code(env.Error), msg)
}

func codeForStatus(status int) dErrors.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return dErrors.CodeBadRequest
	case http.StatusNotFound:
		return dErrors.CodeNotFound
	case http.StatusConflict:
		return dErrors.CodeConflict
	case http.StatusServiceUnavailable:
		return dErrors.CodeUnavailable
	default:
		return dErrors.CodeInternal
	}
}
