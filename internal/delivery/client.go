// Package delivery talks to the remote collector: session create, update
// and end, and batched event logging.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

var (
	// ErrRequestFailed wraps transport errors and non-2xx answers
	ErrRequestFailed = errors.New("delivery: API request failed")

	// ErrMalformedResponse is returned when the body cannot be decoded or
	// lacks a required field
	ErrMalformedResponse = errors.New("delivery: malformed response")
)

const (
	contentTypeJSON   = "application/json"
	requestIDHeader   = "X-Request-ID"
	defaultTimeout    = 10 * time.Second
	endSessionTimeout = 5 * time.Second
)

// Beacon is an unload-safe, fire-and-forget send primitive. SendBeacon
// returns false when the payload could not be queued.
type Beacon interface {
	SendBeacon(url, contentType string, body []byte) bool
}

// Client performs the four collector operations. Failures are logged
// through logger (a no-op logger outside development) and returned as
// errors; nothing panics past this boundary.
type Client struct {
	baseURL    string
	httpClient *http.Client
	beacon     Beacon // may be nil
	logger     *zap.Logger
}

// NewClient creates a Client for baseURL (e.g. https://host/api/v1). A nil
// httpClient gets a client with a 10s timeout. A nil beacon makes
// EndSession fall back to an ordinary asynchronous request.
func NewClient(baseURL string, httpClient *http.Client, beacon Beacon, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		beacon:     beacon,
		logger:     logger,
	}
}

// CreateSession handles POST /session/create
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.CreateSessionResponse, error) {
	var resp models.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/session/create", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		err := fmt.Errorf("%w: missing sessionId", ErrMalformedResponse)
		c.logger.Error("session tracker API error", zap.Error(err))
		return nil, err
	}
	return &resp, nil
}

// UpdateSession handles PUT /session/update/{id}. The acknowledgement body
// is not interpreted.
func (c *Client) UpdateSession(ctx context.Context, sessionID string, req models.UpdateSessionRequest) error {
	return c.do(ctx, http.MethodPut, "/session/update/"+url.PathEscape(sessionID), req, nil)
}

// EndSession handles /session/end/{id}. It never waits for the collector:
// the payload goes through the beacon when one is available and accepts
// it, otherwise an ordinary POST is issued on a detached goroutine.
func (c *Client) EndSession(ctx context.Context, sessionID string, batch models.EventBatch) {
	path := "/session/end/" + url.PathEscape(sessionID)

	body, err := json.Marshal(batch)
	if err != nil {
		c.logger.Error("session tracker API error", zap.Error(err))
		return
	}

	if c.beacon != nil && c.beacon.SendBeacon(c.baseURL+path, contentTypeJSON, body) {
		return
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, endSessionTimeout)
		defer cancel()
		c.send(ctx, http.MethodPost, path, body, nil)
	}()
}

// LogEvents handles POST /events/log
func (c *Client) LogEvents(ctx context.Context, batch models.EventBatch) (*models.LogEventsResponse, error) {
	var resp models.LogEventsResponse
	if err := c.do(ctx, http.MethodPost, "/events/log", batch, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("session tracker API error", zap.Error(err))
		return fmt.Errorf("failed to marshal %s payload: %w", path, err)
	}
	return c.send(ctx, method, path, body, out)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	err := c.roundTrip(ctx, method, path, body, out)
	if err != nil {
		c.logger.Error("session tracker API error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set(requestIDHeader, uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s %s returned %d", ErrRequestFailed, method, path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
