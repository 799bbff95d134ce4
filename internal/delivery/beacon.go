package delivery

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// HTTPBeacon is the unload-safe primitive for hosts without a browser
// sendBeacon. Payloads are POSTed on detached goroutines that outlive the
// caller's context, bounded by an in-flight limit.
type HTTPBeacon struct {
	httpClient *http.Client
	inFlight   *semaphore.Weighted
	limit      int64
	timeout    time.Duration
	logger     *zap.Logger
}

// NewHTTPBeacon allows at most maxInFlight queued payloads. Beyond that
// SendBeacon refuses, like a browser whose beacon queue is full.
func NewHTTPBeacon(httpClient *http.Client, maxInFlight int64, timeout time.Duration, logger *zap.Logger) *HTTPBeacon {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPBeacon{
		httpClient: httpClient,
		inFlight:   semaphore.NewWeighted(maxInFlight),
		limit:      maxInFlight,
		timeout:    timeout,
		logger:     logger,
	}
}

// SendBeacon queues the POST and returns immediately
func (b *HTTPBeacon) SendBeacon(url, contentType string, body []byte) bool {
	if !b.inFlight.TryAcquire(1) {
		return false
	}

	go func() {
		defer b.inFlight.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			b.logger.Error("beacon request failed", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set(requestIDHeader, uuid.New().String())

		resp, err := b.httpClient.Do(req)
		if err != nil {
			b.logger.Error("beacon request failed", zap.String("url", url), zap.Error(err))
			return
		}
		resp.Body.Close()
	}()
	return true
}

// Wait blocks until every queued payload has been sent or abandoned, or
// ctx is done. Used on daemon shutdown.
func (b *HTTPBeacon) Wait(ctx context.Context) error {
	if err := b.inFlight.Acquire(ctx, b.limit); err != nil {
		return err
	}
	b.inFlight.Release(b.limit)
	return nil
}
