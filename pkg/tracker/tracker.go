// Package tracker is the page-embedded telemetry client: one Client per
// page context establishes the visitor identity, runs the session
// lifecycle, watches for inactivity and batches click events to the
// collector.
//
// Lifecycle:
//
//	client, err := tracker.New(cfg, env, logger) // fails only without a project id
//	client.Start(ctx)                            // periodic flush
//	client.Handle(ctx, signal)                   // for every page signal
//	client.Close()                               // stop timers
package tracker

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/pagetrack/internal/activity"
	"github.com/shehryarbajwa/pagetrack/internal/batcher"
	"github.com/shehryarbajwa/pagetrack/internal/bridge"
	"github.com/shehryarbajwa/pagetrack/internal/clock"
	"github.com/shehryarbajwa/pagetrack/internal/config"
	"github.com/shehryarbajwa/pagetrack/internal/delivery"
	"github.com/shehryarbajwa/pagetrack/internal/identity"
	"github.com/shehryarbajwa/pagetrack/internal/session"
	"github.com/shehryarbajwa/pagetrack/internal/storage"
	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

// Environment is the set of host capabilities the client runs against
type Environment struct {
	// Store keeps the visitor id. Nil degrades to a fresh id per call.
	Store storage.Store
	// Page reports the current page. Required.
	Page session.PageInfoProvider
	// Beacon is the unload-safe send primitive. Optional.
	Beacon delivery.Beacon
	// HTTPClient is used for ordinary collector requests. Optional.
	HTTPClient *http.Client
	// Clock drives the inactivity and flush timers. Defaults to clock.Real().
	Clock clock.Clock
}

// Client is one tracker instance
type Client struct {
	cfg      config.Config
	visitors *identity.Identity
	monitor  *activity.Monitor
	batcher  *batcher.Batcher
	sessions *session.Manager
	bridge   *bridge.Bridge
	logger   *zap.Logger

	closeOnce sync.Once
}

// New wires a Client. cfg is validated again here so a missing project id
// stops initialization before anything runs.
func New(cfg config.Config, env Environment, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if env.Page == nil {
		return nil, fmt.Errorf("tracker: environment has no page info provider")
	}
	if env.Clock == nil {
		env.Clock = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Debug("initializing analytics",
		zap.String("apiBaseUrl", cfg.APIBaseURL),
		zap.String("projectId", cfg.ProjectID),
	)

	client := delivery.NewClient(cfg.APIBaseURL, env.HTTPClient, env.Beacon, logger)
	visitors := identity.New(env.Store, logger)
	monitor := activity.NewMonitor(env.Clock, cfg.ActivityTimeout)
	events := batcher.New(client, env.Clock, logger, batcher.Options{
		MaxBatchSize:  cfg.BatchSize,
		FlushInterval: cfg.BatchInterval,
	})
	sessions := session.NewManager(session.Deps{
		ProjectID: cfg.ProjectID,
		Visitors:  visitors,
		Page:      env.Page,
		Delivery:  client,
		Queue:     events,
		Monitor:   monitor,
		Logger:    logger,
	})

	return &Client{
		cfg:      cfg,
		visitors: visitors,
		monitor:  monitor,
		batcher:  events,
		sessions: sessions,
		bridge:   bridge.New(sessions, events, monitor, visitors, cfg.ProjectID, logger),
		logger:   logger,
	}, nil
}

// Start begins the periodic flush. It runs until Close or ctx is done.
func (c *Client) Start(ctx context.Context) {
	c.batcher.Start(ctx)
}

// Handle processes one page signal
func (c *Client) Handle(ctx context.Context, signal models.Signal) {
	c.bridge.Dispatch(ctx, signal)
}

// Flush sends the queued events now
func (c *Client) Flush(ctx context.Context) error {
	return c.batcher.Flush(ctx)
}

// Close stops the flush loop and the inactivity timer. It does not end the
// session; deliver a beforeunload signal first for that.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.batcher.Stop()
		c.monitor.Stop()
	})
}

// SessionID returns the active session id or ""
func (c *Client) SessionID() string {
	return c.sessions.SessionID()
}

// Status returns whether a session is active
func (c *Client) Status() models.SessionStatus {
	return c.sessions.Status()
}

// VisitorID returns the durable visitor id
func (c *Client) VisitorID(ctx context.Context) string {
	return c.visitors.GetOrCreate(ctx)
}

// KnownVisitorID returns the visitor id once it has been resolved, or "".
// Unlike VisitorID it never reads or writes the store.
func (c *Client) KnownVisitorID() string {
	return c.visitors.Known()
}

// QueueLen returns the number of events waiting to be flushed
func (c *Client) QueueLen() int {
	return c.batcher.Len()
}

// Config returns the resolved configuration
func (c *Client) Config() config.Config {
	return c.cfg
}
