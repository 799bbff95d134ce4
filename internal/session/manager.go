package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shehryarbajwa/pagetrack/internal/activity"
	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

// PageInfoProvider reports the page the client is currently embedded in
type PageInfoProvider interface {
	PageInfo() models.PageInfo
}

// VisitorSource returns the durable visitor id
type VisitorSource interface {
	GetOrCreate(ctx context.Context) string
}

// Delivery is the subset of the collector client the manager drives
type Delivery interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.CreateSessionResponse, error)
	UpdateSession(ctx context.Context, sessionID string, req models.UpdateSessionRequest) error
	EndSession(ctx context.Context, sessionID string, batch models.EventBatch)
}

// EventQueue holds the events of the active session
type EventQueue interface {
	Add(event models.Event) int
	Drain() []models.Event
}

// Manager owns the session id and its start context. A session is active
// exactly while the id is set; creating and ending are in-flight
// conditions, not states.
type Manager struct {
	mu           sync.Mutex
	sessionID    string
	startContext models.StartContext

	projectID string
	visitors  VisitorSource
	page      PageInfoProvider
	delivery  Delivery
	queue     EventQueue
	monitor   *activity.Monitor
	creates   singleflight.Group
	logger    *zap.Logger
}

// Deps groups the collaborators of a Manager
type Deps struct {
	ProjectID string
	Visitors  VisitorSource
	Page      PageInfoProvider
	Delivery  Delivery
	Queue     EventQueue
	Monitor   *activity.Monitor
	Logger    *zap.Logger
}

// NewManager creates a manager in the no-session state and binds the
// monitor's timeout to EndSession.
func NewManager(deps Deps) *Manager {
	m := &Manager{
		projectID: deps.ProjectID,
		visitors:  deps.Visitors,
		page:      deps.Page,
		delivery:  deps.Delivery,
		queue:     deps.Queue,
		monitor:   deps.Monitor,
		logger:    deps.Logger,
	}
	m.monitor.OnTimeout(m.handleInactivity)
	return m
}

// CreateSession asks the collector for a session id. It does nothing if a
// session is active, and concurrent calls share one request. On failure
// the manager stays without a session.
func (m *Manager) CreateSession(ctx context.Context) {
	if m.Active() {
		return
	}

	m.creates.Do("create", func() (any, error) {
		// another caller may have finished creating while we waited
		if m.Active() {
			return nil, nil
		}

		page := m.page.PageInfo()
		req := models.CreateSessionRequest{
			VisitorID: m.visitors.GetOrCreate(ctx),
			Project:   m.projectID,
			Referrer:  page.ReferrerOrDirect(),
			PageURL:   page.Path,
			PageTitle: page.Title,
			UserAgent: page.UserAgent,
		}

		resp, err := m.delivery.CreateSession(ctx, req)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.sessionID = resp.SessionID
		m.startContext = models.StartContext{
			Referrer:  req.Referrer,
			PageURL:   req.PageURL,
			PageTitle: req.PageTitle,
			UserAgent: req.UserAgent,
		}
		m.mu.Unlock()

		m.logger.Debug("session created", zap.String("sessionId", resp.SessionID))
		m.monitor.Reset()
		return nil, nil
	})
}

// UpdateSession reports the current page for the active session, creating
// one if none is active. It does not touch the inactivity timer.
func (m *Manager) UpdateSession(ctx context.Context) {
	sessionID := m.SessionID()
	if sessionID == "" {
		m.CreateSession(ctx)
		return
	}

	page := m.page.PageInfo()
	// failures are logged by the delivery client
	_ = m.delivery.UpdateSession(ctx, sessionID, models.UpdateSessionRequest{
		ExitPage:  page.Path,
		PageURL:   page.Path,
		PageTitle: page.Title,
		Referrer:  page.ReferrerOrDirect(),
	})
}

// EndSession sends the residual queued events with the end notification
// and clears the session immediately, whatever happens to the request.
func (m *Manager) EndSession(ctx context.Context) {
	m.mu.Lock()
	sessionID := m.sessionID
	if sessionID == "" {
		m.mu.Unlock()
		return
	}
	m.sessionID = ""
	m.startContext = models.StartContext{}
	// drained under the lock so Record cannot slip an event in behind it
	batch := models.NewEventBatch(m.queue.Drain())
	m.mu.Unlock()

	m.logger.Debug("ending session",
		zap.String("sessionId", sessionID),
		zap.Int("events", len(batch.Events)),
	)
	m.delivery.EndSession(ctx, sessionID, batch)
}

// Record stamps event with the active session id and queues it. It
// reports false, queueing nothing, when no session is active.
func (m *Manager) Record(event models.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		return false
	}
	event.SessionID = m.sessionID
	m.queue.Add(event)
	return true
}

// SessionID returns the active session id, or "" when there is none
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Active reports whether a session id is set
func (m *Manager) Active() bool {
	return m.SessionID() != ""
}

// Status returns the session status for listings
func (m *Manager) Status() models.SessionStatus {
	if m.Active() {
		return models.StatusActive
	}
	return models.StatusNone
}

// StartContext returns the context captured when the active session was
// created
func (m *Manager) StartContext() models.StartContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startContext
}

// handleInactivity ends the session once the visitor has been idle for the
// full activity timeout
func (m *Manager) handleInactivity() {
	m.logger.Debug("inactivity timeout")
	m.EndSession(context.Background())
}
