// Package feed hosts tracker clients for pages that stream their DOM
// signals over a websocket. Every connection is one page context with its
// own tracker.Client.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/pagetrack/internal/clock"
	"github.com/shehryarbajwa/pagetrack/internal/config"
	"github.com/shehryarbajwa/pagetrack/internal/delivery"
	"github.com/shehryarbajwa/pagetrack/internal/ratelimit"
	"github.com/shehryarbajwa/pagetrack/internal/storage"
	"github.com/shehryarbajwa/pagetrack/pkg/models"
	"github.com/shehryarbajwa/pagetrack/pkg/tracker"
)

// DefaultScope is used when a page connects without ?scope=
const DefaultScope = "default"

// ErrTooManyPages is returned when every page slot is taken
var ErrTooManyPages = errors.New("feed: page limit reached")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Options configures a Server
type Options struct {
	Config     config.Config
	Store      storage.Store
	Beacon     delivery.Beacon
	HTTPClient *http.Client
	Clock      clock.Clock
	Limiter    *ratelimit.Limiter // nil disables throttling
	MaxPages   int64

	// Logger is the daemon's own logger. CoreLogger is handed to the
	// tracker clients and is a no-op outside development.
	Logger     *zap.Logger
	CoreLogger *zap.Logger
}

// Server tracks every connected page
type Server struct {
	opts  Options
	pages sync.Map // pageID -> *page
	count atomic.Int64
	slots *semaphore.Weighted
	wg    sync.WaitGroup
}

type page struct {
	id          string
	scope       string
	connectedAt time.Time
	conn        *websocket.Conn
	client      *tracker.Client
	info        *pageState
}

// pageState is the PageInfoProvider of a connected page; signals carry
// fresh snapshots.
type pageState struct {
	mu   sync.RWMutex
	info models.PageInfo
}

func (p *pageState) PageInfo() models.PageInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

func (p *pageState) apply(info *models.PageInfo) {
	if info == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	userAgent := p.info.UserAgent
	p.info = *info
	if p.info.UserAgent == "" {
		p.info.UserAgent = userAgent
	}
}

// NewServer creates a feed server
func NewServer(opts Options) *Server {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1000
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CoreLogger == nil {
		opts.CoreLogger = zap.NewNop()
	}
	return &Server{
		opts:  opts,
		slots: semaphore.NewWeighted(opts.MaxPages),
	}
}

// HandleConnection upgrades the request and runs the page until the
// socket closes
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if !s.slots.TryAcquire(1) {
		http.Error(w, ErrTooManyPages.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.slots.Release(1)

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = DefaultScope
	}

	p := &page{
		id:          uuid.New().String(),
		scope:       scope,
		connectedAt: s.opts.Clock.Now(),
		info:        &pageState{info: models.PageInfo{UserAgent: r.UserAgent()}},
	}

	client, err := tracker.New(s.opts.Config, tracker.Environment{
		Store:      s.scopedStore(scope),
		Page:       p.info,
		Beacon:     s.opts.Beacon,
		HTTPClient: s.opts.HTTPClient,
		Clock:      s.opts.Clock,
	}, s.opts.CoreLogger.With(zap.String("pageId", p.id)))
	if err != nil {
		s.opts.Logger.Error("failed to create tracker", zap.Error(err))
		http.Error(w, "tracker unavailable", http.StatusInternalServerError)
		return
	}
	p.client = client

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn("failed to upgrade connection", zap.Error(err))
		client.Close()
		return
	}
	p.conn = conn

	s.wg.Add(1)
	defer s.wg.Done()

	s.pages.Store(p.id, p)
	s.count.Add(1)
	s.opts.Logger.Info("page connected", zap.String("pageId", p.id), zap.String("scope", scope))

	s.run(r.Context(), p)

	s.pages.Delete(p.id)
	s.count.Add(-1)
	if s.opts.Limiter != nil {
		s.opts.Limiter.Forget(p.id)
	}
	s.opts.Logger.Info("page disconnected", zap.String("pageId", p.id))
}

func (s *Server) run(ctx context.Context, p *page) {
	// the page outlives the upgrade request's context only as long as the
	// socket does
	ctx = context.WithoutCancel(ctx)
	p.client.Start(ctx)
	defer p.client.Close()
	defer p.conn.Close()

	unloaded := false
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.opts.Logger.Debug("websocket error", zap.String("pageId", p.id), zap.Error(err))
			}
			break
		}

		var signal models.Signal
		if err := json.Unmarshal(message, &signal); err != nil {
			s.opts.Logger.Debug("dropping malformed signal", zap.String("pageId", p.id), zap.Error(err))
			continue
		}
		if s.throttled(p.id, signal.Type) {
			continue
		}

		p.info.apply(signal.Page)
		p.client.Handle(ctx, signal)

		switch signal.Type {
		case models.SignalBeforeUnload:
			unloaded = true
		case models.SignalLoad, models.SignalVisibilityChange:
			unloaded = false
		}
	}

	// a page that vanished without beforeunload still ends its session
	if !unloaded {
		p.client.Handle(ctx, models.Signal{Type: models.SignalBeforeUnload})
	}
}

// throttled reports whether a pointer/key/scroll signal exceeds the page's
// budget. Session and click signals are never throttled.
func (s *Server) throttled(pageID string, signalType models.SignalType) bool {
	if s.opts.Limiter == nil {
		return false
	}
	switch signalType {
	case models.SignalMouseMove, models.SignalKeyDown, models.SignalScroll:
		return !s.opts.Limiter.Allow(pageID)
	}
	return false
}

func (s *Server) scopedStore(scope string) storage.Store {
	if s.opts.Store == nil {
		return nil
	}
	return storage.NewScoped(s.opts.Store, scope)
}

// Count returns the number of connected pages
func (s *Server) Count() int {
	return int(s.count.Load())
}

// Pages lists the connected pages, oldest first. Listing is read-only: a
// page that has not resolved its visitor id yet is listed without one.
func (s *Server) Pages() []models.PageSummary {
	var pages []models.PageSummary

	s.pages.Range(func(key, value any) bool {
		p := value.(*page)
		pages = append(pages, models.PageSummary{
			PageID:      p.id,
			Scope:       p.scope,
			Status:      p.client.Status(),
			SessionID:   p.client.SessionID(),
			VisitorID:   p.client.KnownVisitorID(),
			Queued:      p.client.QueueLen(),
			Path:        p.info.PageInfo().Path,
			ConnectedAt: p.connectedAt,
		})
		return true
	})

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].ConnectedAt.Before(pages[j].ConnectedAt)
	})
	return pages
}

// Shutdown closes every page socket, which ends their sessions through
// the unload path, and waits for the page loops to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.pages.Range(func(key, value any) bool {
		p := value.(*page)
		p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		p.conn.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
