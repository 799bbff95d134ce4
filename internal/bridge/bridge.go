// Package bridge translates page-level signals into session and event
// operations.
package bridge

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

const (
	defaultEventName   = "Unnamed Click Event"
	defaultEventType   = "click"
	defaultEventTarget = "unnamed element"
)

var trackedTags = []string{"button", "a"}
var trackedInputTypes = []string{"submit", "button"}

// Sessions is what the bridge needs from the session manager
type Sessions interface {
	CreateSession(ctx context.Context)
	UpdateSession(ctx context.Context)
	EndSession(ctx context.Context)
	SessionID() string
	Record(event models.Event) bool
}

// EventSink ships the queue once it is full
type EventSink interface {
	FlushIfFull(ctx context.Context)
}

// ActivitySink is reset by interaction signals
type ActivitySink interface {
	Signal(signal models.SignalType) bool
}

// VisitorSource returns the durable visitor id
type VisitorSource interface {
	GetOrCreate(ctx context.Context) string
}

// Bridge routes environment signals
type Bridge struct {
	sessions  Sessions
	events    EventSink
	activity  ActivitySink
	visitors  VisitorSource
	projectID string
	logger    *zap.Logger
}

// New creates a Bridge
func New(sessions Sessions, events EventSink, activity ActivitySink, visitors VisitorSource, projectID string, logger *zap.Logger) *Bridge {
	return &Bridge{
		sessions:  sessions,
		events:    events,
		activity:  activity,
		visitors:  visitors,
		projectID: projectID,
		logger:    logger,
	}
}

// Dispatch routes one signal to its handler. Unknown signal types are
// ignored.
func (b *Bridge) Dispatch(ctx context.Context, signal models.Signal) {
	switch signal.Type {
	case models.SignalLoad:
		b.HandleLoad(ctx)
	case models.SignalVisibilityChange:
		b.HandleVisibilityChange(ctx, signal.Visibility)
	case models.SignalBeforeUnload:
		b.HandleUnload(ctx)
	case models.SignalClick:
		b.HandleActivity(signal.Type)
		b.HandleClick(ctx, signal.Target)
	case models.SignalMouseMove, models.SignalKeyDown, models.SignalScroll:
		b.HandleActivity(signal.Type)
	default:
		b.logger.Debug("ignoring unknown signal", zap.String("type", string(signal.Type)))
	}
}

// HandleLoad creates a session, or updates the one that is still active
// from an earlier page.
func (b *Bridge) HandleLoad(ctx context.Context) {
	if b.sessions.SessionID() == "" {
		b.sessions.CreateSession(ctx)
		return
	}
	b.sessions.UpdateSession(ctx)
}

// HandleVisibilityChange creates a session when the page becomes visible
// without one. Becoming hidden does nothing.
func (b *Bridge) HandleVisibilityChange(ctx context.Context, visibility string) {
	if visibility == models.VisibilityVisible && b.sessions.SessionID() == "" {
		b.sessions.CreateSession(ctx)
	}
}

// HandleUnload ends the session. The end request never blocks teardown.
func (b *Bridge) HandleUnload(ctx context.Context) {
	b.logger.Debug("before unload")
	b.sessions.EndSession(ctx)
}

// HandleActivity forwards an interaction signal to the inactivity monitor
func (b *Bridge) HandleActivity(signal models.SignalType) {
	b.activity.Signal(signal)
}

// HandleClick enqueues an event for a relevant click target while a
// session is active. It reports whether an event was produced.
func (b *Bridge) HandleClick(ctx context.Context, target *models.Element) bool {
	if target == nil || b.sessions.SessionID() == "" {
		return false
	}

	element := ResolveTarget(target)
	if !IsRelevant(element) {
		return false
	}

	// the session may end while the visitor id is resolved; Record
	// re-checks it and stamps the id atomically with queueing
	recorded := b.sessions.Record(models.Event{
		VisitorID:   b.visitors.GetOrCreate(ctx),
		ProjectID:   b.projectID,
		EventType:   lo.CoalesceOrEmpty(element.Attr(models.AttrEventType), defaultEventType),
		EventName:   lo.CoalesceOrEmpty(element.Attr(models.AttrEventName), defaultEventName),
		EventTarget: lo.CoalesceOrEmpty(element.ID, element.Name, defaultEventTarget),
		ElementType: element.TagName(),
		EventAttributes: models.EventAttributes{
			InnerText: element.InnerText,
			Value:     element.Value,
		},
	})
	if !recorded {
		return false
	}

	b.events.FlushIfFull(ctx)
	return true
}

// ResolveTarget promotes an icon glyph (<i>) to its parent element
func ResolveTarget(element *models.Element) *models.Element {
	if element.TagName() == "i" && element.Parent != nil {
		return element.Parent
	}
	return element
}

// IsRelevant reports whether a click on element should be tracked:
// elements opted in with data-analytics="true", buttons, links, and
// submit or button inputs.
func IsRelevant(element *models.Element) bool {
	if element == nil {
		return false
	}
	if element.Attr(models.AttrAnalytics) == "true" {
		return true
	}

	tag := element.TagName()
	if lo.Contains(trackedTags, tag) {
		return true
	}
	return tag == "input" && lo.Contains(trackedInputTypes, element.Type)
}
