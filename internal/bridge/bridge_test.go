package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

type fakeSessions struct {
	id      string
	created int
	updated int
	ended   int
	events  []models.Event

	// beforeRecord runs at the start of Record
	beforeRecord func()
}

func (s *fakeSessions) CreateSession(context.Context) {
	s.created++
	s.id = "s1"
}
func (s *fakeSessions) UpdateSession(context.Context) { s.updated++ }
func (s *fakeSessions) EndSession(context.Context) {
	s.ended++
	s.id = ""
}
func (s *fakeSessions) SessionID() string { return s.id }
func (s *fakeSessions) Record(event models.Event) bool {
	if s.beforeRecord != nil {
		s.beforeRecord()
	}
	if s.id == "" {
		return false
	}
	event.SessionID = s.id
	s.events = append(s.events, event)
	return true
}

type fakeSink struct{ flushChecks int }

func (s *fakeSink) FlushIfFull(context.Context) { s.flushChecks++ }

type fakeActivity struct{ signals []models.SignalType }

func (a *fakeActivity) Signal(signal models.SignalType) bool {
	a.signals = append(a.signals, signal)
	return true
}

type staticVisitor string

func (v staticVisitor) GetOrCreate(context.Context) string { return string(v) }

func newBridge(sessionID string) (*Bridge, *fakeSessions, *fakeSink, *fakeActivity) {
	sessions := &fakeSessions{id: sessionID}
	sink := &fakeSink{}
	activity := &fakeActivity{}
	return New(sessions, sink, activity, staticVisitor("visitor-abcdefghi"), "proj", zap.NewNop()), sessions, sink, activity
}

func TestIsRelevant(t *testing.T) {
	button := &models.Element{Tag: "BUTTON"}
	tests := []struct {
		name    string
		element *models.Element
		want    bool
	}{
		{"button", &models.Element{Tag: "button"}, true},
		{"link", &models.Element{Tag: "a"}, true},
		{"submit input", &models.Element{Tag: "input", Type: "submit"}, true},
		{"button input", &models.Element{Tag: "input", Type: "button"}, true},
		{"text input", &models.Element{Tag: "input", Type: "text"}, false},
		{"marked div", &models.Element{Tag: "div", Attributes: map[string]string{"data-analytics": "true"}}, true},
		{"marker not true", &models.Element{Tag: "div", Attributes: map[string]string{"data-analytics": "false"}}, false},
		{"plain div", &models.Element{Tag: "div"}, false},
		{"icon in button", ResolveTarget(&models.Element{Tag: "i", Parent: button}), true},
		{"icon without parent", ResolveTarget(&models.Element{Tag: "i"}), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRelevant(tt.element))
		})
	}
}

func TestResolveTarget(t *testing.T) {
	parent := &models.Element{Tag: "button", ID: "buy"}
	assert.Same(t, parent, ResolveTarget(&models.Element{Tag: "I", Parent: parent}))

	span := &models.Element{Tag: "span", Parent: parent}
	assert.Same(t, span, ResolveTarget(span), "only <i> is promoted")
}

func TestHandleClick_BuildsEvent(t *testing.T) {
	b, sessions, sink, _ := newBridge("s1")

	produced := b.HandleClick(context.Background(), &models.Element{
		Tag:       "button",
		ID:        "buy",
		InnerText: "Buy now",
		Attributes: map[string]string{
			"data-event-name": "Purchase",
			"data-event-type": "conversion",
		},
	})

	require.True(t, produced)
	require.Len(t, sessions.events, 1)
	assert.Equal(t, 1, sink.flushChecks)
	assert.Equal(t, models.Event{
		VisitorID:       "visitor-abcdefghi",
		SessionID:       "s1",
		ProjectID:       "proj",
		EventType:       "conversion",
		EventName:       "Purchase",
		EventTarget:     "buy",
		ElementType:     "button",
		EventAttributes: models.EventAttributes{InnerText: "Buy now"},
	}, sessions.events[0])
}

func TestHandleClick_Fallbacks(t *testing.T) {
	b, sessions, _, _ := newBridge("s1")
	ctx := context.Background()

	b.HandleClick(ctx, &models.Element{Tag: "input", Type: "submit", Name: "signup", Value: "Go"})
	b.HandleClick(ctx, &models.Element{Tag: "a"})

	require.Len(t, sessions.events, 2)
	assert.Equal(t, "Unnamed Click Event", sessions.events[0].EventName)
	assert.Equal(t, "click", sessions.events[0].EventType)
	assert.Equal(t, "signup", sessions.events[0].EventTarget)
	assert.Equal(t, "Go", sessions.events[0].EventAttributes.Value)
	assert.Equal(t, "unnamed element", sessions.events[1].EventTarget)
}

func TestHandleClick_PromotedIconUsesParentMetadata(t *testing.T) {
	b, sessions, _, _ := newBridge("s1")

	b.HandleClick(context.Background(), &models.Element{
		Tag:    "i",
		Parent: &models.Element{Tag: "button", ID: "menu"},
	})

	require.Len(t, sessions.events, 1)
	assert.Equal(t, "button", sessions.events[0].ElementType)
	assert.Equal(t, "menu", sessions.events[0].EventTarget)
}

func TestHandleClick_Discards(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		b, sessions, _, _ := newBridge("")
		assert.False(t, b.HandleClick(context.Background(), &models.Element{Tag: "button"}))
		assert.Empty(t, sessions.events)
	})
	t.Run("irrelevant target", func(t *testing.T) {
		b, sessions, _, _ := newBridge("s1")
		assert.False(t, b.HandleClick(context.Background(), &models.Element{Tag: "div"}))
		assert.Empty(t, sessions.events)
	})
	t.Run("no target", func(t *testing.T) {
		b, sessions, _, _ := newBridge("s1")
		assert.False(t, b.HandleClick(context.Background(), nil))
		assert.Empty(t, sessions.events)
	})
}

func TestHandleClick_SessionEndingMidClickDropsEvent(t *testing.T) {
	b, sessions, sink, _ := newBridge("s1")
	sessions.beforeRecord = func() { sessions.EndSession(context.Background()) }

	assert.False(t, b.HandleClick(context.Background(), &models.Element{Tag: "button"}))
	assert.Empty(t, sessions.events)
	assert.Equal(t, 0, sink.flushChecks)
}

func TestHandleLoad(t *testing.T) {
	b, sessions, _, _ := newBridge("")
	ctx := context.Background()

	b.HandleLoad(ctx)
	assert.Equal(t, 1, sessions.created)
	assert.Equal(t, 0, sessions.updated)

	b.HandleLoad(ctx)
	assert.Equal(t, 1, sessions.created)
	assert.Equal(t, 1, sessions.updated, "a load with a live session is a continuation")
}

func TestHandleVisibilityChange(t *testing.T) {
	b, sessions, _, _ := newBridge("")
	ctx := context.Background()

	b.HandleVisibilityChange(ctx, models.VisibilityHidden)
	assert.Equal(t, 0, sessions.created)

	b.HandleVisibilityChange(ctx, models.VisibilityVisible)
	assert.Equal(t, 1, sessions.created)

	b.HandleVisibilityChange(ctx, models.VisibilityVisible)
	assert.Equal(t, 1, sessions.created, "visible with a live session does nothing")
	assert.Equal(t, 0, sessions.ended)
}

func TestDispatch(t *testing.T) {
	b, sessions, _, activity := newBridge("")
	ctx := context.Background()

	b.Dispatch(ctx, models.Signal{Type: models.SignalLoad})
	b.Dispatch(ctx, models.Signal{Type: models.SignalMouseMove})
	b.Dispatch(ctx, models.Signal{Type: models.SignalScroll})
	b.Dispatch(ctx, models.Signal{Type: models.SignalKeyDown})
	b.Dispatch(ctx, models.Signal{Type: models.SignalClick, Target: &models.Element{Tag: "button"}})
	b.Dispatch(ctx, models.Signal{Type: "resize"})
	b.Dispatch(ctx, models.Signal{Type: models.SignalBeforeUnload})

	assert.Equal(t, 1, sessions.created)
	assert.Equal(t, 1, sessions.ended)
	assert.Len(t, sessions.events, 1)
	assert.Equal(t, []models.SignalType{
		models.SignalMouseMove, models.SignalScroll, models.SignalKeyDown, models.SignalClick,
	}, activity.signals)
}
