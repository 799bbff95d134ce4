package models

import "strings"

// SignalType names a page-level environment signal
type SignalType string

const (
	SignalLoad             SignalType = "load"
	SignalVisibilityChange SignalType = "visibilitychange"
	SignalBeforeUnload     SignalType = "beforeunload"
	SignalClick            SignalType = "click"
	SignalMouseMove        SignalType = "mousemove"
	SignalKeyDown          SignalType = "keydown"
	SignalScroll           SignalType = "scroll"
)

// Visibility values reported with SignalVisibilityChange
const (
	VisibilityVisible = "visible"
	VisibilityHidden  = "hidden"
)

// Element attribute contract consumed by the click filter
const (
	AttrAnalytics = "data-analytics"
	AttrEventName = "data-event-name"
	AttrEventType = "data-event-type"
)

// Signal is one environment signal delivered by the host page
type Signal struct {
	Type       SignalType `json:"type"`
	Visibility string     `json:"visibility,omitempty"`
	Target     *Element   `json:"target,omitempty"`
	Page       *PageInfo  `json:"page,omitempty"`
}

// Element describes a DOM element involved in a click
type Element struct {
	Tag        string            `json:"tag"`
	Type       string            `json:"type,omitempty"`
	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name,omitempty"`
	InnerText  string            `json:"innerText,omitempty"`
	Value      string            `json:"value,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Parent     *Element          `json:"parent,omitempty"`
}

// TagName returns the lower-cased tag name
func (e *Element) TagName() string {
	if e == nil {
		return ""
	}
	return strings.ToLower(e.Tag)
}

// Attr returns the named attribute, or "" when absent
func (e *Element) Attr(name string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[name]
}
