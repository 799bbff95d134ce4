package models

// SessionStatus represents where a page session is in its lifecycle
type SessionStatus string

const (
	StatusNone   SessionStatus = "NONE"
	StatusActive SessionStatus = "ACTIVE"
)

// DirectReferrer is reported when the page was opened without a referrer
const DirectReferrer = "Direct"

// PageInfo is a snapshot of the page the client is embedded in
type PageInfo struct {
	Hostname  string `json:"hostname,omitempty"`
	Path      string `json:"path"`
	Title     string `json:"title"`
	Referrer  string `json:"referrer"`
	UserAgent string `json:"userAgent,omitempty"`
}

// ReferrerOrDirect returns the referrer, or "Direct" when there is none
func (p PageInfo) ReferrerOrDirect() string {
	if p.Referrer == "" {
		return DirectReferrer
	}
	return p.Referrer
}

// StartContext is captured when a session is created
type StartContext struct {
	Referrer  string `json:"referrer"`
	PageURL   string `json:"pageUrl"`
	PageTitle string `json:"pageTitle"`
	UserAgent string `json:"userAgent"`
}

// CreateSessionRequest is the payload for POST /session/create
type CreateSessionRequest struct {
	VisitorID string `json:"visitorId"`
	Project   string `json:"project"`
	Referrer  string `json:"referrer"`
	PageURL   string `json:"pageUrl"`
	PageTitle string `json:"pageTitle"`
	UserAgent string `json:"userAgent"`
}

// CreateSessionResponse is returned by the collector once it assigns an id
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// UpdateSessionRequest is the payload for PUT /session/update/{id}
type UpdateSessionRequest struct {
	ExitPage  string `json:"exitPage"`
	PageURL   string `json:"pageUrl"`
	PageTitle string `json:"pageTitle"`
	Referrer  string `json:"referrer"`
}
