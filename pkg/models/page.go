package models

import "time"

// PageSummary describes one connected page for GET /v1/pages
type PageSummary struct {
	PageID      string        `json:"pageId"`
	Scope       string        `json:"scope"`
	Status      SessionStatus `json:"status"`
	SessionID   string        `json:"sessionId,omitempty"`
	VisitorID   string        `json:"visitorId"`
	Queued      int           `json:"queued"`
	Path        string        `json:"path"`
	ConnectedAt time.Time     `json:"connectedAt"`
}
