package models

// Event is a single tracked interaction. Events are never mutated after
// construction.
type Event struct {
	VisitorID       string          `json:"visitorId"`
	SessionID       string          `json:"session"`
	ProjectID       string          `json:"project"`
	EventType       string          `json:"eventType"`
	EventName       string          `json:"eventName"`
	EventTarget     string          `json:"eventTarget"`
	ElementType     string          `json:"elementType"`
	EventAttributes EventAttributes `json:"eventAttributes"`
}

// EventAttributes carries element content captured at click time
type EventAttributes struct {
	InnerText string `json:"innerText"`
	Value     string `json:"value"`
}

// EventBatch is the body of POST /events/log and POST /session/end/{id}
type EventBatch struct {
	Events []Event `json:"events"`
}

// NewEventBatch copies events into a batch. A nil slice encodes as [].
func NewEventBatch(events []Event) EventBatch {
	batch := EventBatch{Events: make([]Event, len(events))}
	copy(batch.Events, events)
	return batch
}

// LogEventsResponse is returned by POST /events/log
type LogEventsResponse struct {
	Success bool `json:"success"`
}
