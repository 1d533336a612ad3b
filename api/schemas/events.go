// File: api/schemas/events.go
package schemas

// EventType tags the variant of a CrawlEvent.
type EventType string

const (
	EventProgress EventType = "progress"
	EventRecord   EventType = "record"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Status codes carried by progress and error events.
const (
	StatusAuthenticating  = "authenticating"
	StatusAuthenticated   = "authenticated"
	StatusNavigating      = "navigating"
	StatusPageLoaded      = "page_loaded"
	StatusExtracting      = "extracting"
	StatusNoMoreResults   = "no_more_results"
	StatusRetryNavigation = "retry_navigation"
	StatusExtracted       = "extracted"

	StatusError   = "error"
	StatusBlocked = "blocked"
	StatusExpired = "expired"
	StatusStopped = "stopped"

	StatusCompleted       = "completed"
	StatusCancelled       = "cancelled"
	StatusUnauthenticated = "unauthenticated"
	StatusFailed          = "failed"
)

// CrawlEvent is the only externally observable output of a crawl.
// Fields irrelevant to a variant are left at their zero value.
type CrawlEvent struct {
	Type     EventType `json:"type"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	CrawlID  string    `json:"crawlId,omitempty"`
	Page     int       `json:"page,omitempty"`
	Progress int       `json:"progress"`

	Record *ProfileRecord `json:"record,omitempty"`

	TotalAvailable int `json:"totalAvailable,omitempty"`
	TotalToExtract int `json:"totalToExtract,omitempty"`

	Identity *Identity `json:"identity,omitempty"`

	// Populated on the terminal done event only.
	Count   int             `json:"count,omitempty"`
	Records []ProfileRecord `json:"records,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e CrawlEvent) Terminal() bool {
	return e.Type == EventDone
}
