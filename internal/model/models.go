package model

import "time"

// Request kinds recorded in the journal.
const (
	RequestPublish          = "publish"
	RequestContainerMembers = "setContainerMembers"
	RequestSetSubscribers   = "setSubscribers"
)

// Request is a journaled outbound request.
type Request struct {
	ID            int64
	CorrelationID string // generated per request
	Kind          string // one of the Request* constants
	Target        string // request URI
	SentAt        time.Time
	Keys          []RequestKey // publications in send order; empty for non-publish requests
	Status        int          // final response status, 0 while pending
	FaultCode     string       // server fault code for rejected publishes
	FinishedAt    *time.Time
}

// Pending reports whether no final response has been recorded.
func (r *Request) Pending() bool { return r.FinishedAt == nil }

// RequestKey is one publication of a publish request.
type RequestKey struct {
	Position  int // 1-based index in the request
	Category  string
	Instance  uint32
	Container uint32
	Version   uint32
	Cleared   bool // sent with expires="0"
}

// Contact is an entry of the user's contact list.
type Contact struct {
	URI         string // with "sip:" prefix
	DisplayName string
	Blocked     bool
	PendingAdd  bool // added on behalf of an unacknowledged subscriber
	UpdatedAt   time.Time
}
