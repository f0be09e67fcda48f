package presence

import (
	"fmt"
	"time"

	"richpres/internal/model"
)

// Header is a SIP header line added to an outbound request.
type Header struct {
	Name  string
	Value string
}

// Request is an outbound SERVICE request.
type Request struct {
	Target      string
	ContentType string
	Headers     []Header
	Body        string
}

// Response is the final response to a Request.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// ResponseHandler receives the final response of a request.
type ResponseHandler func(resp Response)

// Transport sends requests to the presence server. onResponse may be nil
// when the caller does not need the outcome. Implementations must not invoke
// onResponse from within Send.
type Transport interface {
	Send(req *Request, onResponse ResponseHandler) error
}

// CalendarStatus is the free/busy status of a calendar event.
type CalendarStatus int

const (
	CalendarFree CalendarStatus = iota
	CalendarTentative
	CalendarBusy
	CalendarOOF
)

func (s CalendarStatus) String() string {
	switch s {
	case CalendarTentative:
		return "tentative"
	case CalendarBusy:
		return "busy"
	case CalendarOOF:
		return "oof"
	default:
		return "free"
	}
}

// CalendarEvent is a calendar entry overlapping the current time.
type CalendarEvent struct {
	Start     time.Time
	End       time.Time
	Status    CalendarStatus
	Subject   string
	Location  string
	IsMeeting bool
}

// Hash identifies the published facets of an event.
func (e *CalendarEvent) Hash() string {
	meeting := 0
	if e.IsMeeting {
		meeting = 1
	}
	return fmt.Sprintf("<%d><%s><%s><%d>", e.Start.Unix(), e.Subject, e.Location, meeting)
}

// FreeBusy is an encoded free/busy blob and the time it starts at.
type FreeBusy struct {
	Start time.Time
	Blob  string
}

// OOF states reported by the mailbox.
const (
	OOFDisabled  = "Disabled"
	OOFEnabled   = "Enabled"
	OOFScheduled = "Scheduled"
)

// OOFInfo is the mailbox out-of-office configuration.
type OOFInfo struct {
	State string
	Note  string
	Start time.Time
	End   time.Time
}

// ActiveNote returns the out-of-office note in effect at now, or "".
func (o *OOFInfo) ActiveNote(now time.Time) string {
	if o == nil {
		return ""
	}
	switch o.State {
	case OOFEnabled:
		return o.Note
	case OOFScheduled:
		if !now.Before(o.Start) && now.Before(o.End) {
			return o.Note
		}
	}
	return ""
}

// Calendar supplies calendar data. Methods return zero values when the
// information is not available.
type Calendar interface {
	Mailbox() string
	CurrentEvent(now time.Time) *CalendarEvent
	WorkingHours() string
	FreeBusy() *FreeBusy
	OOF() *OOFInfo
}

// Contacts is the user's contact list. Find returns (nil, nil) when the
// contact does not exist.
type Contacts interface {
	List() ([]*model.Contact, error)
	Find(uri string) (*model.Contact, error)
	SetBlocked(uri string, blocked bool) error
	SetDisplayName(uri, name string) error
	RequestAdd(uri, displayName string) error
}

// Scheduler runs named jobs at a wall-clock time. Scheduling a name that is
// already pending replaces the pending job.
type Scheduler interface {
	Schedule(name string, at time.Time, fn func())
	Cancel(name string)
}

// Journal records outbound requests and their outcomes.
type Journal interface {
	RecordRequest(req *model.Request) (int64, error)
	FinishRequest(id int64, status int, faultCode string, at time.Time) error
}
