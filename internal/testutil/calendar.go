package testutil

import (
	"time"

	"richpres/internal/presence"
)

// FakeCalendar serves fixed calendar data.
type FakeCalendar struct {
	MailboxAddr  string
	Event        *presence.CalendarEvent
	Hours        string
	FreeBusyData *presence.FreeBusy
	OOFInfo      *presence.OOFInfo
}

var _ presence.Calendar = (*FakeCalendar)(nil)

// NewFakeCalendar creates a calendar for mailbox with no data.
func NewFakeCalendar(mailbox string) *FakeCalendar {
	return &FakeCalendar{MailboxAddr: mailbox}
}

func (c *FakeCalendar) Mailbox() string { return c.MailboxAddr }

// CurrentEvent returns Event when it covers now.
func (c *FakeCalendar) CurrentEvent(now time.Time) *presence.CalendarEvent {
	if c.Event == nil {
		return nil
	}
	if now.Before(c.Event.Start) || !now.Before(c.Event.End) {
		return nil
	}
	return c.Event
}

func (c *FakeCalendar) WorkingHours() string         { return c.Hours }
func (c *FakeCalendar) FreeBusy() *presence.FreeBusy { return c.FreeBusyData }
func (c *FakeCalendar) OOF() *presence.OOFInfo       { return c.OOFInfo }
