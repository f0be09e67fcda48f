// Package calendar provides a file-backed calendar for presence sessions.
//
// The file is TOML:
//
//	mailbox = "alice@contoso.com"
//	working_hours = '''<WorkingHours xmlns="...">...</WorkingHours>'''
//
//	[free_busy]
//	start = 2024-01-15T00:00:00Z
//	slots = 96          # derive the blob from events, or
//	blob = "AAAA..."    # publish this blob as is
//
//	[oof]
//	state = "Scheduled"
//	note = "Back on Monday"
//	start = 2024-01-15T00:00:00Z
//	end = 2024-01-19T00:00:00Z
//
//	[[event]]
//	start = 2024-01-15T10:00:00Z
//	end = 2024-01-15T11:00:00Z
//	status = "busy"
//	subject = "Design review"
//	location = "Room 4"
//	meeting = true
package calendar

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"richpres/internal/presence"
)

type fileEvent struct {
	Start    time.Time `toml:"start"`
	End      time.Time `toml:"end"`
	Status   string    `toml:"status"`
	Subject  string    `toml:"subject"`
	Location string    `toml:"location"`
	Meeting  bool      `toml:"meeting"`
}

type fileFreeBusy struct {
	Start time.Time `toml:"start"`
	Slots int       `toml:"slots"`
	Blob  string    `toml:"blob"`
}

type fileOOF struct {
	State string    `toml:"state"`
	Note  string    `toml:"note"`
	Start time.Time `toml:"start"`
	End   time.Time `toml:"end"`
}

type file struct {
	Mailbox      string        `toml:"mailbox"`
	WorkingHours string        `toml:"working_hours"`
	FreeBusy     *fileFreeBusy `toml:"free_busy"`
	OOF          *fileOOF      `toml:"oof"`
	Events       []fileEvent   `toml:"event"`
}

// FileCalendar serves calendar data loaded from a TOML file.
type FileCalendar struct {
	mailbox      string
	workingHours string
	events       []presence.CalendarEvent
	freeBusy     *presence.FreeBusy
	oof          *presence.OOFInfo
}

var _ presence.Calendar = (*FileCalendar)(nil)

// Load reads a calendar file.
func Load(path string) (*FileCalendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening calendar: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a calendar from r.
func Read(r io.Reader) (*FileCalendar, error) {
	var raw file
	md, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown calendar keys: %v", undecoded)
	}

	c := &FileCalendar{mailbox: raw.Mailbox, workingHours: raw.WorkingHours}
	for i, ev := range raw.Events {
		status, err := parseStatus(ev.Status)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		if !ev.End.After(ev.Start) {
			return nil, fmt.Errorf("event %d: end must be after start", i+1)
		}
		c.events = append(c.events, presence.CalendarEvent{
			Start:     ev.Start,
			End:       ev.End,
			Status:    status,
			Subject:   ev.Subject,
			Location:  ev.Location,
			IsMeeting: ev.Meeting,
		})
	}
	sort.SliceStable(c.events, func(i, j int) bool { return c.events[i].Start.Before(c.events[j].Start) })

	if fb := raw.FreeBusy; fb != nil {
		blob := fb.Blob
		if blob == "" {
			if fb.Slots <= 0 {
				return nil, fmt.Errorf("free_busy needs either blob or slots")
			}
			blob, err = EncodeFreeBusy(Slots(c.events, fb.Start, fb.Slots))
			if err != nil {
				return nil, err
			}
		}
		c.freeBusy = &presence.FreeBusy{Start: fb.Start, Blob: blob}
	}

	if o := raw.OOF; o != nil {
		switch o.State {
		case presence.OOFDisabled, presence.OOFEnabled, presence.OOFScheduled:
		default:
			return nil, fmt.Errorf("unknown oof state %q", o.State)
		}
		c.oof = &presence.OOFInfo{State: o.State, Note: o.Note, Start: o.Start, End: o.End}
	}
	return c, nil
}

func parseStatus(s string) (presence.CalendarStatus, error) {
	switch strings.ToLower(s) {
	case "", "busy":
		return presence.CalendarBusy, nil
	case "free":
		return presence.CalendarFree, nil
	case "tentative":
		return presence.CalendarTentative, nil
	case "oof":
		return presence.CalendarOOF, nil
	}
	return 0, fmt.Errorf("unknown event status %q", s)
}

func (c *FileCalendar) Mailbox() string { return c.mailbox }

// CurrentEvent returns the event covering now with the highest status. Among
// equal statuses the one that started last wins.
func (c *FileCalendar) CurrentEvent(now time.Time) *presence.CalendarEvent {
	var best *presence.CalendarEvent
	for i := range c.events {
		ev := &c.events[i]
		if now.Before(ev.Start) || !now.Before(ev.End) {
			continue
		}
		if best == nil || ev.Status >= best.Status {
			best = ev
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

// Events returns the loaded events ordered by start.
func (c *FileCalendar) Events() []presence.CalendarEvent {
	return append([]presence.CalendarEvent(nil), c.events...)
}

func (c *FileCalendar) WorkingHours() string         { return c.workingHours }
func (c *FileCalendar) FreeBusy() *presence.FreeBusy { return c.freeBusy }
func (c *FileCalendar) OOF() *presence.OOFInfo       { return c.oof }
