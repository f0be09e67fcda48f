package presence

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// Expire types of a publication.
const (
	expireEndpoint = "endpoint"
	expireStatic   = "static"
)

const defaultTimezone = "00:00:00+01:00"

// Fragment is one publication of an outbound publish document.
type Fragment struct {
	Key        PubKey
	Version    uint32
	ExpireType string
	Clear      bool
	Content    *etree.Element

	// payload is written to the cache when the fragment is sent.
	payload *Publication
}

func (f *Fragment) element() *etree.Element {
	p := etree.NewElement("publication")
	p.CreateAttr("categoryName", f.Key.Category)
	p.CreateAttr("instance", strconv.FormatUint(uint64(f.Key.Instance), 10))
	p.CreateAttr("container", strconv.FormatUint(uint64(f.Key.Container), 10))
	p.CreateAttr("version", strconv.FormatUint(uint64(f.Version), 10))
	p.CreateAttr("expireType", f.ExpireType)
	if f.Clear {
		p.CreateAttr("expires", "0")
	}
	if f.Content != nil {
		p.AddChild(f.Content.Copy())
	}
	return p
}

func renderPublish(selfURI string, frags []Fragment) (string, error) {
	root := newElement("publish", nsRichPresence)
	pubs := root.CreateElement("publications")
	pubs.CreateAttr("uri", selfURI)
	for i := range frags {
		pubs.AddChild(frags[i].element())
	}
	return renderDocument(root)
}

// current reports whether p holds server-confirmed, uncleared content.
func current(p *Publication) bool {
	return p != nil && !p.Unconfirmed && !p.Cleared
}

// absent reports whether the server holds nothing for p's key.
func absent(p *Publication) bool {
	return p == nil || (p.Cleared && !p.Unconfirmed)
}

func (s *Session) fragment(key PubKey, expire string, content *etree.Element, payload *Publication) Fragment {
	return Fragment{
		Key:        key,
		Version:    s.cache.Version(key),
		ExpireType: expire,
		Content:    content,
		payload:    payload,
	}
}

func (s *Session) clearFragment(key PubKey, expire string) Fragment {
	return Fragment{
		Key:        key,
		Version:    s.cache.Version(key),
		ExpireType: expire,
		Clear:      true,
	}
}

// buildDevice always yields the device publication.
func (s *Session) buildDevice() []Fragment {
	dev := newElement("device", nsDevice)
	dev.CreateAttr("endpointId", s.opts.EndpointUUID)

	caps := dev.CreateElement("capabilities")
	caps.CreateAttr("preferred", "false")
	caps.CreateAttr("uri", s.opts.SelfURI)
	for _, c := range []struct {
		name    string
		capture bool
	}{{"text", true}, {"gifInk", false}, {"isfInk", false}} {
		e := caps.CreateElement(c.name)
		e.CreateAttr("capture", strconv.FormatBool(c.capture))
		e.CreateAttr("render", "true")
		e.CreateAttr("publish", "false")
	}

	tz := s.opts.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	dev.CreateElement("timezone").SetText(tz)
	dev.CreateElement("machineName").SetText(s.opts.HostName)

	key := PubKey{CategoryDevice, s.inst.Device, containerEndpoint}
	return []Fragment{s.fragment(key, expireEndpoint, dev, &Publication{})}
}

func newStateElement(manual bool, xsiType string) *etree.Element {
	st := newElement("state", nsState)
	st.CreateAttr("manual", strconv.FormatBool(manual))
	st.CreateAttr("xmlns:xsi", nsXSI)
	st.CreateAttr("xsi:type", xsiType)
	return st
}

// buildState yields the machine or user state in containers 2 and 3, or nil
// when the published availability is unchanged.
func (s *Session) buildState(user bool) []Fragment {
	inst, xsiType, expire := s.inst.MachineState, "machineState", expireEndpoint
	if user {
		inst, xsiType, expire = s.inst.UserState, "userState", expireStatic
	}
	avail := s.status.Availability()

	if p := s.cache.Get(PubKey{CategoryState, inst, containerEndpoint}); current(p) && p.Availability == avail {
		s.logger.Debug("state unchanged", "type", xsiType, "availability", avail)
		return nil
	}

	var frags []Fragment
	for _, c := range []uint32{containerEndpoint, containerSelf} {
		st := newStateElement(user, xsiType)
		st.CreateElement("availability").SetText(strconv.Itoa(avail))
		st.CreateElement("endpointLocation")
		frags = append(frags, s.fragment(PubKey{CategoryState, inst, c}, expire, st, &Publication{Availability: avail}))
	}
	return frags
}

// buildCalendarState yields the calendar state of one purpose. event is the
// event to publish under that purpose, or nil to clear it. A clear is only
// sent for a slot the server may hold, unless displaced is set: then the
// other purpose is being published and an unknown slot is cleared too.
func (s *Session) buildCalendarState(event *CalendarEvent, oof, displaced bool) []Fragment {
	inst := s.inst.CalendarState
	if oof {
		inst = s.inst.CalendarOOF
	}
	k2 := PubKey{CategoryState, inst, containerEndpoint}
	k3 := PubKey{CategoryState, inst, containerSelf}
	p3 := s.cache.Get(k3)

	if event == nil && absent(p3) && (p3 != nil || !displaced) {
		return nil
	}

	publish := event != nil && (event.Status == CalendarBusy || event.Status == CalendarOOF)
	if publish {
		avail := 0
		if event.Status == CalendarBusy {
			avail = StatusBusy.Availability()
		}
		hash := event.Hash()
		if current(p3) && p3.Availability == avail && p3.CalEventHash == hash {
			s.logger.Debug("calendar state unchanged", "oof", oof, "hash", hash)
			return nil
		}

		var frags []Fragment
		for _, key := range []PubKey{k2, k3} {
			st := newElement("state", nsState)
			st.CreateAttr("manual", "false")
			st.CreateAttr("uri", s.mailbox)
			st.CreateAttr("startTime", event.Start.UTC().Format(timeFormat))
			st.CreateAttr("xmlns:xsi", nsXSI)
			st.CreateAttr("xsi:type", "calendarState")
			if avail != 0 {
				st.CreateElement("availability").SetText(strconv.Itoa(avail))
			}
			switch {
			case event.Status == CalendarBusy && event.IsMeeting:
				a := st.CreateElement("activity")
				a.CreateAttr("token", ActivityInMeeting)
				a.CreateAttr("minAvailability", "6500")
				a.CreateAttr("maxAvailability", "8999")
			case event.Status == CalendarOOF:
				a := st.CreateElement("activity")
				a.CreateAttr("token", ActivityOutOfOffice)
				a.CreateAttr("minAvailability", "12000")
			}
			st.CreateElement("endpointLocation")
			st.CreateElement("meetingSubject").SetText(event.Subject)
			st.CreateElement("meetingLocation").SetText(event.Location)
			frags = append(frags, s.fragment(key, expireEndpoint, st, &Publication{Availability: avail, CalEventHash: hash}))
		}
		return frags
	}

	return []Fragment{
		s.clearFragment(k2, expireEndpoint),
		s.clearFragment(k3, expireEndpoint),
	}
}

// buildNote yields the note in containers 200, 300 and 400. An empty note
// clears them. The note is compared as plain text with the container 200
// copy; nil means unchanged.
func (s *Session) buildNote(note string, oof bool, start, end time.Time) []Fragment {
	inst, bodyType := uint32(0), "personal"
	if oof {
		inst, bodyType = s.inst.NoteOOF, "OOF"
	}
	text := StripMarkup(note)

	cached := ""
	p200 := s.cache.Get(PubKey{CategoryNote, inst, 200})
	if p200 != nil && !p200.Cleared {
		cached = p200.Note
	}
	if text == cached && (p200 == nil || !p200.Unconfirmed) {
		s.logger.Debug("note unchanged", "type", bodyType)
		return nil
	}

	var frags []Fragment
	for _, c := range noteContainers {
		key := PubKey{CategoryNote, inst, c}
		if text == "" {
			frags = append(frags, s.clearFragment(key, expireStatic))
			continue
		}
		n := newElement("note", nsNote)
		body := n.CreateElement("body")
		body.CreateAttr("type", bodyType)
		body.CreateAttr("uri", "")
		if !start.IsZero() {
			body.CreateAttr("startTime", start.UTC().Format(timeFormat))
		}
		if !end.IsZero() {
			body.CreateAttr("endTime", end.UTC().Format(timeFormat))
		}
		body.SetText(text)
		frags = append(frags, s.fragment(key, expireStatic, n, &Publication{Note: text}))
	}
	return frags
}

func newCalendarData(mailbox string) *etree.Element {
	cd := newElement("calendarData", nsCalendarData)
	if mailbox != "" {
		cd.CreateAttr("mailboxID", mailbox)
	}
	return cd
}

// buildWorkingHours yields the working hours in the six calendarData
// containers, or nil when they are unavailable or unchanged.
func (s *Session) buildWorkingHours() ([]Fragment, error) {
	if s.calendar == nil || s.mailbox == "" {
		return nil, nil
	}
	raw := s.calendar.WorkingHours()
	if raw == "" {
		return nil, nil
	}
	wh, err := parseDocument([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing working hours: %w", err)
	}
	doc := stringify(wh)

	if p := s.cache.Get(PubKey{CategoryCalendarData, 0, 300}); current(p) && p.WorkingHours == doc {
		s.logger.Debug("working hours unchanged")
		return nil, nil
	}

	var frags []Fragment
	for _, c := range calendarDataContainers {
		key := PubKey{CategoryCalendarData, 0, c}
		if c == 100 || c == 32000 {
			frags = append(frags, s.fragment(key, expireStatic, newCalendarData(""), &Publication{}))
			continue
		}
		cd := newCalendarData(s.mailbox)
		cd.AddChild(wh.Copy())
		frags = append(frags, s.fragment(key, expireStatic, cd, &Publication{WorkingHours: doc}))
	}
	return frags, nil
}

// buildFreeBusy yields the free/busy blob in the six calendarData
// containers. Unless refresh is disabled it is republished on every call.
func (s *Session) buildFreeBusy() []Fragment {
	if s.calendar == nil || s.mailbox == "" {
		return nil
	}
	fb := s.calendar.FreeBusy()
	if fb == nil || fb.Blob == "" || fb.Start.IsZero() {
		return nil
	}
	start := fb.Start.UTC().Format(timeFormat)

	if !s.opts.FreeBusyRefresh {
		p := s.cache.Get(PubKey{CategoryCalendarData, s.inst.CalendarData, 300})
		if current(p) && p.FreeBusyStart == start && p.FreeBusy == fb.Blob {
			s.logger.Debug("free/busy unchanged", "start", start)
			return nil
		}
	}

	var frags []Fragment
	for _, c := range calendarDataContainers {
		key := PubKey{CategoryCalendarData, s.inst.CalendarData, c}
		if c == 1 || c == 100 || c == 32000 {
			frags = append(frags, s.fragment(key, expireEndpoint, newCalendarData(""), &Publication{}))
			continue
		}
		cd := newCalendarData(s.mailbox)
		f := cd.CreateElement("freeBusy")
		f.CreateAttr("startTime", start)
		f.CreateAttr("granularity", "PT15M")
		f.CreateAttr("encodingVersion", "1")
		f.SetText(fb.Blob)
		frags = append(frags, s.fragment(key, expireEndpoint, cd, &Publication{FreeBusyStart: start, FreeBusy: fb.Blob}))
	}
	return frags
}

// buildUserStateClears yields a clear of every userState publication seen in
// roaming data.
func (s *Session) buildUserStateClears() []Fragment {
	var frags []Fragment
	for _, key := range sortedKeys(s.userStates) {
		frags = append(frags, Fragment{
			Key:        key,
			Version:    s.userStates[key],
			ExpireType: expireStatic,
			Clear:      true,
		})
	}
	return frags
}
