package presence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"richpres/internal/model"
)

// ErrNoCalendar is returned by calendar operations when no calendar is
// attached to the session.
var ErrNoCalendar = errors.New("no calendar configured")

const (
	calendarJob      = "calendar-publish"
	calendarInterval = 5 * time.Minute
	calendarKickoff  = 10 * time.Second
)

// Options describes the account and endpoint a Session publishes for.
type Options struct {
	SelfURI      string // "sip:alice@contoso.com"
	Contact      string // Contact header of outbound requests
	EndpointUUID string // device endpointId
	HostName     string // device machineName
	Mailbox      string // calendar mailbox; defaults to the calendar's own
	Timezone     string // device timezone; a fixed placeholder when empty

	// FreeBusyRefresh republishes free/busy on every calendar publish even
	// when the blob is unchanged.
	FreeBusyRefresh bool
}

// CallControlLine is a remote call control line advertised in the user's
// directory properties.
type CallControlLine struct {
	URI    string
	Server string
}

// Session is the publication engine of one signed-in endpoint. It owns the
// publication cache, the ACL containers and the presence state. It is not
// safe for concurrent use; the host serializes all calls, including
// transport and scheduler callbacks.
type Session struct {
	opts      Options
	transport Transport
	calendar  Calendar
	contacts  Contacts
	scheduler Scheduler
	journal   Journal
	logger    Logger
	clock     Clock
	ids       IDGenerator

	mailbox    string
	inst       Instances
	ourKeys    map[PubKey]bool
	cache      *Cache
	containers *ContainerStore
	userStates map[PubKey]uint32

	status       Status
	statusByUser bool
	note         string
	noteIsOOF    bool
	noteSince    time.Time

	multipleEndpoints bool
	accessLevelSet    bool
	initialPublished  bool
	callControl       *CallControlLine
}

// NewSession creates a Session. calendar, contacts and journal may be nil.
func NewSession(opts Options, transport Transport, calendar Calendar, contacts Contacts, scheduler Scheduler, journal Journal, logger Logger, clock Clock, ids IDGenerator) (*Session, error) {
	if opts.SelfURI == "" {
		return nil, fmt.Errorf("self uri is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if ids == nil {
		ids = UUIDGenerator{}
	}

	mailbox := opts.Mailbox
	if mailbox == "" && calendar != nil {
		mailbox = calendar.Mailbox()
	}

	epid := EndpointID(opts.SelfURI, opts.HostName, opts.EndpointUUID)
	inst := DeriveInstances(epid, mailbox)
	logger.Debug("publication instances",
		"device", inst.Device,
		"machine_state", inst.MachineState,
		"user_state", inst.UserState,
		"calendar_state", inst.CalendarState,
		"calendar_oof", inst.CalendarOOF,
		"calendar_data", inst.CalendarData,
		"note_oof", inst.NoteOOF)

	return &Session{
		opts:       opts,
		transport:  transport,
		calendar:   calendar,
		contacts:   contacts,
		scheduler:  scheduler,
		journal:    journal,
		logger:     logger,
		clock:      clock,
		ids:        ids,
		mailbox:    mailbox,
		inst:       inst,
		ourKeys:    inst.OurKeys(),
		cache:      NewCache(),
		containers: NewContainerStore(domainOf(stripSIP(opts.SelfURI))),
		userStates: make(map[PubKey]uint32),
		status:     StatusAvailable,
	}, nil
}

// Cache returns the publication cache.
func (s *Session) Cache() *Cache { return s.cache }

// Containers returns the ACL container store.
func (s *Session) Containers() *ContainerStore { return s.containers }

// Instances returns the publication instances of this endpoint.
func (s *Session) Instances() Instances { return s.inst }

// Status returns the current status and whether the user set it.
func (s *Session) Status() (Status, bool) { return s.status, s.statusByUser }

// Note returns the current note and whether it is an out-of-office note.
func (s *Session) Note() (string, bool) { return s.note, s.noteIsOOF }

// MultipleEndpoints reports whether other endpoints of the account are
// signed in.
func (s *Session) MultipleEndpoints() bool { return s.multipleEndpoints }

// InitialPublished reports whether the initial publish has been sent.
func (s *Session) InitialPublished() bool { return s.initialPublished }

// CallControl returns the remote call control line, or nil.
func (s *Session) CallControl() *CallControlLine { return s.callControl }

// SetStatus changes the status. byUser selects userState over machineState
// publications. The change is published by PublishStatus.
func (s *Session) SetStatus(status Status, byUser bool) {
	s.status = status
	s.statusByUser = byUser
}

// SetNote changes the note. The change is published by PublishStatus.
func (s *Session) SetNote(note string, oof bool) {
	s.note = note
	s.noteIsOOF = oof
	s.noteSince = s.clock.Now()
}

// PublishInitial publishes the device and the machine state.
func (s *Session) PublishInitial() error {
	frags := s.buildDevice()
	frags = append(frags, s.buildState(false)...)
	return s.publish(frags)
}

// PublishStatus publishes the state and the note when either changed.
func (s *Session) PublishStatus() error {
	frags := s.buildState(s.statusByUser)
	frags = append(frags, s.buildNote(s.note, s.noteIsOOF, time.Time{}, time.Time{})...)
	if len(frags) == 0 {
		s.logger.Debug("status and note unchanged")
		return nil
	}
	return s.publish(frags)
}

// PublishCalendar publishes working hours, free/busy, calendar state and the
// out-of-office note, then schedules itself at the next five-minute boundary.
func (s *Session) PublishCalendar() error {
	if s.calendar == nil {
		return ErrNoCalendar
	}
	now := s.clock.Now()
	defer s.scheduleCalendar(nextBoundary(now, calendarInterval))

	event := s.calendar.CurrentEvent(now)
	var oofEvent, busyEvent *CalendarEvent
	if event != nil {
		switch event.Status {
		case CalendarOOF:
			oofEvent = event
		case CalendarBusy:
			busyEvent = event
		}
	}

	oof := s.calendar.OOF()
	var oofStart, oofEnd time.Time
	if oof != nil && oof.State == OOFScheduled {
		oofStart, oofEnd = oof.Start, oof.End
	}

	frags, err := s.buildWorkingHours()
	if err != nil {
		s.logger.Warn("skipping working hours", "error", err)
	}
	frags = append(frags, s.buildFreeBusy()...)
	frags = append(frags, s.buildCalendarState(oofEvent, true, busyEvent != nil)...)
	frags = append(frags, s.buildCalendarState(busyEvent, false, oofEvent != nil)...)
	frags = append(frags, s.buildNote(oof.ActiveNote(now), true, oofStart, oofEnd)...)

	if len(frags) == 0 {
		s.logger.Debug("calendar publications unchanged")
		return nil
	}
	return s.publish(frags)
}

func (s *Session) scheduleCalendar(at time.Time) {
	s.scheduler.Schedule(calendarJob, at, func() {
		if err := s.PublishCalendar(); err != nil {
			s.logger.Error("calendar publish failed", "error", err)
		}
	})
}

// ResetStatus clears every userState publication seen in roaming data.
func (s *Session) ResetStatus() error {
	frags := s.buildUserStateClears()
	if len(frags) == 0 {
		s.logger.Debug("no userState publications to reset")
		return nil
	}
	return s.publish(frags)
}

// ChangeAccessLevel moves a principal to the target level and sends the
// resulting membership changes.
func (s *Session) ChangeAccessLevel(target Level, t MemberType, value string) error {
	return s.sendContainerMembers(s.containers.ChangeAccessLevel(target, t, value))
}

// RemoveAccess removes a principal from every access level.
func (s *Session) RemoveAccess(t MemberType, value string) error {
	return s.sendContainerMembers(s.containers.RemoveAccess(t, value))
}

// ChangeAccessLevelForDomain sets the level of a domain by menu index.
func (s *Session) ChangeAccessLevelForDomain(domain string, index int) error {
	changes, err := s.containers.ChangeAccessLevelForDomain(domain, index)
	if err != nil {
		return err
	}
	return s.sendContainerMembers(changes)
}

// publish sends frags as one publish request. The sent payloads are written
// to the cache before sending and rolled back when the send fails. The key
// order and sent versions are kept for conflict resolution.
func (s *Session) publish(frags []Fragment) error {
	body, err := renderPublish(s.opts.SelfURI, frags)
	if err != nil {
		return err
	}

	keys := make([]PubKey, len(frags))
	versions := make([]uint32, len(frags))
	recKeys := make([]model.RequestKey, len(frags))
	for i, f := range frags {
		keys[i] = f.Key
		versions[i] = f.Version
		recKeys[i] = model.RequestKey{
			Position:  i + 1,
			Category:  f.Key.Category,
			Instance:  f.Key.Instance,
			Container: f.Key.Container,
			Version:   f.Version,
			Cleared:   f.Clear,
		}
	}

	saved := make([]*Publication, len(frags))
	for i, f := range frags {
		if p := s.cache.Get(f.Key); p != nil {
			cp := *p
			saved[i] = &cp
		}
		s.remember(f)
	}

	journalID := s.record(model.RequestPublish, recKeys)
	req := s.newRequest(ContentTypePublish, body)
	err = s.transport.Send(req, func(resp Response) {
		s.handlePublishResponse(journalID, keys, versions, resp)
	})
	if err != nil {
		s.finish(journalID, 0, "")
		for i := len(frags) - 1; i >= 0; i-- {
			s.cache.restore(frags[i].Key, saved[i])
		}
		return fmt.Errorf("sending publish: %w", err)
	}
	s.logger.Info("publish sent", "publications", len(frags))
	return nil
}

func (s *Session) remember(f Fragment) {
	p := s.cache.Get(f.Key)
	if p == nil {
		p = &Publication{Key: f.Key, Version: f.Version}
		s.cache.Put(p)
	}
	p.Unconfirmed = false
	p.Cleared = f.Clear
	if f.Clear {
		p.Availability, p.CalEventHash, p.Note = 0, "", ""
		p.WorkingHours, p.FreeBusyStart, p.FreeBusy = "", "", ""
		return
	}
	if f.payload != nil {
		p.Availability = f.payload.Availability
		p.CalEventHash = f.payload.CalEventHash
		p.Note = f.payload.Note
		p.WorkingHours = f.payload.WorkingHours
		p.FreeBusyStart = f.payload.FreeBusyStart
		p.FreeBusy = f.payload.FreeBusy
	}
}

func (s *Session) sendContainerMembers(changes []MemberChange) error {
	if len(changes) == 0 {
		s.logger.Debug("access unchanged")
		return nil
	}
	body, err := renderContainerMembers(changes)
	if err != nil {
		return err
	}
	journalID := s.record(model.RequestContainerMembers, nil)
	req := s.newRequest(ContentTypeContainerMembers, body)
	err = s.transport.Send(req, func(resp Response) {
		s.finish(journalID, resp.Status, "")
		if resp.Status >= 300 {
			s.logger.Warn("container update rejected", "status", resp.Status)
		}
	})
	if err != nil {
		s.finish(journalID, 0, "")
		return fmt.Errorf("sending container members: %w", err)
	}
	s.logger.Info("container members sent", "changes", len(changes))
	return nil
}

func (s *Session) sendSubscriberAck(user string) error {
	body, err := renderSubscriberAck(user)
	if err != nil {
		return err
	}
	journalID := s.record(model.RequestSetSubscribers, nil)
	req := s.newRequest(ContentTypeSetSubscriber, body)
	err = s.transport.Send(req, func(resp Response) {
		s.finish(journalID, resp.Status, "")
	})
	if err != nil {
		s.finish(journalID, 0, "")
		return fmt.Errorf("sending subscriber ack: %w", err)
	}
	return nil
}

func (s *Session) newRequest(contentType, body string) *Request {
	req := &Request{
		Target:      s.opts.SelfURI,
		ContentType: contentType,
		Body:        body,
	}
	if s.opts.Contact != "" {
		req.Headers = append(req.Headers, Header{Name: "Contact", Value: s.opts.Contact})
	}
	return req
}

// record journals an outbound request. Failures are logged and yield 0.
func (s *Session) record(kind string, keys []model.RequestKey) int64 {
	if s.journal == nil {
		return 0
	}
	id, err := s.journal.RecordRequest(&model.Request{
		CorrelationID: s.ids.New(),
		Kind:          kind,
		Target:        s.opts.SelfURI,
		SentAt:        s.clock.Now(),
		Keys:          keys,
	})
	if err != nil {
		s.logger.Warn("journal record failed", "kind", kind, "error", err)
		return 0
	}
	return id
}

func (s *Session) finish(id int64, status int, faultCode string) {
	if s.journal == nil || id == 0 {
		return
	}
	if err := s.journal.FinishRequest(id, status, faultCode, s.clock.Now()); err != nil {
		s.logger.Warn("journal finish failed", "id", id, "error", err)
	}
}

func sortedKeys(m map[PubKey]uint32) []PubKey {
	keys := make([]PubKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Instance != keys[j].Instance {
			return keys[i].Instance < keys[j].Instance
		}
		return keys[i].Container < keys[j].Container
	})
	return keys
}
