package presence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// EntryKind tells what a roaming category entry does to the cache.
type EntryKind int

const (
	// EntrySet carries a publication.
	EntrySet EntryKind = iota
	// EntryClearContainer removes a category from one container.
	EntryClearContainer
	// EntryClearCategory removes a category altogether.
	EntryClearCategory
)

// SnapshotEntry is one category element of a roaming-self document.
type SnapshotEntry struct {
	Kind        EntryKind
	Category    string
	Instance    uint32
	Container   uint32
	Version     uint32
	PublishTime time.Time

	node *etree.Element
}

// Key returns the publication key of an EntrySet entry.
func (e *SnapshotEntry) Key() PubKey {
	return PubKey{Category: e.Category, Instance: e.Instance, Container: e.Container}
}

// Subscriber is a watcher listed in a roaming-self document.
type Subscriber struct {
	User           string // without "sip:"
	DisplayName    string
	Unacknowledged bool
}

// Snapshot is a parsed roaming-self document.
type Snapshot struct {
	Categories    []string
	Entries       []SnapshotEntry
	HasContainers bool
	Containers    []*Container
	Subscribers   []Subscriber
}

// ParseSnapshot parses a roaming-self document.
func ParseSnapshot(body []byte) (*Snapshot, error) {
	root, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	seen := make(map[string]bool)
	for _, node := range children(root, "categories/category") {
		name, ok := attr(node, "name")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: category without name", ErrMalformedDocument)
		}
		if !seen[name] {
			seen[name] = true
			snap.Categories = append(snap.Categories, name)
		}

		entry := SnapshotEntry{Category: name, node: node}
		container, hasContainer, err := attrUint(node, "container")
		if err != nil {
			return nil, err
		}
		instance, hasInstance, err := attrUint(node, "instance")
		if err != nil {
			return nil, err
		}
		switch {
		case !hasContainer:
			entry.Kind = EntryClearCategory
		case !hasInstance:
			entry.Kind = EntryClearContainer
			entry.Container = container
		default:
			entry.Kind = EntrySet
			entry.Container = container
			entry.Instance = instance
			if entry.Version, _, err = attrUint(node, "version"); err != nil {
				return nil, err
			}
			entry.PublishTime = parseTime(attrValue(node, "publishTime"))
		}
		snap.Entries = append(snap.Entries, entry)
	}
	sort.Strings(snap.Categories)

	snap.HasContainers = child(root, "containers") != nil
	for _, node := range children(root, "containers/container") {
		id, _, err := attrUint(node, "id")
		if err != nil {
			return nil, err
		}
		version, _, err := attrUint(node, "version")
		if err != nil {
			return nil, err
		}
		c := &Container{ID: NamedLevel(Level(id)), Version: version}
		for _, m := range children(node, "member") {
			c.Members = append(c.Members, Member{
				Type:  MemberType(attrValue(m, "type")),
				Value: attrValue(m, "value"),
			})
		}
		snap.Containers = append(snap.Containers, c)
	}

	for _, node := range children(root, "subscribers/subscriber") {
		user := attrValue(node, "user")
		if user == "" {
			continue
		}
		snap.Subscribers = append(snap.Subscribers, Subscriber{
			User:           user,
			DisplayName:    attrValue(node, "displayName"),
			Unacknowledged: strings.EqualFold(attrValue(node, "acknowledged"), "false"),
		})
	}
	return snap, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Ingest applies a roaming-self document: it refreshes the publication
// cache, the containers and the note, acknowledges new subscribers and
// publishes whatever the new state requires. A malformed document is
// rejected before anything changes.
func (s *Session) Ingest(body []byte) error {
	snap, err := ParseSnapshot(body)
	if err != nil {
		return fmt.Errorf("parsing roaming data: %w", err)
	}

	for _, name := range snap.Categories {
		s.cache.DropCategory(name)
	}

	update := false
	noteCleaned := false
	aggregate := 0
	devices := make(map[uint32]bool)

	for i := range snap.Entries {
		e := &snap.Entries[i]
		switch e.Kind {
		case EntryClearCategory:
			s.note = ""
			update = true
			continue
		case EntryClearContainer:
			if e.Container == 200 {
				s.note = ""
				update = true
			}
			s.cache.DropContainer(e.Category, e.Container)
			continue
		}

		key := e.Key()
		state := child(e.node, "state")
		stateType := attrValue(state, "type")

		if e.Category == CategoryState && (e.Container == containerEndpoint || e.Container == containerSelf) && stateType == "userState" {
			s.userStates[key] = e.Version
		}
		if e.Category == CategoryDevice {
			devices[e.Instance] = true
		}

		if s.ourKeys[key] {
			p := &Publication{Key: key, Version: e.Version}
			switch e.Category {
			case CategoryState:
				if a := child(state, "availability"); a != nil {
					p.Availability, _ = strconv.Atoi(strings.TrimSpace(elementText(a)))
				}
				if stateType == "calendarState" {
					p.CalEventHash = calendarHash(state)
				}
			case CategoryNote:
				if !noteCleaned {
					noteCleaned = true
					s.note = ""
					s.noteSince = e.PublishTime
					update = true
				}
				if b := child(e.node, "note/body"); b != nil {
					p.Note = elementText(b)
					if !e.PublishTime.Before(s.noteSince) {
						s.note = p.Note
						s.noteSince = e.PublishTime
						s.noteIsOOF = attrValue(b, "type") == "OOF"
						update = true
					}
				}
			case CategoryCalendarData:
				if e.Container == 300 {
					if fb := child(e.node, "calendarData/freeBusy"); fb != nil {
						p.FreeBusyStart = attrValue(fb, "startTime")
						p.FreeBusy = elementText(fb)
					}
					if wh := child(e.node, "calendarData/WorkingHours"); wh != nil {
						p.WorkingHours = stringify(wh)
					}
				}
			}
			s.cache.Put(p)
		}

		if e.Category == CategoryState && e.Container == containerEndpoint && stateType == "aggregateState" {
			if a := child(state, "availability"); a != nil {
				aggregate, _ = strconv.Atoi(strings.TrimSpace(elementText(a)))
			}
			update = true
		}

		if e.Category == "userProperties" && s.callControl == nil {
			s.callControl = callControlLine(e.node)
		}
	}

	s.multipleEndpoints = len(devices) > 1
	if s.multipleEndpoints {
		s.logger.Info("multiple endpoints signed in", "devices", len(devices))
	}

	for _, c := range snap.Containers {
		s.containers.Replace(c)
	}

	if !s.accessLevelSet && snap.HasContainers {
		s.accessLevelSet = true
		if err := s.seedAccessLevels(); err != nil {
			s.logger.Error("seeding access levels failed", "error", err)
		}
	}

	s.refreshBlocked()

	for _, sub := range snap.Subscribers {
		s.applySubscriber(sub)
	}

	if !s.initialPublished {
		if err := s.PublishInitial(); err != nil {
			s.logger.Error("initial publish failed", "error", err)
		}
		s.initialPublished = true
		if s.calendar != nil {
			s.scheduleCalendar(s.clock.Now().Add(calendarKickoff))
		}
		update = false
	} else if aggregate != 0 {
		if aggregate < 18000 {
			s.status = StatusByAvailability(aggregate)
		} else {
			s.status = StatusInvisible
		}
	}

	if update {
		if err := s.PublishStatus(); err != nil {
			s.logger.Error("status publish failed", "error", err)
		}
	}
	return nil
}

func calendarHash(state *etree.Element) string {
	ev := &CalendarEvent{
		Start:    parseTime(attrValue(state, "startTime")),
		Subject:  elementText(child(state, "meetingSubject")),
		Location: elementText(child(state, "meetingLocation")),
	}
	if a := child(state, "activity"); a != nil && attrValue(a, "token") == ActivityInMeeting {
		ev.IsMeeting = true
	}
	return ev.Hash()
}

func callControlLine(node *etree.Element) *CallControlLine {
	for _, line := range children(node, "userProperties/lines/line") {
		server := attrValue(line, "lineServer")
		lineType := attrValue(line, "lineType")
		if server == "" || (lineType != "Rcc" && lineType != "Dual") {
			continue
		}
		uri := strings.TrimSpace(elementText(line))
		if uri == "" {
			continue
		}
		return &CallControlLine{URI: uri, Server: server}
	}
	return nil
}

// seedAccessLevels lets the enterprise and federated users see the
// presence when the account has never configured them.
func (s *Session) seedAccessLevels() error {
	var changes []MemberChange
	if _, ok := s.containers.FindAccessLevel(MemberSameEnterprise, ""); !ok {
		changes = append(changes, s.containers.ChangeAccessLevel(LevelCompany, MemberSameEnterprise, "")...)
	}
	if _, ok := s.containers.FindAccessLevel(MemberFederated, ""); !ok {
		changes = append(changes, s.containers.ChangeAccessLevel(LevelPublic, MemberFederated, "")...)
	}
	return s.sendContainerMembers(changes)
}

func (s *Session) refreshBlocked() {
	if s.contacts == nil {
		return
	}
	contacts, err := s.contacts.List()
	if err != nil {
		s.logger.Warn("listing contacts failed", "error", err)
		return
	}
	for _, c := range contacts {
		access, ok := s.containers.FindAccessLevel(MemberUser, c.URI)
		blocked := ok && access.Level == LevelBlocked
		if blocked == c.Blocked {
			continue
		}
		if err := s.contacts.SetBlocked(c.URI, blocked); err != nil {
			s.logger.Warn("updating blocked flag failed", "uri", c.URI, "error", err)
		}
	}
}

func (s *Session) applySubscriber(sub Subscriber) {
	uri := "sip:" + sub.User
	if s.contacts != nil && sub.DisplayName != "" {
		if err := s.contacts.SetDisplayName(uri, sub.DisplayName); err != nil {
			s.logger.Warn("updating display name failed", "uri", uri, "error", err)
		}
	}
	if !sub.Unacknowledged {
		return
	}

	if s.contacts != nil {
		existing, err := s.contacts.Find(uri)
		switch {
		case err != nil:
			s.logger.Warn("finding contact failed", "uri", uri, "error", err)
		case existing == nil:
			if err := s.contacts.RequestAdd(uri, sub.DisplayName); err != nil {
				s.logger.Warn("requesting contact add failed", "uri", uri, "error", err)
			}
		}
	}

	if err := s.sendSubscriberAck(sub.User); err != nil {
		s.logger.Error("acknowledging subscriber failed", "user", sub.User, "error", err)
	}
}
