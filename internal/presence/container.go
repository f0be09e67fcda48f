package presence

import (
	"fmt"
	"sort"
	"strings"
)

// Level is a numeric container id. The five standard access levels are
// named constants; any other id reported by the server is kept as-is.
type Level uint32

const (
	LevelPublic   Level = 100
	LevelCompany  Level = 200
	LevelTeam     Level = 300
	LevelPersonal Level = 400
	LevelBlocked  Level = 32000
)

// StandardLevels lists the access levels in resolution order.
var StandardLevels = [...]Level{LevelBlocked, LevelPersonal, LevelTeam, LevelCompany, LevelPublic}

// String returns the display name of a standard level.
func (l Level) String() string {
	switch l {
	case LevelBlocked:
		return "Blocked"
	case LevelPersonal:
		return "Personal"
	case LevelTeam:
		return "Team"
	case LevelCompany:
		return "Company"
	case LevelPublic:
		return "Public"
	default:
		return "Unknown"
	}
}

// IsStandard reports whether l is one of the five access levels.
func (l Level) IsStandard() bool {
	for _, s := range StandardLevels {
		if s == l {
			return true
		}
	}
	return false
}

// ParseLevel maps a level name (case-insensitive) or a numeric id to a Level.
func ParseLevel(s string) (Level, error) {
	for _, l := range StandardLevels {
		if strings.EqualFold(l.String(), s) {
			return l, nil
		}
	}
	var n uint32
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
		return Level(n), nil
	}
	return 0, fmt.Errorf("unknown access level: %q", s)
}

// ContainerID identifies a container: either a numeric level or an ad-hoc
// group token. The zero value is not a valid id.
type ContainerID struct {
	level Level
	group string
}

// NamedLevel returns the id of a numeric container.
func NamedLevel(l Level) ContainerID { return ContainerID{level: l} }

// GroupID returns the id of an ad-hoc group container.
func GroupID(token string) ContainerID { return ContainerID{group: token} }

// Level returns the numeric level, or false for a group container.
func (c ContainerID) Level() (Level, bool) {
	if c.group != "" {
		return 0, false
	}
	return c.level, true
}

// Group returns the group token, or false for a numeric container.
func (c ContainerID) Group() (string, bool) {
	return c.group, c.group != ""
}

func (c ContainerID) String() string {
	if c.group != "" {
		return "group:" + c.group
	}
	return fmt.Sprintf("%d", c.level)
}

// MemberType is the kind of principal a container member names.
type MemberType string

const (
	MemberUser           MemberType = "user"
	MemberDomain         MemberType = "domain"
	MemberSameEnterprise MemberType = "sameEnterprise"
	MemberFederated      MemberType = "federated"
	MemberPublicCloud    MemberType = "publicCloud"
	MemberEveryone       MemberType = "everyone"
)

// Member is a principal in a container. Value is set only for user and
// domain members; user values carry no "sip:" prefix.
type Member struct {
	Type  MemberType
	Value string
}

func (m Member) matches(t MemberType, value string) bool {
	return strings.EqualFold(string(m.Type), string(t)) && strings.EqualFold(m.Value, value)
}

// Container is a server-side ACL bucket.
type Container struct {
	ID      ContainerID
	Version uint32
	Members []Member
}

func (c *Container) find(t MemberType, value string) int {
	for i, m := range c.Members {
		if m.matches(t, value) {
			return i
		}
	}
	return -1
}

// MemberAction is the operation of a container membership change.
type MemberAction string

const (
	ActionAdd    MemberAction = "add"
	ActionRemove MemberAction = "remove"
)

// MemberChange is one element of a setContainerMembers request.
type MemberChange struct {
	Container Level
	Version   uint32
	Action    MemberAction
	Member    Member
}

// Access is the result of resolving a principal against the containers.
// Inherited is set when the match came from a domain, enterprise, public
// cloud or everyone member rather than the principal itself.
type Access struct {
	Level     Level
	Inherited bool
}

// ContainerStore holds the ACL containers reported by the server.
// It is not safe for concurrent use.
type ContainerStore struct {
	selfDomain string
	containers []*Container
}

// NewContainerStore creates an empty store for an account in selfDomain.
func NewContainerStore(selfDomain string) *ContainerStore {
	return &ContainerStore{selfDomain: selfDomain}
}

// Get returns the container with the given id, or nil.
func (s *ContainerStore) Get(id ContainerID) *Container {
	for _, c := range s.containers {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Replace inserts c, dropping any container with the same id.
func (s *ContainerStore) Replace(c *Container) {
	for i, existing := range s.containers {
		if existing.ID == c.ID {
			s.containers = append(s.containers[:i], s.containers[i+1:]...)
			break
		}
	}
	s.containers = append(s.containers, c)
}

// Containers returns the stored containers in insertion order.
func (s *ContainerStore) Containers() []*Container {
	return s.containers
}

// Len returns the number of stored containers.
func (s *ContainerStore) Len() int { return len(s.containers) }

func (s *ContainerStore) version(l Level) uint32 {
	if c := s.Get(NamedLevel(l)); c != nil {
		return c.Version
	}
	return 0
}

// memberLevel returns the first standard level holding (t, value).
func (s *ContainerStore) memberLevel(t MemberType, value string) (Level, bool) {
	for _, l := range StandardLevels {
		c := s.Get(NamedLevel(l))
		if c == nil {
			continue
		}
		if c.find(t, value) >= 0 {
			return l, true
		}
	}
	return 0, false
}

// FindAccessLevel resolves the access level of a principal. User principals
// fall back to their domain, the enterprise, the public cloud and everyone,
// in that order.
func (s *ContainerStore) FindAccessLevel(t MemberType, value string) (Access, bool) {
	if t != MemberUser {
		l, ok := s.memberLevel(t, value)
		return Access{Level: l}, ok
	}

	user := stripSIP(value)
	if l, ok := s.memberLevel(MemberUser, user); ok {
		return Access{Level: l}, true
	}

	domain := domainOf(user)
	if l, ok := s.memberLevel(MemberDomain, domain); ok {
		return Access{Level: l, Inherited: true}, true
	}
	if l, ok := s.memberLevel(MemberSameEnterprise, ""); ok && domain != "" && strings.EqualFold(s.selfDomain, domain) {
		return Access{Level: l, Inherited: true}, true
	}
	if l, ok := s.memberLevel(MemberPublicCloud, ""); ok && IsPublicDomain(domain) {
		return Access{Level: l, Inherited: true}, true
	}
	if l, ok := s.memberLevel(MemberEveryone, ""); ok {
		return Access{Level: l, Inherited: true}, true
	}
	return Access{}, false
}

// ChangeAccessLevel moves a principal to target, updating the local
// containers and returning the changes to send. The result is empty when the
// principal already resolves to target, so a repeated call sends nothing.
func (s *ContainerStore) ChangeAccessLevel(target Level, t MemberType, value string) []MemberChange {
	return s.changeAccess(target, true, t, value)
}

// RemoveAccess removes a principal from every standard level.
func (s *ContainerStore) RemoveAccess(t MemberType, value string) []MemberChange {
	return s.changeAccess(0, false, t, value)
}

func (s *ContainerStore) changeAccess(target Level, hasTarget bool, t MemberType, value string) []MemberChange {
	if t == MemberUser {
		value = stripSIP(value)
	}
	var changes []MemberChange

	for _, l := range StandardLevels {
		c := s.Get(NamedLevel(l))
		if c == nil {
			continue
		}
		i := c.find(t, value)
		if i < 0 {
			continue
		}
		if hasTarget && l == target {
			continue
		}
		changes = append(changes, MemberChange{
			Container: l,
			Version:   c.Version,
			Action:    ActionRemove,
			Member:    c.Members[i],
		})
		c.Members = append(c.Members[:i], c.Members[i+1:]...)
	}

	if !hasTarget {
		return changes
	}

	current, ok := s.FindAccessLevel(t, value)
	if ok && current.Level == target {
		return changes
	}
	m := Member{Type: t, Value: value}
	changes = append(changes, MemberChange{
		Container: target,
		Version:   s.version(target),
		Action:    ActionAdd,
		Member:    m,
	})

	c := s.Get(NamedLevel(target))
	if c == nil {
		c = &Container{ID: NamedLevel(target)}
		s.containers = append(s.containers, c)
	}
	c.Members = append(c.Members, m)
	return changes
}

// ChangeAccessLevelFromContainer applies the first member of a template
// container to target. Templates without members yield no change.
func (s *ContainerStore) ChangeAccessLevelFromContainer(target Level, template *Container) []MemberChange {
	if template == nil || len(template.Members) == 0 {
		return nil
	}
	m := template.Members[0]
	return s.ChangeAccessLevel(target, m.Type, m.Value)
}

// ChangeAccessLevelForDomain sets the level of a domain by menu index. Index
// 4 selects Blocked, 0-3 select Personal through Public.
func (s *ContainerStore) ChangeAccessLevelForDomain(domain string, index int) ([]MemberChange, error) {
	if index < 0 || index >= len(StandardLevels) {
		return nil, fmt.Errorf("access level index out of range: %d", index)
	}
	i := index + 1
	if index == len(StandardLevels)-1 {
		i = 0
	}
	return s.ChangeAccessLevel(StandardLevels[i], MemberDomain, domain), nil
}

// AccessDomains returns the domain members of all containers, sorted and
// unique without regard to case.
func (s *ContainerStore) AccessDomains() []string {
	seen := make(map[string]bool)
	var res []string
	for _, c := range s.containers {
		for _, m := range c.Members {
			if !strings.EqualFold(string(m.Type), string(MemberDomain)) || m.Value == "" {
				continue
			}
			key := strings.ToLower(m.Value)
			if seen[key] {
				continue
			}
			seen[key] = true
			res = append(res, m.Value)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return strings.ToLower(res[i]) < strings.ToLower(res[j])
	})
	return res
}

func stripSIP(uri string) string {
	if len(uri) >= 4 && strings.EqualFold(uri[:4], "sip:") {
		return uri[4:]
	}
	return uri
}

// domainOf returns the part after '@', or "" when there is none.
func domainOf(user string) string {
	i := strings.Index(user, "@")
	if i < 0 || i == len(user)-1 {
		return ""
	}
	return user[i+1:]
}

var publicDomains = []string{
	"aol.com", "icq.com", "love.com", "mac.com", "br.live.com",
	"hotmail.co.il", "hotmail.co.jp", "hotmail.co.th", "hotmail.co.uk",
	"hotmail.com", "hotmail.com.ar", "hotmail.com.tr", "hotmail.es",
	"hotmail.de", "hotmail.fr", "hotmail.it", "live.at", "live.be",
	"live.ca", "live.cl", "live.cn", "live.co.in", "live.co.kr",
	"live.co.uk", "live.co.za", "live.com", "live.com.ar", "live.com.au",
	"live.com.co", "live.com.mx", "live.com.my", "live.com.pe",
	"live.com.ph", "live.com.pk", "live.com.pt", "live.com.sg",
	"live.com.ve", "live.de", "live.dk", "live.fr", "live.hk", "live.ie",
	"live.in", "live.it", "live.jp", "live.nl", "live.no", "live.ph",
	"live.ru", "live.se", "livemail.com.br", "livemail.tw",
	"messengeruser.com", "msn.com", "passport.com", "sympatico.ca",
	"tw.live.com", "webtv.net", "windowslive.com", "windowslive.es",
	"yahoo.com",
}

// IsPublicDomain reports whether domain belongs to a public IM provider.
func IsPublicDomain(domain string) bool {
	if domain == "" {
		return false
	}
	for _, d := range publicDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}
