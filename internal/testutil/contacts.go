package testutil

import (
	"sort"
	"sync"

	"richpres/internal/model"
	"richpres/internal/presence"
)

// FakeContacts is an in-memory contact list.
type FakeContacts struct {
	mu       sync.Mutex
	contacts map[string]*model.Contact
	added    []string
}

var _ presence.Contacts = (*FakeContacts)(nil)

func NewFakeContacts(uris ...string) *FakeContacts {
	c := &FakeContacts{contacts: make(map[string]*model.Contact)}
	for _, uri := range uris {
		c.contacts[uri] = &model.Contact{URI: uri}
	}
	return c
}

func (c *FakeContacts) List() ([]*model.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]*model.Contact, 0, len(c.contacts))
	for _, ct := range c.contacts {
		cp := *ct
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].URI < res[j].URI })
	return res, nil
}

func (c *FakeContacts) Find(uri string) (*model.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct, ok := c.contacts[uri]
	if !ok {
		return nil, nil
	}
	cp := *ct
	return &cp, nil
}

func (c *FakeContacts) SetBlocked(uri string, blocked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.contacts[uri]; ok {
		ct.Blocked = blocked
	}
	return nil
}

func (c *FakeContacts) SetDisplayName(uri, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.contacts[uri]; ok {
		ct.DisplayName = name
	}
	return nil
}

func (c *FakeContacts) RequestAdd(uri, displayName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, uri)
	c.contacts[uri] = &model.Contact{URI: uri, DisplayName: displayName, PendingAdd: true}
	return nil
}

// Added returns the uris passed to RequestAdd.
func (c *FakeContacts) Added() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.added...)
}
