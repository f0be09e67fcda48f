package presence_test

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"richpres/internal/presence"
	"richpres/internal/testutil"
)

const selfURI = "sip:alice@contoso.com"

type fixture struct {
	session   *presence.Session
	transport *testutil.FakeTransport
	scheduler *testutil.FakeScheduler
	calendar  *testutil.FakeCalendar
	contacts  *testutil.FakeContacts
	journal   *testutil.FakeJournal
	clock     *testutil.ManualClock
}

type fixtureOption func(*fixture, *presence.Options)

func withCalendar() fixtureOption {
	return func(f *fixture, _ *presence.Options) {
		f.calendar = testutil.NewFakeCalendar("alice@contoso.com")
	}
}

func withContacts(uris ...string) fixtureOption {
	return func(f *fixture, _ *presence.Options) {
		f.contacts = testutil.NewFakeContacts(uris...)
	}
}

func withoutFreeBusyRefresh() fixtureOption {
	return func(_ *fixture, o *presence.Options) {
		o.FreeBusyRefresh = false
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		transport: testutil.NewFakeTransport(),
		scheduler: testutil.NewFakeScheduler(),
		contacts:  testutil.NewFakeContacts(),
		journal:   testutil.NewFakeJournal(),
		clock:     testutil.LoginClock(),
	}
	o := presence.Options{
		SelfURI:         selfURI,
		Contact:         "<sip:alice@contoso.com;transport=tls>",
		EndpointUUID:    "3f2f6d3e-8a7e-4f5c-9c61-0a4d2b7f9e10",
		HostName:        "desk-01",
		FreeBusyRefresh: true,
	}
	for _, opt := range opts {
		opt(f, &o)
	}

	var cal presence.Calendar
	if f.calendar != nil {
		cal = f.calendar
	}
	s, err := presence.NewSession(o, f.transport, cal, f.contacts, f.scheduler, f.journal,
		presence.NewNopLogger(), f.clock, testutil.NewCorrelationIDs())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	f.session = s
	return f
}

// sentPub is a publication read back from an outbound publish body.
type sentPub struct {
	Category  string
	Instance  uint32
	Container uint32
	Version   uint32
	Expire    string
	Cleared   bool
	Content   *etree.Element
}

func (p sentPub) key() presence.PubKey {
	return presence.PubKey{Category: p.Category, Instance: p.Instance, Container: p.Container}
}

func parseUint(t *testing.T, s string) uint32 {
	t.Helper()
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return uint32(n)
}

func parsePublish(t *testing.T, req *presence.Request) []sentPub {
	t.Helper()
	if req.ContentType != presence.ContentTypePublish {
		t.Fatalf("content type = %q, want %q", req.ContentType, presence.ContentTypePublish)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(req.Body); err != nil {
		t.Fatalf("parsing publish body: %v", err)
	}
	pubs := doc.Root().SelectElement("publications")
	if pubs == nil {
		t.Fatalf("publish body has no publications: %s", req.Body)
	}
	if got := pubs.SelectAttrValue("uri", ""); got != selfURI {
		t.Errorf("publications uri = %q, want %q", got, selfURI)
	}

	var res []sentPub
	for _, p := range pubs.SelectElements("publication") {
		var content *etree.Element
		if els := p.ChildElements(); len(els) > 0 {
			content = els[0]
		}
		res = append(res, sentPub{
			Category:  p.SelectAttrValue("categoryName", ""),
			Instance:  parseUint(t, p.SelectAttrValue("instance", "")),
			Container: parseUint(t, p.SelectAttrValue("container", "")),
			Version:   parseUint(t, p.SelectAttrValue("version", "")),
			Expire:    p.SelectAttrValue("expireType", ""),
			Cleared:   p.SelectAttrValue("expires", "") == "0",
			Content:   content,
		})
	}
	return res
}

func lastPublish(t *testing.T, f *fixture) []sentPub {
	t.Helper()
	last := f.transport.Last()
	if last == nil {
		t.Fatal("no request sent")
	}
	return parsePublish(t, last.Request)
}

func findPub(pubs []sentPub, key presence.PubKey) (sentPub, bool) {
	for _, p := range pubs {
		if p.key() == key {
			return p, true
		}
	}
	return sentPub{}, false
}

func countCategory(pubs []sentPub, category string) int {
	n := 0
	for _, p := range pubs {
		if p.Category == category {
			n++
		}
	}
	return n
}

func childText(e *etree.Element, path string) string {
	if e == nil {
		return ""
	}
	c := e.FindElement(path)
	if c == nil {
		return ""
	}
	return c.Text()
}

func ok202() presence.Response {
	return presence.Response{Status: 202}
}

func wrongDelta(ops map[int]uint32) presence.Response {
	var b strings.Builder
	b.WriteString(`<Fault xmlns="http://schemas.microsoft.com/2006/09/sip/rich-presence">`)
	b.WriteString(`<Faultcode>Client.BadCall.WrongDelta</Faultcode>`)
	b.WriteString(`<Faultstring>Publication version out of date.</Faultstring><details>`)
	for idx := 1; idx <= 64; idx++ {
		if v, ok := ops[idx]; ok {
			fmt.Fprintf(&b, `<operation index="%d" curVersion="%d"/>`, idx, v)
		}
	}
	b.WriteString(`</details></Fault>`)
	return presence.Response{Status: 409, ContentType: presence.ContentTypeFault, Body: []byte(b.String())}
}

// roaming builds a roaming-self document from raw sections.
func roaming(categories, containers, subscribers string) []byte {
	return []byte(`<roamingData xmlns="http://schemas.microsoft.com/2006/09/sip/roaming-self">` +
		`<categories xmlns="http://schemas.microsoft.com/2006/09/sip/categories">` + categories + `</categories>` +
		containers + subscribers + `</roamingData>`)
}

func stateCategory(instance, container, version uint32, xsiType string, avail int) string {
	return fmt.Sprintf(`<category name="state" instance="%d" publishTime="2024-01-15T10:00:00Z" container="%d" version="%d" expireType="endpoint">`+
		`<state xmlns="http://schemas.microsoft.com/2006/09/sip/state" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:type="%s">`+
		`<availability>%d</availability></state></category>`, instance, container, version, xsiType, avail)
}

func noteCategory(instance, container, version uint32, publishTime, bodyType, text string) string {
	return fmt.Sprintf(`<category name="note" instance="%d" publishTime="%s" container="%d" version="%d" expireType="static">`+
		`<note xmlns="http://schemas.microsoft.com/2006/09/sip/note"><body type="%s" uri="">%s</body></note></category>`,
		instance, publishTime, container, version, bodyType, text)
}

func deviceCategory(instance, version uint32) string {
	return fmt.Sprintf(`<category name="device" instance="%d" publishTime="2024-01-15T09:00:00Z" container="2" version="%d" expireType="endpoint">`+
		`<device xmlns="http://schemas.microsoft.com/2006/09/sip/device" endpointId="x"/></category>`, instance, version)
}

func containersSection(body string) string {
	return `<containers xmlns="http://schemas.microsoft.com/2006/09/sip/container-management">` + body + `</containers>`
}

// primeSession runs the first ingestion and answers the initial publish.
func primeSession(t *testing.T, f *fixture, categories string) {
	t.Helper()
	if err := f.session.Ingest(roaming(categories, containersSection(
		`<container id="200" version="1"><member type="sameEnterprise"/></container>`+
			`<container id="100" version="1"><member type="federated"/></container>`), "")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	for i := range f.transport.Sent() {
		f.transport.Respond(i, ok202())
	}
	f.transport.Reset()
}
