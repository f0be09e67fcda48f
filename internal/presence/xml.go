package presence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Namespaces of the presence documents.
const (
	nsRichPresence        = "http://schemas.microsoft.com/2006/09/sip/rich-presence"
	nsState               = "http://schemas.microsoft.com/2006/09/sip/state"
	nsNote                = "http://schemas.microsoft.com/2006/09/sip/note"
	nsDevice              = "http://schemas.microsoft.com/2006/09/sip/device"
	nsCalendarData        = "http://schemas.microsoft.com/2006/09/sip/calendarData"
	nsContainerManagement = "http://schemas.microsoft.com/2006/09/sip/container-management"
	nsSubscribers         = "http://schemas.microsoft.com/2006/09/sip/presence-subscribers"
	nsXSI                 = "http://www.w3.org/2001/XMLSchema-instance"
)

// Content types of outbound and inbound bodies.
const (
	ContentTypePublish          = "application/msrtc-category-publish+xml"
	ContentTypeContainerMembers = "application/msrtc-setcontainermembers+xml"
	ContentTypeSetSubscriber    = "application/msrtc-presence-setsubscriber+xml"
	ContentTypeFault            = "application/msrtc-fault+xml"
)

// ErrMalformedDocument is returned when an inbound body is not usable XML.
var ErrMalformedDocument = errors.New("malformed document")

// timeFormat is the wire format of startTime, endTime and publishTime.
const timeFormat = "2006-01-02T15:04:05Z"

func parseDocument(body []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedDocument)
	}
	return root, nil
}

// child follows a slash-separated path of local names.
func child(e *etree.Element, path string) *etree.Element {
	for _, name := range strings.Split(path, "/") {
		if e == nil {
			return nil
		}
		var next *etree.Element
		for _, c := range e.ChildElements() {
			if c.Tag == name {
				next = c
				break
			}
		}
		e = next
	}
	return e
}

// children returns the elements at path whose last segment is the local name.
func children(e *etree.Element, path string) []*etree.Element {
	parent := e
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		parent = child(e, path[:i])
		name = path[i+1:]
	}
	if parent == nil {
		return nil
	}
	var res []*etree.Element
	for _, c := range parent.ChildElements() {
		if c.Tag == name {
			res = append(res, c)
		}
	}
	return res
}

// attr looks up an attribute by local name regardless of prefix.
func attr(e *etree.Element, name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, a := range e.Attr {
		if a.Key == name && a.Space != "xmlns" {
			return a.Value, true
		}
	}
	return "", false
}

func attrValue(e *etree.Element, name string) string {
	v, _ := attr(e, name)
	return v
}

// attrUint reads a numeric attribute. present is false when the attribute is
// missing; a present value that is not an unsigned 32-bit number is an
// ErrMalformedDocument.
func attrUint(e *etree.Element, name string) (n uint32, present bool, err error) {
	v, ok := attr(e, name)
	if !ok {
		return 0, false, nil
	}
	u, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s=%q is not a number", ErrMalformedDocument, name, v)
	}
	return uint32(u), true, nil
}

func elementText(e *etree.Element) string {
	if e == nil {
		return ""
	}
	return e.Text()
}

// stringify serializes e without indentation.
func stringify(e *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(e.Copy())
	doc.Indent(etree.NoIndent)
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

func newElement(tag, ns string) *etree.Element {
	e := etree.NewElement(tag)
	if ns != "" {
		e.CreateAttr("xmlns", ns)
	}
	return e
}

func renderDocument(root *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(root)
	s, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("rendering %s document: %w", root.Tag, err)
	}
	return s, nil
}

func renderContainerMembers(changes []MemberChange) (string, error) {
	root := newElement("setContainerMembers", nsContainerManagement)
	for _, ch := range changes {
		c := root.CreateElement("container")
		c.CreateAttr("id", fmt.Sprintf("%d", ch.Container))
		c.CreateAttr("version", fmt.Sprintf("%d", ch.Version))
		m := c.CreateElement("member")
		m.CreateAttr("action", string(ch.Action))
		m.CreateAttr("type", string(ch.Member.Type))
		if ch.Member.Value != "" {
			m.CreateAttr("value", ch.Member.Value)
		}
	}
	return renderDocument(root)
}

func renderSubscriberAck(user string) (string, error) {
	root := newElement("setSubscribers", nsSubscribers)
	s := root.CreateElement("subscriber")
	s.CreateAttr("user", user)
	s.CreateAttr("acknowledged", "true")
	return renderDocument(root)
}
