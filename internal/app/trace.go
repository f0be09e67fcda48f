package app

import (
	"bytes"
	"fmt"
	"sync"

	"richpres/internal/archive"
	"richpres/internal/encryption"
	"richpres/internal/presence"
)

// traceKinds maps request content types to trace object kinds.
var traceKinds = map[string]string{
	presence.ContentTypePublish:          "publish",
	presence.ContentTypeContainerMembers: "setContainerMembers",
	presence.ContentTypeSetSubscriber:    "setSubscribers",
}

// Tracer seals wire documents with the encryptor and stores them in the
// archive as "<sessionID>/<seq>-<kind>.xml.age". Archive failures are logged
// and never interrupt the session.
type Tracer struct {
	archive   archive.Archive
	enc       encryption.Encryptor
	sessionID string
	logger    presence.Logger

	mu  sync.Mutex
	seq int
}

func NewTracer(a archive.Archive, enc encryption.Encryptor, sessionID string, logger presence.Logger) *Tracer {
	if logger == nil {
		logger = presence.NewNopLogger()
	}
	return &Tracer{archive: a, enc: enc, sessionID: sessionID, logger: logger}
}

// Record archives body under the next sequence number and returns the
// object name, or "" when archiving failed.
func (t *Tracer) Record(kind string, body []byte) string {
	t.mu.Lock()
	t.seq++
	name := fmt.Sprintf("%s/%06d-%s.xml.age", t.sessionID, t.seq, kind)
	t.mu.Unlock()

	var sealed bytes.Buffer
	if err := t.enc.Encrypt(bytes.NewReader(body), &sealed); err != nil {
		t.logger.Warn("sealing trace failed", "name", name, "error", err)
		return ""
	}
	if err := t.archive.Put(name, &sealed, int64(sealed.Len())); err != nil {
		t.logger.Warn("archiving trace failed", "name", name, "error", err)
		return ""
	}
	t.logger.Debug("trace archived", "name", name)
	return name
}

// Transport wraps next so that every request body and response body is
// recorded.
func (t *Tracer) Transport(next presence.Transport) presence.Transport {
	return &tracingTransport{tracer: t, next: next}
}

type tracingTransport struct {
	tracer *Tracer
	next   presence.Transport
}

func (tt *tracingTransport) Send(req *presence.Request, onResponse presence.ResponseHandler) error {
	kind, ok := traceKinds[req.ContentType]
	if !ok {
		kind = "request"
	}
	tt.tracer.Record(kind, []byte(req.Body))

	return tt.next.Send(req, func(resp presence.Response) {
		tt.tracer.Record(fmt.Sprintf("response-%d", resp.Status), resp.Body)
		if onResponse != nil {
			onResponse(resp)
		}
	})
}
