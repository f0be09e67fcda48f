package app

import (
	"sync"

	"richpres/internal/presence"
)

// Exchange is one request sent through a DryRunTransport and the response it
// received. Response is nil until the request has been drained.
type Exchange struct {
	Seq      int
	Request  *presence.Request
	Response *presence.Response
}

// Responder decides the response to the seq'th request (0-based).
type Responder func(seq int, req *presence.Request) presence.Response

// AcceptAll answers every request with 200 OK.
func AcceptAll(int, *presence.Request) presence.Response {
	return presence.Response{Status: 200}
}

// FaultFirstPublish answers the first publish with fault and accepts
// everything else.
func FaultFirstPublish(fault presence.Response) Responder {
	faulted := false
	return func(seq int, req *presence.Request) presence.Response {
		if !faulted && req.ContentType == presence.ContentTypePublish {
			faulted = true
			return fault
		}
		return AcceptAll(seq, req)
	}
}

type queued struct {
	exchange *Exchange
	handler  presence.ResponseHandler
}

// DryRunTransport answers requests locally. Send only queues; responses are
// delivered from Drain, so continuations never run inside Send.
type DryRunTransport struct {
	respond Responder

	mu        sync.Mutex
	exchanges []*Exchange
	queue     []queued
}

var _ presence.Transport = (*DryRunTransport)(nil)

// NewDryRunTransport creates a transport answering with respond, or
// AcceptAll when respond is nil.
func NewDryRunTransport(respond Responder) *DryRunTransport {
	if respond == nil {
		respond = AcceptAll
	}
	return &DryRunTransport{respond: respond}
}

func (t *DryRunTransport) Send(req *presence.Request, onResponse presence.ResponseHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ex := &Exchange{Seq: len(t.exchanges), Request: req}
	t.exchanges = append(t.exchanges, ex)
	t.queue = append(t.queue, queued{exchange: ex, handler: onResponse})
	return nil
}

// Drain delivers responses in send order until the queue is empty,
// including requests queued by the continuations themselves. It returns the
// number of responses delivered.
func (t *DryRunTransport) Drain() int {
	n := 0
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			return n
		}
		q := t.queue[0]
		t.queue = t.queue[1:]
		resp := t.respond(q.exchange.Seq, q.exchange.Request)
		q.exchange.Response = &resp
		t.mu.Unlock()

		if q.handler != nil {
			q.handler(resp)
		}
		n++
	}
}

// Exchanges returns every request sent so far in send order.
func (t *DryRunTransport) Exchanges() []*Exchange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Exchange(nil), t.exchanges...)
}
