package testutil

import (
	"fmt"
	"sync"

	"richpres/internal/presence"
)

// SentRequest is a request captured by FakeTransport.
type SentRequest struct {
	Request *presence.Request
	handler presence.ResponseHandler
}

// FakeTransport records requests and delivers responses on demand.
type FakeTransport struct {
	mu   sync.Mutex
	sent []*SentRequest

	// Err, when set, is returned by Send.
	Err error
	// Immediate, when set, answers the next request before Send returns.
	Immediate *presence.Response
}

var _ presence.Transport = (*FakeTransport)(nil)

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (t *FakeTransport) Send(req *presence.Request, onResponse presence.ResponseHandler) error {
	t.mu.Lock()
	if t.Err != nil {
		t.mu.Unlock()
		return t.Err
	}
	t.sent = append(t.sent, &SentRequest{Request: req, handler: onResponse})
	resp := t.Immediate
	t.Immediate = nil
	t.mu.Unlock()

	if resp != nil && onResponse != nil {
		onResponse(*resp)
	}
	return nil
}

// Sent returns all captured requests in send order.
func (t *FakeTransport) Sent() []*SentRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*SentRequest(nil), t.sent...)
}

// Count returns the number of captured requests.
func (t *FakeTransport) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// Last returns the most recent request, or nil.
func (t *FakeTransport) Last() *SentRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return nil
	}
	return t.sent[len(t.sent)-1]
}

// Respond delivers resp to the continuation of request i.
func (t *FakeTransport) Respond(i int, resp presence.Response) error {
	t.mu.Lock()
	if i < 0 || i >= len(t.sent) {
		t.mu.Unlock()
		return fmt.Errorf("no request at index %d", i)
	}
	h := t.sent[i].handler
	t.mu.Unlock()

	if h != nil {
		h(resp)
	}
	return nil
}

// Reset forgets all captured requests.
func (t *FakeTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}
