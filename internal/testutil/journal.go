package testutil

import (
	"sync"
	"time"

	"richpres/internal/model"
	"richpres/internal/presence"
)

// FakeJournal keeps journaled requests in memory.
type FakeJournal struct {
	mu       sync.Mutex
	requests []*model.Request
}

var _ presence.Journal = (*FakeJournal)(nil)

func NewFakeJournal() *FakeJournal {
	return &FakeJournal{}
}

func (j *FakeJournal) RecordRequest(req *model.Request) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *req
	cp.ID = int64(len(j.requests) + 1)
	j.requests = append(j.requests, &cp)
	return cp.ID, nil
}

func (j *FakeJournal) FinishRequest(id int64, status int, faultCode string, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if id < 1 || int(id) > len(j.requests) {
		return nil
	}
	r := j.requests[id-1]
	r.Status = status
	r.FaultCode = faultCode
	r.FinishedAt = &at
	return nil
}

// Requests returns copies of the journaled requests in record order.
func (j *FakeJournal) Requests() []model.Request {
	j.mu.Lock()
	defer j.mu.Unlock()
	res := make([]model.Request, len(j.requests))
	for i, r := range j.requests {
		res[i] = *r
	}
	return res
}
