package presence_test

import (
	"errors"
	"testing"

	"richpres/internal/presence"
)

func TestParseFault(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   string
		wantFaults []presence.VersionFault
		wantErr    bool
	}{
		{
			name:       "wrong delta",
			body:       string(wrongDelta(map[int]uint32{1: 7, 3: 2}).Body),
			wantCode:   presence.FaultWrongDelta,
			wantFaults: []presence.VersionFault{{Index: 1, CurVersion: 7}, {Index: 3, CurVersion: 2}},
		},
		{
			name:     "no details",
			body:     `<Fault><Faultcode>Server.Busy</Faultcode></Fault>`,
			wantCode: "Server.Busy",
		},
		{
			name:    "operation without index",
			body:    `<Fault><Faultcode>Client.BadCall.WrongDelta</Faultcode><details><operation curVersion="3"/></details></Fault>`,
			wantErr: true,
		},
		{
			name:    "operation without version",
			body:    `<Fault><Faultcode>Client.BadCall.WrongDelta</Faultcode><details><operation index="1"/></details></Fault>`,
			wantErr: true,
		},
		{
			name:    "non-numeric index",
			body:    `<Fault><Faultcode>Client.BadCall.WrongDelta</Faultcode><details><operation index="1x" curVersion="3"/></details></Fault>`,
			wantErr: true,
		},
		{
			name:    "not xml",
			body:    `Fault <<`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, faults, err := presence.ParseFault([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, presence.ErrMalformedDocument) {
					t.Fatalf("ParseFault() error = %v, want ErrMalformedDocument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFault() error = %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if len(faults) != len(tt.wantFaults) {
				t.Fatalf("faults = %+v, want %+v", faults, tt.wantFaults)
			}
			for i := range faults {
				if faults[i] != tt.wantFaults[i] {
					t.Errorf("fault %d = %+v, want %+v", i, faults[i], tt.wantFaults[i])
				}
			}
		})
	}
}

func machineKey(f *fixture, container uint32) presence.PubKey {
	return presence.PubKey{Category: presence.CategoryState, Instance: f.session.Instances().MachineState, Container: container}
}

func TestReconcile_WrongDeltaResyncsStatus(t *testing.T) {
	f := newFixture(t)
	primeSession(t, f, "")

	f.session.SetStatus(presence.StatusBusy, false)
	if err := f.session.PublishStatus(); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	f.transport.Respond(0, wrongDelta(map[int]uint32{1: 7}))

	if got := f.session.Cache().Version(machineKey(f, 2)); got != 7 {
		t.Errorf("version of faulted key = %d, want 7", got)
	}
	if f.transport.Count() != 2 {
		t.Fatalf("sent %d requests, want the rejected one and a resync", f.transport.Count())
	}

	pubs := lastPublish(t, f)
	if countCategory(pubs, presence.CategoryDevice) != 0 {
		t.Error("status resync republished the device")
	}
	want := map[uint32]uint32{2: 7, 3: 0}
	if len(pubs) != len(want) {
		t.Fatalf("got %d publications, want %d", len(pubs), len(want))
	}
	for _, p := range pubs {
		if p.Version != want[p.Container] {
			t.Errorf("container %d version = %d, want %d", p.Container, p.Version, want[p.Container])
		}
		if got := childText(p.Content, "availability"); got != "6500" {
			t.Errorf("availability = %q, want 6500", got)
		}
	}

	reqs := f.journal.Requests()
	rejected := reqs[len(reqs)-2]
	if rejected.Status != 409 || rejected.FaultCode != presence.FaultWrongDelta {
		t.Errorf("journaled outcome = %d %q, want 409 %q", rejected.Status, rejected.FaultCode, presence.FaultWrongDelta)
	}
}

func TestReconcile_DeviceFaultRestartsInitialPublish(t *testing.T) {
	f := newFixture(t)
	if err := f.session.PublishInitial(); err != nil {
		t.Fatalf("PublishInitial() error = %v", err)
	}
	f.transport.Respond(0, wrongDelta(map[int]uint32{1: 4}))

	if f.transport.Count() != 2 {
		t.Fatalf("sent %d requests, want 2", f.transport.Count())
	}
	pubs := lastPublish(t, f)
	if len(pubs) != 3 {
		t.Fatalf("got %d publications, want device and machine state", len(pubs))
	}
	dev, ok := findPub(pubs, presence.PubKey{Category: presence.CategoryDevice, Instance: f.session.Instances().Device, Container: 2})
	if !ok {
		t.Fatal("restart did not republish the device")
	}
	if dev.Version != 4 {
		t.Errorf("device version = %d, want 4", dev.Version)
	}
	if countCategory(pubs, presence.CategoryState) != 2 {
		t.Error("restart did not republish the rejected machine state")
	}
}

func TestReconcile_StateFaultInInitialPublish(t *testing.T) {
	f := newFixture(t)
	f.session.PublishInitial()
	f.transport.Respond(0, wrongDelta(map[int]uint32{2: 3}))

	if f.transport.Count() != 2 {
		t.Fatalf("sent %d requests, want 2", f.transport.Count())
	}
	pubs := lastPublish(t, f)
	if countCategory(pubs, presence.CategoryDevice) != 0 {
		t.Error("state fault restarted the initial publish")
	}
	p, ok := findPub(pubs, machineKey(f, 2))
	if !ok || p.Version != 3 {
		t.Errorf("machine state = %+v, want version 3", p)
	}
}

func TestReconcile_ServerVersionReplacesSentVersion(t *testing.T) {
	f := newFixture(t)
	key := machineKey(f, 2)
	f.session.Cache().Put(&presence.Publication{Key: key, Version: 9, Availability: 3500})

	f.session.SetStatus(presence.StatusAway, false)
	f.session.PublishStatus()
	f.transport.Respond(0, wrongDelta(map[int]uint32{1: 3}))

	if got := f.session.Cache().Version(key); got != 3 {
		t.Errorf("version = %d, want 3", got)
	}
	p, ok := findPub(lastPublish(t, f), key)
	if !ok || p.Version != 3 {
		t.Errorf("resync publication = %+v, want version 3", p)
	}

	f.transport.Respond(1, ok202())
	if f.transport.Count() != 2 {
		t.Errorf("sent %d requests, want 2", f.transport.Count())
	}
}

func TestReconcile_LateFaultKeepsNewerVersion(t *testing.T) {
	f := newFixture(t)
	key := machineKey(f, 2)
	f.session.Cache().Put(&presence.Publication{Key: key, Version: 9, Availability: 3500})

	f.session.SetStatus(presence.StatusAway, false)
	f.session.PublishStatus()
	f.session.Cache().Get(key).Version = 12
	f.transport.Respond(0, wrongDelta(map[int]uint32{1: 3}))

	if got := f.session.Cache().Version(key); got != 12 {
		t.Errorf("version = %d, want 12", got)
	}
}

func TestReconcile_FaultBeforeSendReturns(t *testing.T) {
	f := newFixture(t)
	key := machineKey(f, 2)
	f.session.Cache().Put(&presence.Publication{Key: key, Version: 9, Availability: 3500})

	fault := wrongDelta(map[int]uint32{1: 7})
	f.transport.Immediate = &fault
	f.session.SetStatus(presence.StatusAway, false)
	if err := f.session.PublishStatus(); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}

	if f.transport.Count() != 2 {
		t.Fatalf("sent %d requests, want 2", f.transport.Count())
	}
	first := parsePublish(t, f.transport.Sent()[0].Request)
	resync := lastPublish(t, f)
	p, ok := findPub(resync, key)
	if !ok || p.Version != 7 {
		t.Errorf("resync publication = %+v, want version 7", p)
	}
	if got := f.session.Cache().Version(key); got != 7 {
		t.Errorf("version = %d, want 7", got)
	}
	for _, sent := range first {
		if _, ok := findPub(resync, sent.key()); ok {
			continue
		}
		if got := f.session.Cache().Get(sent.key()); got == nil || !got.Unconfirmed {
			t.Errorf("%v = %+v after rejected publish, want unconfirmed", sent.key(), got)
		}
	}
}

func TestSession_PublishSendErrorRestoresCache(t *testing.T) {
	f := newFixture(t)
	key := machineKey(f, 2)
	f.session.Cache().Put(&presence.Publication{Key: key, Version: 9, Availability: 3500})
	before := f.session.Cache().Len()

	f.transport.Err = errors.New("connection reset")
	f.session.SetStatus(presence.StatusAway, false)
	if err := f.session.PublishStatus(); err == nil {
		t.Fatal("PublishStatus() error = nil, want send error")
	}

	got := f.session.Cache().Get(key)
	if got == nil || got.Version != 9 || got.Availability != 3500 {
		t.Errorf("cache entry = %+v, want version 9 availability 3500", got)
	}
	if n := f.session.Cache().Len(); n != before {
		t.Errorf("cache holds %d entries, want %d", n, before)
	}
}

func TestReconcile_IgnoredResponses(t *testing.T) {
	tests := []struct {
		name string
		resp presence.Response
	}{
		{"success", presence.Response{Status: 200}},
		{"server error", presence.Response{Status: 500}},
		{"conflict without fault body", presence.Response{Status: 409, ContentType: "text/plain", Body: []byte("conflict")}},
		{"other fault code", presence.Response{
			Status:      409,
			ContentType: presence.ContentTypeFault,
			Body:        []byte(`<Fault><Faultcode>Client.BadCall.Other</Faultcode></Fault>`),
		}},
		{"malformed fault", presence.Response{
			Status:      409,
			ContentType: presence.ContentTypeFault,
			Body:        []byte(`<Fault><Faultcode>Client.BadCall.WrongDelta</Faultcode><details><operation/></details></Fault>`),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			primeSession(t, f, "")
			f.session.SetStatus(presence.StatusBusy, false)
			f.session.PublishStatus()

			f.transport.Respond(0, tt.resp)

			if f.transport.Count() != 1 {
				t.Errorf("sent %d requests, want no resync", f.transport.Count())
			}
			p := f.session.Cache().Get(machineKey(f, 2))
			if p == nil || p.Unconfirmed || p.Availability != 6500 {
				t.Errorf("cache entry = %+v, want the sent state", p)
			}
		})
	}
}
