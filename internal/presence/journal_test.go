package presence_test

import (
	"testing"

	"richpres/internal/model"
	"richpres/internal/presence"
	"richpres/internal/testutil"
)

// TestSession_SQLiteJournal runs a session against the SQLite store used by
// the CLI instead of the in-memory fakes.
func TestSession_SQLiteJournal(t *testing.T) {
	clock := testutil.LoginClock()
	db := testutil.NewTestDatabase(t, clock)
	if err := db.UpsertContact(&model.Contact{URI: "sip:mallory@contoso.com", DisplayName: "Mallory"}); err != nil {
		t.Fatalf("UpsertContact() error = %v", err)
	}

	transport := testutil.NewFakeTransport()
	s, err := presence.NewSession(presence.Options{
		SelfURI:      selfURI,
		EndpointUUID: "3f2f6d3e-8a7e-4f5c-9c61-0a4d2b7f9e10",
		HostName:     "desk-01",
	}, transport, nil, db, testutil.NewFakeScheduler(), db, presence.NewNopLogger(), clock, testutil.NewCorrelationIDs())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	doc := roaming("", containersSection(
		`<container id="200" version="1"><member type="sameEnterprise"/></container>`+
			`<container id="100" version="1"><member type="federated"/></container>`+
			`<container id="32000" version="1"><member type="user" value="mallory@contoso.com"/></container>`),
		subscribersSection(`<subscriber user="bob@contoso.com" displayName="Bob" acknowledged="false"/>`))
	if err := s.Ingest(doc); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	t.Run("contacts", func(t *testing.T) {
		mallory, err := db.Find("sip:mallory@contoso.com")
		if err != nil || mallory == nil || !mallory.Blocked {
			t.Errorf("mallory = %+v, %v, want blocked", mallory, err)
		}
		bob, err := db.Find("sip:bob@contoso.com")
		if err != nil || bob == nil {
			t.Fatalf("bob = %v, %v, want a pending contact", bob, err)
		}
		if !bob.PendingAdd || bob.DisplayName != "Bob" {
			t.Errorf("bob = %+v, want pending add named Bob", bob)
		}
	})

	publishIdx := -1
	for i, sent := range transport.Sent() {
		if sent.Request.ContentType == presence.ContentTypePublish {
			publishIdx = i
			transport.Respond(i, wrongDelta(map[int]uint32{1: 4}))
			continue
		}
		transport.Respond(i, ok202())
	}
	if publishIdx < 0 {
		t.Fatal("no initial publish sent")
	}

	t.Run("journal", func(t *testing.T) {
		reqs, err := db.ListRequests(10)
		if err != nil {
			t.Fatalf("ListRequests() error = %v", err)
		}
		if len(reqs) != 3 {
			t.Fatalf("journaled %d requests, want ack, publish and restart", len(reqs))
		}

		restart, faulted := reqs[0], reqs[1]
		if restart.Kind != model.RequestPublish || !restart.Pending() {
			t.Errorf("newest request = %+v, want the pending restart", restart)
		}
		if faulted.Status != 409 || faulted.FaultCode != presence.FaultWrongDelta {
			t.Errorf("faulted publish = %d %q", faulted.Status, faulted.FaultCode)
		}
		if len(faulted.Keys) == 0 || faulted.Keys[0].Category != presence.CategoryDevice || faulted.Keys[0].Position != 1 {
			t.Errorf("faulted publish keys = %+v, want the device first", faulted.Keys)
		}

		var ack *model.Request
		for _, r := range reqs {
			if r.Kind == model.RequestSetSubscribers {
				ack = r
			}
		}
		if ack == nil || ack.Status != 202 {
			t.Errorf("subscriber ack = %+v, want finished with 202", ack)
		}
	})
}
