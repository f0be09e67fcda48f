package presence_test

import (
	"testing"

	"richpres/internal/presence"
)

func TestEndpointID(t *testing.T) {
	a := presence.EndpointID("sip:alice@contoso.com", "desk-01", "uuid-1")
	if len(a) != 10 {
		t.Fatalf("EndpointID() = %q, want 10 hex digits", a)
	}
	if b := presence.EndpointID("SIP:Alice@Contoso.com", "DESK-01", "UUID-1"); b != a {
		t.Errorf("EndpointID() is case sensitive: %q != %q", b, a)
	}
	if c := presence.EndpointID("sip:alice@contoso.com", "laptop", "uuid-1"); c == a {
		t.Error("EndpointID() ignores the host name")
	}
}

func TestDeriveInstances(t *testing.T) {
	inst := presence.DeriveInstances("0123456789", "alice@contoso.com")

	if inst.Device != 0x01234567 {
		t.Errorf("Device = %#x, want 0x1234567", inst.Device)
	}
	if inst.MachineState != 0x30123456 {
		t.Errorf("MachineState = %#x, want 0x30123456", inst.MachineState)
	}
	if inst.CalendarState != 0x40123456 {
		t.Errorf("CalendarState = %#x, want 0x40123456", inst.CalendarState)
	}
	if inst.CalendarOOF != 0x50123456 {
		t.Errorf("CalendarOOF = %#x, want 0x50123456", inst.CalendarOOF)
	}
	if inst.UserState != 0x20000000 {
		t.Errorf("UserState = %#x, want 0x20000000", inst.UserState)
	}
	if inst.CalendarData>>28 != 4 || inst.NoteOOF != inst.CalendarData {
		t.Errorf("CalendarData = %#x, NoteOOF = %#x", inst.CalendarData, inst.NoteOOF)
	}

	if again := presence.DeriveInstances("0123456789", "ALICE@contoso.com"); again != inst {
		t.Error("instances depend on mailbox case")
	}
	if other := presence.DeriveInstances("0123456789", "bob@contoso.com"); other.CalendarData == inst.CalendarData {
		t.Error("mailbox does not affect calendar data instance")
	}
}

func TestInstances_OurKeys(t *testing.T) {
	inst := presence.DeriveInstances("0123456789", "alice@contoso.com")
	keys := inst.OurKeys()

	// 1 device, 4 state instances in 2 containers, 2 notes in 3, 2 calendar data in 6.
	if len(keys) != 27 {
		t.Errorf("len(OurKeys()) = %d, want 27", len(keys))
	}
	for _, k := range []presence.PubKey{
		{Category: presence.CategoryDevice, Instance: inst.Device, Container: 2},
		{Category: presence.CategoryState, Instance: inst.UserState, Container: 3},
		{Category: presence.CategoryNote, Instance: 0, Container: 400},
		{Category: presence.CategoryCalendarData, Instance: inst.CalendarData, Container: 32000},
	} {
		if !keys[k] {
			t.Errorf("OurKeys() missing %v", k)
		}
	}
	if keys[presence.PubKey{Category: presence.CategoryNote, Instance: 0, Container: 100}] {
		t.Error("OurKeys() includes a public note")
	}
}
