package presence

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
)

// Instances holds the publication instance numbers of this endpoint. They
// are derived once from the endpoint identity and stay fixed for the life of
// a session.
type Instances struct {
	Device        uint32
	MachineState  uint32
	UserState     uint32
	CalendarState uint32
	CalendarOOF   uint32
	CalendarData  uint32
	NoteOOF       uint32
}

const userStateInstance uint32 = 0x20000000

// DeriveInstances computes the instances for an endpoint. epid seeds the
// per-endpoint instances, mailbox the per-mailbox ones.
func DeriveInstances(epid, mailbox string) Instances {
	base := hexPrefix(epid)
	mail := hexPrefix(hashHex(mailbox))

	return Instances{
		Device:        base,
		MachineState:  (base >> 4) | 0x30000000,
		UserState:     userStateInstance,
		CalendarState: (base >> 4) | 0x40000000,
		CalendarOOF:   (base >> 4) | 0x50000000,
		CalendarData:  (mail >> 4) | 0x40000000,
		NoteOOF:       (mail >> 4) | 0x40000000,
	}
}

// EndpointID returns the short endpoint id for an account on a host.
func EndpointID(selfURI, hostName, endpointUUID string) string {
	return hashHex(selfURI + ":" + hostName + ":" + endpointUUID)[:10]
}

func hashHex(s string) string {
	sum := sha1.Sum([]byte(strings.ToLower(s)))
	return hex.EncodeToString(sum[:])
}

func hexPrefix(s string) uint32 {
	if len(s) > 8 {
		s = s[:8]
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// calendarDataContainers are the containers of working hours and free/busy.
var calendarDataContainers = []uint32{1, 100, 200, 300, 400, 32000}

// noteContainers are the containers a note is published to.
var noteContainers = []uint32{200, 300, 400}

// OurKeys returns every key this endpoint publishes.
func (in Instances) OurKeys() map[PubKey]bool {
	keys := map[PubKey]bool{
		{CategoryDevice, in.Device, containerEndpoint}: true,
	}
	for _, inst := range []uint32{in.MachineState, in.UserState, in.CalendarState, in.CalendarOOF} {
		keys[PubKey{CategoryState, inst, containerEndpoint}] = true
		keys[PubKey{CategoryState, inst, containerSelf}] = true
	}
	for _, inst := range []uint32{0, in.NoteOOF} {
		for _, c := range noteContainers {
			keys[PubKey{CategoryNote, inst, c}] = true
		}
	}
	for _, inst := range []uint32{0, in.CalendarData} {
		for _, c := range calendarDataContainers {
			keys[PubKey{CategoryCalendarData, inst, c}] = true
		}
	}
	return keys
}
