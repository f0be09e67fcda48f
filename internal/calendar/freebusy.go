package calendar

import (
	"encoding/base64"
	"fmt"
	"time"

	"richpres/internal/presence"
)

// SlotDuration is the granularity of a free/busy slot string.
const SlotDuration = 15 * time.Minute

// Slot values of a free/busy string.
const (
	SlotFree      = '0'
	SlotTentative = '1'
	SlotBusy      = '2'
	SlotOOF       = '3'
)

// EncodeFreeBusy packs a slot string ('0'..'3' per slot) into the base64
// blob published in calendarData. Each slot takes two bits, first slot in
// the low bits of the first byte.
func EncodeFreeBusy(slots string) (string, error) {
	packed := make([]byte, (len(slots)+3)/4)
	for i := 0; i < len(slots); i++ {
		c := slots[i]
		if c < SlotFree || c > SlotOOF {
			return "", fmt.Errorf("invalid free/busy slot %q at %d", c, i)
		}
		packed[i/4] |= (c - SlotFree) << (2 * (i % 4))
	}
	return base64.StdEncoding.EncodeToString(packed), nil
}

// DecodeFreeBusy reverses EncodeFreeBusy for n slots.
func DecodeFreeBusy(blob string, n int) (string, error) {
	packed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("decoding free/busy blob: %w", err)
	}
	if n > len(packed)*4 {
		return "", fmt.Errorf("free/busy blob holds %d slots, want %d", len(packed)*4, n)
	}
	slots := make([]byte, n)
	for i := range slots {
		slots[i] = SlotFree + (packed[i/4]>>(2*(i%4)))&0x3
	}
	return string(slots), nil
}

func slotFor(s presence.CalendarStatus) byte {
	switch s {
	case presence.CalendarTentative:
		return SlotTentative
	case presence.CalendarBusy:
		return SlotBusy
	case presence.CalendarOOF:
		return SlotOOF
	default:
		return SlotFree
	}
}

// Slots renders events as a slot string of n slots from start. Overlapping
// events yield the highest status.
func Slots(events []presence.CalendarEvent, start time.Time, n int) string {
	slots := make([]byte, n)
	for i := range slots {
		slots[i] = SlotFree
	}
	for _, ev := range events {
		for i := range slots {
			from := start.Add(time.Duration(i) * SlotDuration)
			to := from.Add(SlotDuration)
			if ev.Start.Before(to) && ev.End.After(from) {
				if v := slotFor(ev.Status); v > slots[i] {
					slots[i] = v
				}
			}
		}
	}
	return string(slots)
}
