package presence

import "fmt"

// Status is the user-facing presence status.
type Status string

const (
	StatusAvailable    Status = "available"
	StatusBusy         Status = "busy"
	StatusDoNotDisturb Status = "do-not-disturb"
	StatusBeRightBack  Status = "be-right-back"
	StatusAway         Status = "away"
	StatusOutToLunch   Status = "out-to-lunch"
	StatusInvisible    Status = "invisible"
	StatusOffline      Status = "offline"
	StatusUnknown      Status = "unknown"
)

var allStatuses = []Status{
	StatusAvailable, StatusBusy, StatusDoNotDisturb, StatusBeRightBack,
	StatusAway, StatusOutToLunch, StatusInvisible, StatusOffline,
}

// ParseStatus validates a status token.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status: %q", s)
}

// Availability returns the availability number published for s.
func (s Status) Availability() int {
	switch s {
	case StatusAvailable:
		return 3500
	case StatusBusy:
		return 6500
	case StatusDoNotDisturb:
		return 9500
	case StatusBeRightBack:
		return 12500
	case StatusAway, StatusOutToLunch:
		return 15500
	case StatusInvisible, StatusOffline:
		return 18500
	default:
		return 0
	}
}

// StatusByAvailability maps an aggregate availability back to a status.
func StatusByAvailability(avail int) Status {
	switch {
	case avail < 3000:
		return StatusOffline
	case avail < 6000:
		return StatusAvailable
	case avail < 9000:
		return StatusBusy
	case avail < 12000:
		return StatusDoNotDisturb
	case avail < 15000:
		return StatusBeRightBack
	case avail < 18000:
		return StatusAway
	default:
		return StatusOffline
	}
}

// Activity tokens published with calendar state.
const (
	ActivityInMeeting   = "in-a-meeting"
	ActivityOutOfOffice = "out-of-office"
)
