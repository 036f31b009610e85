package reservation

import "time"

// Rules configures business hours, slot size and reservation bounds.
type Rules struct {
	Location           *time.Location
	OpenHour           int // first slot starts at this hour
	CloseHour          int // last slot ends at this hour
	SlotMinutes        int
	MinDuration        int // minutes, inclusive
	MaxDuration        int // minutes, inclusive
	AdvanceBookingDays int // fallback when no setting is stored
}

// DefaultRules returns the lending office defaults.
func DefaultRules() Rules {
	return Rules{
		Location:           time.UTC,
		OpenHour:           8,
		CloseHour:          17,
		SlotMinutes:        30,
		MinDuration:        30,
		MaxDuration:        8 * 60,
		AdvanceBookingDays: 30,
	}
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}
