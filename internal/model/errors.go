package model

import "errors"

// Conditional-write failures reported by the store.
var (
	// ErrSlotTaken means an active reservation already overlaps the interval.
	ErrSlotTaken = errors.New("time slot already reserved")
	// ErrStaleStatus means the record was no longer in the expected status.
	ErrStaleStatus = errors.New("status changed concurrently")
	// ErrAlreadyConverted means the reservation already produced a loan.
	ErrAlreadyConverted = errors.New("reservation already converted to a loan")
)
