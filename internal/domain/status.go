package domain

import "fmt"

// AttemptStatus is the attempt state machine: IN_PROGRESS -> SUBMITTED | ABANDONED.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "IN_PROGRESS"
	StatusSubmitted  AttemptStatus = "SUBMITTED"
	StatusAbandoned  AttemptStatus = "ABANDONED"
)

// Valid reports whether s is one of the known states.
func (s AttemptStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusSubmitted, StatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusSubmitted, StatusAbandoned:
		return true
	case StatusInProgress:
		return false
	}
	// unknown states are never writable
	return true
}

// ParseStatus converts a stored value into an AttemptStatus.
func ParseStatus(raw string) (AttemptStatus, error) {
	s := AttemptStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown attempt status %q", raw)
	}
	return s, nil
}
