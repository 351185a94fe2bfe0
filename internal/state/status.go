package state

import "fmt"

// Status is the protocol-wide lifecycle phase. Transitions are one-way.
type Status int32

const (
	StatusNormal Status = iota
	StatusSettling
	StatusSettled
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "NORMAL"
	case StatusSettling:
		return "SETTLING"
	case StatusSettled:
		return "SETTLED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for _, v := range []Status{StatusNormal, StatusSettling, StatusSettled} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// CanTransitionTo validates lifecycle transitions
func (s Status) CanTransitionTo(next Status) bool {
	validTransitions := map[Status][]Status{
		StatusNormal: {
			StatusSettling,
		},
		StatusSettling: {
			StatusSettled,
		},
		StatusSettled: {
			// Terminal state
		},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if next == a {
			return true
		}
	}
	return false
}

// Phases is the set of statuses in which an operation is legal.
type Phases uint8

const (
	InNormal   Phases = 1 << StatusNormal
	InSettling Phases = 1 << StatusSettling
	InSettled  Phases = 1 << StatusSettled

	NotSettled = InNormal | InSettling
	AnyPhase   = InNormal | InSettling | InSettled
)

// Allows reports whether s is in the set.
func (p Phases) Allows(s Status) bool {
	return p&(1<<s) != 0
}

// Require fails with WrongStatus unless s is in the set.
func (p Phases) Require(op string, s Status) error {
	if !p.Allows(s) {
		return Errorf(WrongStatus, op, "wrong perpetual status %s", s)
	}
	return nil
}
