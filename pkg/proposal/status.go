package proposal

import (
	"errors"
	"fmt"
	"slices"
)

// Status is the lifecycle state of a proposal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ErrInvalidStatus is returned for an unknown status or a disallowed target.
var ErrInvalidStatus = errors.New("invalid proposal status")

// transitions lists the statuses reachable from each status. Terminal
// statuses have no entry.
var transitions = map[Status][]Status{
	StatusPending: {StatusPending, StatusApproved, StatusRejected},
}

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether a proposal may move from one status to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}
